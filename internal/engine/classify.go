package engine

import (
	"sort"
	"time"

	"govline/internal/domain"
)

// Bucket is the derived urgency classification of a cycle. It is computed
// against a reference date at read time and never stored.
type Bucket string

const (
	BucketLate      Bucket = "late"
	BucketDueSoon   Bucket = "due_soon"
	BucketInReview  Bucket = "in_review"
	BucketDone      Bucket = "done"
	BucketCancelled Bucket = "cancelled"
	BucketOnTrack   Bucket = "on_track"
)

// DaysRemaining returns the whole-calendar-day distance from today to the
// cycle's due date. Negative means overdue. Clock time is ignored on both
// sides, so a cycle due today at any hour yields zero.
func DaysRemaining(dueDate string, today time.Time) (int, error) {
	due, err := time.Parse("2006-01-02", dueDate)
	if err != nil {
		return 0, err
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(due.Sub(t).Hours() / 24), nil
}

// ClassifyCycle buckets a cycle for dashboards. Terminal statuses win over
// date arithmetic: a done cycle is never late regardless of its due date.
func ClassifyCycle(c domain.Cycle, today time.Time, dueSoonDays int) Bucket {
	switch c.Status {
	case domain.StatusDone:
		return BucketDone
	case domain.StatusCancelled:
		return BucketCancelled
	case domain.StatusInReview:
		return BucketInReview
	}
	days, err := DaysRemaining(c.DueDate, today)
	if err != nil {
		return BucketOnTrack
	}
	if days < 0 {
		return BucketLate
	}
	if days <= dueSoonDays {
		return BucketDueSoon
	}
	return BucketOnTrack
}

// CycleView pairs a cycle with its routine and derived classification.
type CycleView struct {
	Cycle         domain.Cycle   `json:"cycle"`
	Routine       domain.Routine `json:"routine"`
	Bucket        Bucket         `json:"bucket"`
	DaysRemaining int            `json:"days_remaining"`
}

// ClassifyForNow classifies a single cycle against the current clock.
func (e Engine) ClassifyForNow(c domain.Cycle) CycleView {
	today := e.now()
	days, _ := DaysRemaining(c.DueDate, today)
	return CycleView{
		Cycle:         c,
		Bucket:        ClassifyCycle(c, today, e.Config.DueSoonWindow()),
		DaysRemaining: days,
	}
}

// SortByPriority orders views by descending risk score, a missing score
// counting as zero, ties broken by earlier due date. The sort is stable.
func SortByPriority(views []CycleView) {
	score := func(v *int) int {
		if v == nil {
			return 0
		}
		return *v
	}
	sort.SliceStable(views, func(i, j int) bool {
		ri, rj := score(views[i].Routine.RiskScore), score(views[j].Routine.RiskScore)
		if ri != rj {
			return ri > rj
		}
		return views[i].Cycle.DueDate < views[j].Cycle.DueDate
	})
}
