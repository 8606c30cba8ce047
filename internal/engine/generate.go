package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"govline/internal/domain"
	"govline/internal/events"
	"govline/internal/repo"
)

const dateLayout = "2006-01-02"

// GenerationReport summarizes one EnsureCycles run.
type GenerationReport struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Created int               `json:"created"`
	Skipped int               `json:"skipped"`
	Errors  []GenerationError `json:"errors,omitempty"`
}

// GenerationError records a routine the generator could not process. One bad
// routine never aborts the run.
type GenerationError struct {
	RoutineID string `json:"routine_id"`
	Message   string `json:"message"`
}

// EnsureCycles creates any missing cycles for active routines inside the
// window, inclusive on both ends. Safe to call repeatedly and concurrently:
// the unique (routine_id, due_date) constraint makes duplicates impossible.
func (e Engine) EnsureCycles(ctx context.Context, from, to, actorID string) (GenerationReport, error) {
	report := GenerationReport{From: from, To: to}
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return report, fmt.Errorf("invalid from date: %w", err)
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return report, fmt.Errorf("invalid to date: %w", err)
	}
	if toDate.Before(fromDate) {
		return report, errors.New("window end before start")
	}
	routines, err := e.Repo.ListRoutines(ctx, repo.RoutineFilters{ActiveOnly: true})
	if err != nil {
		return report, err
	}
	for _, rt := range routines {
		dues, err := dueDatesInWindow(rt, fromDate, toDate)
		if err != nil {
			report.Errors = append(report.Errors, GenerationError{RoutineID: rt.ID, Message: err.Error()})
			continue
		}
		for _, due := range dues {
			created, err := e.ensureCycle(ctx, rt, due, actorID)
			if err != nil {
				report.Errors = append(report.Errors, GenerationError{RoutineID: rt.ID, Message: err.Error()})
				continue
			}
			if created {
				report.Created++
			} else {
				report.Skipped++
			}
		}
	}
	return report, nil
}

func (e Engine) ensureCycle(ctx context.Context, rt domain.Routine, due, actorID string) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	c := domain.Cycle{
		ID:        newID(),
		RoutineID: rt.ID,
		DueDate:   due,
		Status:    domain.StatusPending,
		CreatedAt: e.nowRFC3339(),
	}
	created, err := e.Repo.InsertCycleIfAbsent(ctx, tx, c)
	if err != nil {
		return false, err
	}
	if !created {
		return false, tx.Commit()
	}
	if err := e.Events.Append(ctx, tx, "cycle.created", "cycle", c.ID, actorID, events.EventPayload{
		"routine_id": rt.ID,
		"due_date":   due,
		"source":     "generator",
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// dueDatesInWindow computes the due dates a routine owes inside [from, to].
// Pure date arithmetic, no persistence.
func dueDatesInWindow(rt domain.Routine, from, to time.Time) ([]string, error) {
	switch rt.Frequency {
	case "weekly":
		return weeklyDates(rt, from, to)
	case "monthly":
		return monthlyDates(rt, from, to), nil
	case "quarterly":
		return quarterlyDates(from, to), nil
	case "yearly":
		return yearlyDates(from, to), nil
	case "event":
		// Event-driven routines get cycles only on explicit request.
		return nil, nil
	}
	return nil, fmt.Errorf("unknown frequency %q", rt.Frequency)
}

// weeklyDates steps every 7 days from the routine's creation date.
func weeklyDates(rt domain.Routine, from, to time.Time) ([]string, error) {
	anchor, err := time.Parse(time.RFC3339, rt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("routine created_at: %w", err)
	}
	anchor = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	cur := anchor
	if from.After(anchor) {
		daysAhead := int(from.Sub(anchor).Hours() / 24)
		weeks := daysAhead / 7
		cur = anchor.AddDate(0, 0, weeks*7)
		if cur.Before(from) {
			cur = cur.AddDate(0, 0, 7)
		}
	}
	var res []string
	for !cur.After(to) {
		res = append(res, cur.Format(dateLayout))
		cur = cur.AddDate(0, 0, 7)
	}
	return res, nil
}

// monthlyDates emits one date per month, on day_of_month clamped to the
// month's length. A missing day means the last day of the month.
func monthlyDates(rt domain.Routine, from, to time.Time) []string {
	var res []string
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(to) {
		day := lastDayOfMonth(cur.Year(), cur.Month())
		if rt.DayOfMonth != nil && *rt.DayOfMonth > 0 {
			if *rt.DayOfMonth < day {
				day = *rt.DayOfMonth
			}
		}
		due := time.Date(cur.Year(), cur.Month(), day, 0, 0, 0, 0, time.UTC)
		if !due.Before(from) && !due.After(to) {
			res = append(res, due.Format(dateLayout))
		}
		cur = cur.AddDate(0, 1, 0)
	}
	return res
}

// quarterlyDates emits the first day of each calendar quarter in the window.
func quarterlyDates(from, to time.Time) []string {
	var res []string
	for year := from.Year(); year <= to.Year(); year++ {
		for _, month := range []time.Month{time.January, time.April, time.July, time.October} {
			due := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			if !due.Before(from) && !due.After(to) {
				res = append(res, due.Format(dateLayout))
			}
		}
	}
	return res
}

// yearlyDates emits January 1st of each year in the window.
func yearlyDates(from, to time.Time) []string {
	var res []string
	for year := from.Year(); year <= to.Year(); year++ {
		due := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if !due.Before(from) && !due.After(to) {
			res = append(res, due.Format(dateLayout))
		}
	}
	return res
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CreateCycleOptions are parameters for creating an ad-hoc cycle, the only
// path that produces cycles for event-frequency routines.
type CreateCycleOptions struct {
	RoutineID string
	DueDate   string
	Notes     string
	ActorID   string
}

func (e Engine) CreateCycle(ctx context.Context, opts CreateCycleOptions) (domain.Cycle, error) {
	if _, err := time.Parse(dateLayout, opts.DueDate); err != nil {
		return domain.Cycle{}, fmt.Errorf("invalid due date: %w", err)
	}
	rt, err := e.Repo.GetRoutine(ctx, opts.RoutineID)
	if err != nil {
		return domain.Cycle{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Cycle{}, err
	}
	defer tx.Rollback()
	c := domain.Cycle{
		ID:        newID(),
		RoutineID: rt.ID,
		DueDate:   opts.DueDate,
		Status:    domain.StatusPending,
		Notes:     opts.Notes,
		CreatedAt: e.nowRFC3339(),
	}
	created, err := e.Repo.InsertCycleIfAbsent(ctx, tx, c)
	if err != nil {
		return domain.Cycle{}, err
	}
	if !created {
		return domain.Cycle{}, fmt.Errorf("cycle for routine %s due %s already exists", rt.ID, opts.DueDate)
	}
	if err := e.Events.Append(ctx, tx, "cycle.created", "cycle", c.ID, opts.ActorID, events.EventPayload{
		"routine_id": rt.ID,
		"due_date":   c.DueDate,
		"source":     "manual",
	}); err != nil {
		return domain.Cycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Cycle{}, err
	}
	return c, nil
}
