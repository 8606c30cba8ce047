package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"govline/internal/domain"
	"govline/internal/repo"
)

// DashboardStats are the headline compliance counters for a window.
type DashboardStats struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Total    int            `json:"total"`
	Late     int            `json:"late"`
	DueSoon  int            `json:"due_soon"`
	InReview int            `json:"in_review"`
	Done     int            `json:"done"`
	OnTrack  int            `json:"on_track"`
	ByArea   map[string]int `json:"by_area,omitempty"`
}

// CycleViews loads cycles with their routines and classifies each one.
// Cancelled cycles are excluded from every report.
func (e Engine) CycleViews(ctx context.Context, f repo.CycleFilters) ([]CycleView, error) {
	cycles, err := e.Repo.ListCycles(ctx, f)
	if err != nil {
		return nil, err
	}
	routines := map[string]domain.Routine{}
	today := e.now()
	window := e.Config.DueSoonWindow()
	var views []CycleView
	for _, c := range cycles {
		if c.Status == domain.StatusCancelled {
			continue
		}
		rt, ok := routines[c.RoutineID]
		if !ok {
			rt, err = e.Repo.GetRoutine(ctx, c.RoutineID)
			if err != nil {
				return nil, err
			}
			routines[c.RoutineID] = rt
		}
		days, _ := DaysRemaining(c.DueDate, today)
		views = append(views, CycleView{
			Cycle:         c,
			Routine:       rt,
			Bucket:        ClassifyCycle(c, today, window),
			DaysRemaining: days,
		})
	}
	return views, nil
}

// Dashboard computes KPI counters for the window.
func (e Engine) Dashboard(ctx context.Context, from, to string) (DashboardStats, error) {
	views, err := e.CycleViews(ctx, repo.CycleFilters{From: from, To: to})
	if err != nil {
		return DashboardStats{}, err
	}
	stats := DashboardStats{From: from, To: to, ByArea: map[string]int{}}
	for _, v := range views {
		stats.Total++
		switch v.Bucket {
		case BucketLate:
			stats.Late++
		case BucketDueSoon:
			stats.DueSoon++
		case BucketInReview:
			stats.InReview++
		case BucketDone:
			stats.Done++
		case BucketOnTrack:
			stats.OnTrack++
		}
		if v.Bucket == BucketLate || v.Bucket == BucketDueSoon {
			stats.ByArea[v.Routine.AreaID]++
		}
	}
	return stats, nil
}

// PriorityQueue returns the open cycles that need attention first: late and
// due-soon cycles ordered by risk score, highest first.
func (e Engine) PriorityQueue(ctx context.Context, from, to string, limit int) ([]CycleView, error) {
	views, err := e.CycleViews(ctx, repo.CycleFilters{From: from, To: to})
	if err != nil {
		return nil, err
	}
	var urgent []CycleView
	for _, v := range views {
		if v.Bucket == BucketLate || v.Bucket == BucketDueSoon || v.Bucket == BucketInReview {
			urgent = append(urgent, v)
		}
	}
	SortByPriority(urgent)
	if limit > 0 && len(urgent) > limit {
		urgent = urgent[:limit]
	}
	return urgent, nil
}

// CalendarDay groups the cycles due on one date.
type CalendarDay struct {
	Date   string      `json:"date"`
	Cycles []CycleView `json:"cycles"`
}

// Calendar returns the month's cycles grouped by due date, days in order.
func (e Engine) Calendar(ctx context.Context, year int, month time.Month) ([]CalendarDay, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	views, err := e.CycleViews(ctx, repo.CycleFilters{
		From: first.Format(dateLayout),
		To:   last.Format(dateLayout),
	})
	if err != nil {
		return nil, err
	}
	byDate := map[string][]CycleView{}
	for _, v := range views {
		byDate[v.Cycle.DueDate] = append(byDate[v.Cycle.DueDate], v)
	}
	var days []CalendarDay
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		if cycles, ok := byDate[key]; ok {
			days = append(days, CalendarDay{Date: key, Cycles: cycles})
		}
	}
	return days, nil
}

// ExportCyclesXLSX renders the window's cycles as a spreadsheet.
func (e Engine) ExportCyclesXLSX(ctx context.Context, f repo.CycleFilters) ([]byte, error) {
	views, err := e.CycleViews(ctx, f)
	if err != nil {
		return nil, err
	}
	file := excelize.NewFile()
	defer file.Close()
	const sheet = "Cycles"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	headers := []string{"Routine", "Area", "Due date", "Status", "Bucket", "Days remaining", "Risk score", "Completed at", "Completed by"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for row, v := range views {
		risk := ""
		if v.Routine.RiskScore != nil {
			risk = fmt.Sprintf("%d", *v.Routine.RiskScore)
		}
		values := []any{
			v.Routine.Title,
			v.Routine.AreaID,
			v.Cycle.DueDate,
			v.Cycle.Status,
			string(v.Bucket),
			v.DaysRemaining,
			risk,
			stringOrEmpty(v.Cycle.CompletedAt),
			stringOrEmpty(v.Cycle.CompletedBy),
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
