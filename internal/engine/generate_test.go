package engine_test

import (
	"testing"
	"time"

	"govline/internal/engine"
	"govline/internal/repo"
)

func TestEnsureCyclesWeekly(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "weekly"})

	report, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-01", "2024-06-30", "tester")
	if err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	// Anchored on the routine's creation date, stepping 7 days.
	if report.Created != 5 {
		t.Fatalf("expected 5 weekly cycles, got %d", report.Created)
	}
	cycles, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: rt.ID})
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	want := []string{"2024-06-01", "2024-06-08", "2024-06-15", "2024-06-22", "2024-06-29"}
	if len(cycles) != len(want) {
		t.Fatalf("expected %d cycles, got %d", len(want), len(cycles))
	}
	for i, c := range cycles {
		if c.DueDate != want[i] {
			t.Fatalf("cycle %d: expected due %s, got %s", i, want[i], c.DueDate)
		}
		if c.Status != "pending" {
			t.Fatalf("new cycle status %s", c.Status)
		}
	}
}

func TestEnsureCyclesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createRoutine(t, engine.RoutineOptions{Frequency: "weekly"})

	first, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-01", "2024-06-30", "tester")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-01", "2024-06-30", "tester")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 {
		t.Fatalf("second run created %d cycles", second.Created)
	}
	if second.Skipped != first.Created {
		t.Fatalf("second run skipped %d, expected %d", second.Skipped, first.Created)
	}
}

func TestEnsureCyclesMonthlyClampsToMonthEnd(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "monthly", DayOfMonth: intPtr(31)})

	if _, err := env.Engine.EnsureCycles(env.Ctx, "2024-01-01", "2024-03-31", "tester"); err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	cycles, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: rt.ID})
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	// February clamps to the 29th in a leap year.
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31"}
	if len(cycles) != len(want) {
		t.Fatalf("expected %d cycles, got %d", len(want), len(cycles))
	}
	for i, c := range cycles {
		if c.DueDate != want[i] {
			t.Fatalf("cycle %d: expected due %s, got %s", i, want[i], c.DueDate)
		}
	}
}

func TestEnsureCyclesMonthlyDefaultsToLastDay(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "monthly"})

	if _, err := env.Engine.EnsureCycles(env.Ctx, "2023-02-01", "2023-02-28", "tester"); err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	cycles, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: rt.ID})
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	if len(cycles) != 1 || cycles[0].DueDate != "2023-02-28" {
		t.Fatalf("expected one cycle due 2023-02-28, got %+v", cycles)
	}
}

func TestEnsureCyclesQuarterlyAndYearly(t *testing.T) {
	env := newTestEnv(t)
	q := env.createRoutine(t, engine.RoutineOptions{Title: "Quarterly audit", Frequency: "quarterly"})
	y := env.createRoutine(t, engine.RoutineOptions{AreaID: q.AreaID, Title: "Annual report", Frequency: "yearly"})

	if _, err := env.Engine.EnsureCycles(env.Ctx, "2024-01-01", "2024-12-31", "tester"); err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	qc, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: q.ID})
	if err != nil {
		t.Fatalf("list quarterly: %v", err)
	}
	if len(qc) != 4 || qc[0].DueDate != "2024-01-01" || qc[3].DueDate != "2024-10-01" {
		t.Fatalf("unexpected quarterly cycles: %+v", qc)
	}
	yc, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: y.ID})
	if err != nil {
		t.Fatalf("list yearly: %v", err)
	}
	if len(yc) != 1 || yc[0].DueDate != "2024-01-01" {
		t.Fatalf("unexpected yearly cycles: %+v", yc)
	}
}

func TestEnsureCyclesSkipsEventAndInactiveRoutines(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createRoutine(t, engine.RoutineOptions{Title: "Incident response", Frequency: "event"})
	weekly := env.createRoutine(t, engine.RoutineOptions{AreaID: ev.AreaID, Title: "Paused check", Frequency: "weekly"})
	if err := env.Engine.SetRoutineActive(env.Ctx, weekly.ID, false, "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	report, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-01", "2024-06-30", "tester")
	if err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	if report.Created != 0 {
		t.Fatalf("expected no cycles, created %d", report.Created)
	}
}

func TestEnsureCyclesRejectsInvertedWindow(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-30", "2024-06-01", "tester"); err == nil {
		t.Fatalf("expected window error")
	}
	if _, err := env.Engine.EnsureCycles(env.Ctx, "June 1", "2024-06-30", "tester"); err == nil {
		t.Fatalf("expected date parse error")
	}
}

func TestCreateCycleManual(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})

	c := env.createCycle(t, rt.ID, "2024-06-20")
	if c.Status != "pending" {
		t.Fatalf("new cycle status %s", c.Status)
	}
	// Same routine and due date conflicts.
	_, err := env.Engine.CreateCycle(env.Ctx, engine.CreateCycleOptions{RoutineID: rt.ID, DueDate: "2024-06-20", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected duplicate cycle error")
	}
	_, err = env.Engine.CreateCycle(env.Ctx, engine.CreateCycleOptions{RoutineID: rt.ID, DueDate: "not-a-date", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected due date error")
	}
}

func TestGenerationReportCollectsPerRoutineErrors(t *testing.T) {
	env := newTestEnv(t)
	bad := env.createRoutine(t, engine.RoutineOptions{Title: "Broken anchor", Frequency: "weekly"})
	good := env.createRoutine(t, engine.RoutineOptions{AreaID: bad.AreaID, Title: "Fine", Frequency: "monthly"})

	// Corrupt the weekly routine's anchor so its dates cannot be computed.
	if _, err := env.Engine.DB.Exec(`UPDATE routines SET created_at='garbage' WHERE id=?`, bad.ID); err != nil {
		t.Fatalf("corrupt anchor: %v", err)
	}

	report, err := env.Engine.EnsureCycles(env.Ctx, "2024-06-01", "2024-06-30", "tester")
	if err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	if len(report.Errors) != 1 || report.Errors[0].RoutineID != bad.ID {
		t.Fatalf("expected one error for the broken routine, got %+v", report.Errors)
	}
	cycles, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: good.ID})
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	if len(cycles) == 0 {
		t.Fatalf("healthy routine should still generate")
	}
}

func TestGeneratedDueDatesAreParseable(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "quarterly"})
	if _, err := env.Engine.EnsureCycles(env.Ctx, "2024-01-01", "2025-12-31", "tester"); err != nil {
		t.Fatalf("ensure cycles: %v", err)
	}
	cycles, err := env.Engine.Repo.ListCycles(env.Ctx, repo.CycleFilters{RoutineID: rt.ID})
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	for _, c := range cycles {
		if _, err := time.Parse("2006-01-02", c.DueDate); err != nil {
			t.Fatalf("due date %q not parseable: %v", c.DueDate, err)
		}
	}
}
