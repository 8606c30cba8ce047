package engine_test

import (
	"bytes"
	"testing"
	"time"

	"govline/internal/engine"
	"govline/internal/repo"
)

func TestDashboardCounters(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event", ApproverIDs: []string{"alice"}})

	env.createCycle(t, rt.ID, "2024-05-20") // late
	env.createCycle(t, rt.ID, "2024-06-03") // due soon
	env.createCycle(t, rt.ID, "2024-06-25") // on track

	inReview := env.createCycle(t, rt.ID, "2024-06-10")
	setStatus(t, env, inReview.ID, "in_progress")
	setStatus(t, env, inReview.ID, "in_review")

	cancelled := env.createCycle(t, rt.ID, "2024-06-11")
	setStatus(t, env, cancelled.ID, "cancelled")

	stats, err := env.Engine.Dashboard(env.Ctx, "2024-05-01", "2024-06-30")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	// cancelled cycles are excluded from reporting entirely
	if stats.Total != 4 {
		t.Fatalf("expected 4 counted cycles, got %d", stats.Total)
	}
	if stats.Late != 1 || stats.DueSoon != 1 || stats.InReview != 1 || stats.OnTrack != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.ByArea[rt.AreaID] != 2 {
		t.Fatalf("expected 2 attention cycles for area, got %d", stats.ByArea[rt.AreaID])
	}
}

func TestPriorityQueueOrdering(t *testing.T) {
	env := newTestEnv(t)
	area := env.createArea(t)
	risky := env.createRoutine(t, engine.RoutineOptions{AreaID: area.ID, Title: "High risk", Frequency: "event", RiskScore: intPtr(95)})
	mild := env.createRoutine(t, engine.RoutineOptions{AreaID: area.ID, Title: "Mild", Frequency: "event", RiskScore: intPtr(10)})
	unscored := env.createRoutine(t, engine.RoutineOptions{AreaID: area.ID, Title: "Unscored", Frequency: "event"})

	env.createCycle(t, mild.ID, "2024-05-20")
	env.createCycle(t, risky.ID, "2024-05-25")
	env.createCycle(t, unscored.ID, "2024-05-15")
	env.createCycle(t, risky.ID, "2024-06-25") // on track, excluded

	queue, err := env.Engine.PriorityQueue(env.Ctx, "2024-05-01", "2024-06-30", 10)
	if err != nil {
		t.Fatalf("priority queue: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("expected 3 urgent cycles, got %d", len(queue))
	}
	if queue[0].Routine.ID != risky.ID || queue[1].Routine.ID != mild.ID || queue[2].Routine.ID != unscored.ID {
		t.Fatalf("unexpected order: %s, %s, %s", queue[0].Routine.Title, queue[1].Routine.Title, queue[2].Routine.Title)
	}

	limited, err := env.Engine.PriorityQueue(env.Ctx, "2024-05-01", "2024-06-30", 1)
	if err != nil {
		t.Fatalf("priority queue limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Routine.ID != risky.ID {
		t.Fatalf("limit must keep the riskiest, got %+v", limited)
	}
}

func TestCalendarGroupsByDueDate(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})
	env.createCycle(t, rt.ID, "2024-06-03")
	env.createCycle(t, rt.ID, "2024-06-20")
	other := env.createRoutine(t, engine.RoutineOptions{AreaID: rt.AreaID, Title: "Other", Frequency: "event"})
	env.createCycle(t, other.ID, "2024-06-03")

	days, err := env.Engine.Calendar(env.Ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 calendar days, got %d", len(days))
	}
	if days[0].Date != "2024-06-03" || len(days[0].Cycles) != 2 {
		t.Fatalf("unexpected first day: %+v", days[0])
	}
	if days[1].Date != "2024-06-20" || len(days[1].Cycles) != 1 {
		t.Fatalf("unexpected second day: %+v", days[1])
	}
}

func TestExportCyclesXLSX(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event", RiskScore: intPtr(42)})
	env.createCycle(t, rt.ID, "2024-06-03")

	data, err := env.Engine.ExportCyclesXLSX(env.Ctx, repo.CycleFilters{From: "2024-06-01", To: "2024-06-30"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	// XLSX files are zip archives
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("expected zip magic, got %q", data[:2])
	}
}
