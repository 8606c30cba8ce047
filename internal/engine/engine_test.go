package engine_test

import (
	"context"
	"testing"
	"time"

	"govline/internal/config"
	"govline/internal/db"
	"govline/internal/domain"
	"govline/internal/engine"
	"govline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) createArea(t *testing.T) domain.Area {
	t.Helper()
	a, err := env.Engine.CreateArea(env.Ctx, "Security", "", 1, "tester")
	if err != nil {
		t.Fatalf("create area: %v", err)
	}
	return a
}

func (env testEnv) createRoutine(t *testing.T, opts engine.RoutineOptions) domain.Routine {
	t.Helper()
	if opts.AreaID == "" {
		opts.AreaID = env.createArea(t).ID
	}
	if opts.Title == "" {
		opts.Title = "Access review"
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	rt, err := env.Engine.CreateRoutine(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	return rt
}

func (env testEnv) createCycle(t *testing.T, routineID, dueDate string) domain.Cycle {
	t.Helper()
	c, err := env.Engine.CreateCycle(env.Ctx, engine.CreateCycleOptions{
		RoutineID: routineID,
		DueDate:   dueDate,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	return c
}

func intPtr(v int) *int { return &v }

func TestRoutineValidation(t *testing.T) {
	env := newTestEnv(t)
	area := env.createArea(t)

	_, err := env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{AreaID: area.ID, Title: "x", Frequency: "daily", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected invalid frequency error")
	}
	_, err = env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{AreaID: area.ID, Title: "x", Frequency: "monthly", DayOfMonth: intPtr(32), ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected day_of_month error")
	}
	_, err = env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{AreaID: area.ID, Title: "x", Frequency: "monthly", RiskScore: intPtr(101), ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected risk_score error")
	}
	_, err = env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{
		AreaID: area.ID, Title: "x", Frequency: "monthly",
		ApproverIDs: []string{"alice", "alice"}, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected duplicate approver error")
	}
	_, err = env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{AreaID: "missing", Title: "x", Frequency: "monthly", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected unknown area error")
	}

	rt, err := env.Engine.CreateRoutine(env.Ctx, engine.RoutineOptions{AreaID: area.ID, Title: "x", Frequency: "monthly", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	if rt.Priority != "medium" {
		t.Fatalf("expected default priority medium, got %s", rt.Priority)
	}
	if !rt.IsActive {
		t.Fatalf("expected new routine active")
	}
}

func TestUpdateRoutinePreservesCreatedAtAndActive(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "monthly"})
	if err := env.Engine.SetRoutineActive(env.Ctx, rt.ID, false, "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	updated, err := env.Engine.UpdateRoutine(env.Ctx, engine.RoutineOptions{
		ID:        rt.ID,
		AreaID:    rt.AreaID,
		Title:     "Renamed",
		Frequency: "quarterly",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("update routine: %v", err)
	}
	if updated.CreatedAt != rt.CreatedAt {
		t.Fatalf("created_at changed on update")
	}
	if updated.IsActive {
		t.Fatalf("update must not reactivate routine")
	}
	if updated.Frequency != "quarterly" || updated.Title != "Renamed" {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestEvidenceAndComments(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	_, err := env.Engine.AddEvidence(env.Ctx, domain.Evidence{CycleID: c.ID, Type: "screenshot", CreatedBy: "tester"})
	if err == nil {
		t.Fatalf("expected invalid evidence type error")
	}
	ev, err := env.Engine.AddEvidence(env.Ctx, domain.Evidence{CycleID: c.ID, Type: "link", URL: "https://example.com/report", CreatedBy: "tester"})
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	if ev.ID == "" {
		t.Fatalf("expected generated evidence id")
	}

	if _, err := env.Engine.AddComment(env.Ctx, c.ID, "tester", ""); err == nil {
		t.Fatalf("expected empty message error")
	}
	if _, err := env.Engine.AddComment(env.Ctx, c.ID, "tester", "looks fine"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	history, err := env.Engine.Repo.ListHistory(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	found := false
	for _, h := range history {
		if h.Action == "evidence_added" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected evidence_added history entry")
	}
}
