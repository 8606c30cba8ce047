package engine_test

import (
	"errors"
	"testing"

	"govline/internal/engine"
)

func setStatus(t *testing.T, env testEnv, cycleID, status string) {
	t.Helper()
	if _, err := env.Engine.SetCycleStatus(env.Ctx, engine.SetStatusOptions{CycleID: cycleID, Status: status, ActorID: "tester"}); err != nil {
		t.Fatalf("to %s: %v", status, err)
	}
}

func expectInvalidTransition(t *testing.T, env testEnv, cycleID, status string) {
	t.Helper()
	_, err := env.Engine.SetCycleStatus(env.Ctx, engine.SetStatusOptions{CycleID: cycleID, Status: status, ActorID: "tester"})
	var ite *engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("to %s: expected InvalidTransitionError, got %v", status, err)
	}
}

func TestCycleLifecycleWithoutChain(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	// pending can only start.
	expectInvalidTransition(t, env, c.ID, "done")
	expectInvalidTransition(t, env, c.ID, "in_review")
	expectInvalidTransition(t, env, c.ID, "pending")

	setStatus(t, env, c.ID, "in_progress")
	// no approval chain, review is unreachable
	expectInvalidTransition(t, env, c.ID, "in_review")

	done, err := env.Engine.SetCycleStatus(env.Ctx, engine.SetStatusOptions{CycleID: c.ID, Status: "done", ActorID: "alice"})
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if done.CompletedAt == nil || done.CompletedBy == nil || *done.CompletedBy != "alice" {
		t.Fatalf("expected completion stamp, got %+v", done)
	}

	expectInvalidTransition(t, env, c.ID, "cancelled")

	// reopening clears the completion stamp
	setStatus(t, env, c.ID, "in_progress")
	reopened, err := env.Engine.Repo.GetCycle(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("get cycle: %v", err)
	}
	if reopened.CompletedAt != nil || reopened.CompletedBy != nil {
		t.Fatalf("reopen must clear completion stamp: %+v", reopened)
	}
}

func TestCycleLifecycleWithChain(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event", ApproverIDs: []string{"alice", "bob"}})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	setStatus(t, env, c.ID, "in_progress")
	// with a chain, done is only reachable through review
	expectInvalidTransition(t, env, c.ID, "done")

	setStatus(t, env, c.ID, "in_review")
	steps, err := env.Engine.Repo.ListApprovalSteps(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 approval steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s.Order != i+1 || s.Status != "pending" {
			t.Fatalf("step %d: %+v", i, s)
		}
	}

	// review cannot complete while decisions are pending
	expectInvalidTransition(t, env, c.ID, "done")

	// pulling back and resubmitting restarts the chain
	if _, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "alice"}); err != nil {
		t.Fatalf("approve step 1: %v", err)
	}
	setStatus(t, env, c.ID, "in_progress")
	setStatus(t, env, c.ID, "in_review")
	steps, err = env.Engine.Repo.ListApprovalSteps(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	for _, s := range steps {
		if s.Status != "pending" {
			t.Fatalf("resubmission must reset steps, got %+v", s)
		}
	}
}

func TestCancelFromAnyOpenStatus(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event", ApproverIDs: []string{"alice"}})

	pending := env.createCycle(t, rt.ID, "2024-06-10")
	setStatus(t, env, pending.ID, "cancelled")

	inReview := env.createCycle(t, rt.ID, "2024-06-11")
	setStatus(t, env, inReview.ID, "in_progress")
	setStatus(t, env, inReview.ID, "in_review")
	setStatus(t, env, inReview.ID, "cancelled")

	// cancelled is terminal
	expectInvalidTransition(t, env, pending.ID, "in_progress")
	expectInvalidTransition(t, env, pending.ID, "cancelled")
}

func TestLifecycleHistory(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	setStatus(t, env, c.ID, "in_progress")
	setStatus(t, env, c.ID, "done")
	setStatus(t, env, c.ID, "in_progress")

	history, err := env.Engine.Repo.ListHistory(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	want := []string{"status_changed", "completed", "reopened"}
	if len(actions) != len(want) {
		t.Fatalf("expected %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, actions)
		}
	}
}

func TestSetCycleStatusUnknownStatusAndCycle(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event"})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	if _, err := env.Engine.SetCycleStatus(env.Ctx, engine.SetStatusOptions{CycleID: c.ID, Status: "late", ActorID: "tester"}); err == nil {
		t.Fatalf("late is derived, never stored")
	}
	if _, err := env.Engine.SetCycleStatus(env.Ctx, engine.SetStatusOptions{CycleID: "missing", Status: "in_progress", ActorID: "tester"}); err == nil {
		t.Fatalf("expected not found")
	}
}
