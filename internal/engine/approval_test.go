package engine_test

import (
	"errors"
	"testing"

	"govline/internal/domain"
	"govline/internal/engine"
	"govline/internal/repo"
)

func cycleInReview(t *testing.T, env testEnv, approvers []string) domain.Cycle {
	t.Helper()
	rt := env.createRoutine(t, engine.RoutineOptions{
		Frequency:   "event",
		OwnerIDs:    []string{"owner-1"},
		ApproverIDs: approvers,
	})
	c := env.createCycle(t, rt.ID, "2024-06-15")
	setStatus(t, env, c.ID, "in_progress")
	setStatus(t, env, c.ID, "in_review")
	return c
}

func TestApprovalChainSequence(t *testing.T) {
	env := newTestEnv(t)
	c := cycleInReview(t, env, []string{"alice", "bob"})

	// step 2 cannot go before step 1
	_, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 2, Decision: "approved", ActorID: "bob"})
	var ooo *engine.OutOfOrderError
	if !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderError, got %v", err)
	}

	// only the designated approver may decide
	_, err = env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "bob"})
	var ua *engine.UnauthorizedApproverError
	if !errors.As(err, &ua) {
		t.Fatalf("expected UnauthorizedApproverError, got %v", err)
	}

	mid, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "alice"})
	if err != nil {
		t.Fatalf("approve step 1: %v", err)
	}
	if mid.Status != "in_review" {
		t.Fatalf("cycle must stay in review until the last step, got %s", mid.Status)
	}

	// a decided step cannot be decided again
	_, err = env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "alice"})
	if !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderError on re-decision, got %v", err)
	}

	done, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 2, Decision: "approved", ActorID: "bob"})
	if err != nil {
		t.Fatalf("approve step 2: %v", err)
	}
	if done.Status != "done" || done.CompletedBy == nil || *done.CompletedBy != "bob" {
		t.Fatalf("final approval must complete the cycle, got %+v", done)
	}
}

func TestRejectionSendsBack(t *testing.T) {
	env := newTestEnv(t)
	c := cycleInReview(t, env, []string{"alice", "bob"})

	back, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{
		CycleID: c.ID, Order: 1, Decision: "rejected", Comment: "missing evidence", ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if back.Status != "in_progress" {
		t.Fatalf("rejection must send the cycle back, got %s", back.Status)
	}

	// rejection comment lands in the discussion thread
	comments, err := env.Engine.Repo.ListComments(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Message != "missing evidence" {
		t.Fatalf("expected rejection comment, got %+v", comments)
	}

	// owners are warned
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, "owner-1", false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	warned := false
	for _, n := range notes {
		if n.Kind == "warning" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected warning notification for owner, got %+v", notes)
	}

	history, err := env.Engine.Repo.ListHistory(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	var actions []string
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	found := map[string]bool{}
	for _, a := range actions {
		found[a] = true
	}
	if !found["approval_rejected"] || !found["sent_back"] {
		t.Fatalf("expected approval_rejected and sent_back in %v", actions)
	}
}

func TestDecisionsRequireReview(t *testing.T) {
	env := newTestEnv(t)
	rt := env.createRoutine(t, engine.RoutineOptions{Frequency: "event", ApproverIDs: []string{"alice"}})
	c := env.createCycle(t, rt.ID, "2024-06-15")

	_, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "alice"})
	var ite *engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError outside review, got %v", err)
	}

	_, err = env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "maybe", ActorID: "alice"})
	if err == nil {
		t.Fatalf("expected decision validation error")
	}
}

func TestDecisionOnUnknownStep(t *testing.T) {
	env := newTestEnv(t)
	c := cycleInReview(t, env, []string{"alice"})

	_, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 9, Decision: "approved", ActorID: "alice"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown step, got %v", err)
	}
}

func TestApprovalNotifiesNextApprover(t *testing.T) {
	env := newTestEnv(t)
	c := cycleInReview(t, env, []string{"alice", "bob"})

	// submitting for review notifies only the first approver
	if notes, _ := env.Engine.Repo.ListNotifications(env.Ctx, "bob", false); len(notes) != 0 {
		t.Fatalf("bob notified too early: %+v", notes)
	}
	if notes, _ := env.Engine.Repo.ListNotifications(env.Ctx, "alice", false); len(notes) != 1 {
		t.Fatalf("expected one notification for alice, got %+v", notes)
	}

	if _, err := env.Engine.RecordDecision(env.Ctx, engine.DecisionOptions{CycleID: c.ID, Order: 1, Decision: "approved", ActorID: "alice"}); err != nil {
		t.Fatalf("approve step 1: %v", err)
	}
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, "bob", false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one notification for bob, got %+v", notes)
	}
}
