package engine

import (
	"context"
	"errors"

	"govline/internal/domain"
	"govline/internal/events"
	"govline/internal/repo"
)

// DecisionOptions are parameters for recording one approval decision.
type DecisionOptions struct {
	CycleID  string
	Order    int
	Decision string
	Comment  string
	ActorID  string
}

// RecordDecision applies an approve or reject to the next pending step of a
// cycle in review. The chain is strictly sequential: only the lowest pending
// step accepts a decision, and only from its designated approver. The final
// approval completes the cycle; any rejection sends it back to in_progress.
func (e Engine) RecordDecision(ctx context.Context, opts DecisionOptions) (domain.Cycle, error) {
	if opts.Decision != domain.StepApproved && opts.Decision != domain.StepRejected {
		return domain.Cycle{}, errors.New("decision must be approved or rejected")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Cycle{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, opts.CycleID)
	if err != nil {
		return domain.Cycle{}, err
	}
	if c.Status != domain.StatusInReview {
		return domain.Cycle{}, &InvalidTransitionError{From: c.Status, To: c.Status, Reason: "decisions are accepted only while in review"}
	}
	steps, err := e.Repo.ListApprovalStepsTx(ctx, tx, c.ID)
	if err != nil {
		return domain.Cycle{}, err
	}
	var step *domain.ApprovalStep
	nextPending := 0
	for i := range steps {
		if steps[i].Status == domain.StepPending && nextPending == 0 {
			nextPending = steps[i].Order
		}
		if steps[i].Order == opts.Order {
			step = &steps[i]
		}
	}
	if step == nil {
		return domain.Cycle{}, repo.ErrNotFound
	}
	if step.Status != domain.StepPending || step.Order != nextPending {
		return domain.Cycle{}, &OutOfOrderError{CycleID: c.ID, Order: opts.Order}
	}
	if step.UserID != opts.ActorID {
		return domain.Cycle{}, &UnauthorizedApproverError{CycleID: c.ID, Order: opts.Order, ActorID: opts.ActorID}
	}

	now := e.nowRFC3339()
	if err := e.Repo.UpdateApprovalStepTx(ctx, tx, c.ID, step.Order, opts.Decision, &now); err != nil {
		return domain.Cycle{}, err
	}
	action := "approval_approved"
	if opts.Decision == domain.StepRejected {
		action = "approval_rejected"
	}
	if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
		CycleID:   c.ID,
		ActorID:   opts.ActorID,
		ActorName: step.UserName,
		Action:    action,
		Details:   opts.Comment,
		CreatedAt: now,
	}); err != nil {
		return domain.Cycle{}, err
	}
	if opts.Comment != "" {
		if err := e.Repo.InsertComment(ctx, tx, domain.Comment{
			ID:        newID(),
			CycleID:   c.ID,
			AuthorID:  opts.ActorID,
			Message:   opts.Comment,
			CreatedAt: now,
		}); err != nil {
			return domain.Cycle{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "cycle.approval_recorded", "cycle", c.ID, opts.ActorID, events.EventPayload{
		"order":    step.Order,
		"decision": opts.Decision,
	}); err != nil {
		return domain.Cycle{}, err
	}

	rt, err := e.Repo.GetRoutine(ctx, c.RoutineID)
	if err != nil {
		return domain.Cycle{}, err
	}

	if opts.Decision == domain.StepRejected {
		if err := e.Repo.UpdateCycleStatusTx(ctx, tx, c.ID, domain.StatusInProgress, nil, nil, nil); err != nil {
			return domain.Cycle{}, err
		}
		if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
			CycleID:    c.ID,
			ActorID:    opts.ActorID,
			Action:     "sent_back",
			FromStatus: domain.StatusInReview,
			ToStatus:   domain.StatusInProgress,
			CreatedAt:  now,
		}); err != nil {
			return domain.Cycle{}, err
		}
		if err := e.Events.Append(ctx, tx, "cycle.status_changed", "cycle", c.ID, opts.ActorID, events.EventPayload{
			"from": domain.StatusInReview,
			"to":   domain.StatusInProgress,
		}); err != nil {
			return domain.Cycle{}, err
		}
		for _, ownerID := range rt.OwnerIDs {
			if err := e.Repo.InsertNotificationTx(ctx, tx, domain.Notification{
				ID:        newID(),
				UserID:    ownerID,
				Title:     "Cycle sent back",
				Message:   rt.Title + " was rejected in review",
				Kind:      "warning",
				CreatedAt: now,
			}); err != nil {
				return domain.Cycle{}, err
			}
		}
		if err := tx.Commit(); err != nil {
			return domain.Cycle{}, err
		}
		c.Status = domain.StatusInProgress
		return c, nil
	}

	last := step.Order == len(steps)
	if last {
		if err := e.Repo.UpdateCycleStatusTx(ctx, tx, c.ID, domain.StatusDone, &now, &opts.ActorID, nil); err != nil {
			return domain.Cycle{}, err
		}
		if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
			CycleID:    c.ID,
			ActorID:    opts.ActorID,
			Action:     "completed",
			FromStatus: domain.StatusInReview,
			ToStatus:   domain.StatusDone,
			CreatedAt:  now,
		}); err != nil {
			return domain.Cycle{}, err
		}
		if err := e.Events.Append(ctx, tx, "cycle.status_changed", "cycle", c.ID, opts.ActorID, events.EventPayload{
			"from": domain.StatusInReview,
			"to":   domain.StatusDone,
		}); err != nil {
			return domain.Cycle{}, err
		}
		for _, ownerID := range rt.OwnerIDs {
			if err := e.Repo.InsertNotificationTx(ctx, tx, domain.Notification{
				ID:        newID(),
				UserID:    ownerID,
				Title:     "Cycle approved",
				Message:   rt.Title + " passed all approvals",
				Kind:      "success",
				CreatedAt: now,
			}); err != nil {
				return domain.Cycle{}, err
			}
		}
	} else {
		next := steps[step.Order].UserID
		if err := e.Repo.InsertNotificationTx(ctx, tx, domain.Notification{
			ID:        newID(),
			UserID:    next,
			Title:     "Approval requested",
			Message:   rt.Title + " is waiting for your review",
			Kind:      "info",
			CreatedAt: now,
		}); err != nil {
			return domain.Cycle{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Cycle{}, err
	}
	if last {
		c.Status = domain.StatusDone
		c.CompletedAt = &now
		c.CompletedBy = &opts.ActorID
	}
	return c, nil
}
