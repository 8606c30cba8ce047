package engine

import (
	"context"
	"database/sql"
	"errors"

	"govline/internal/domain"
	"govline/internal/events"
)

// SetStatusOptions are parameters for a cycle lifecycle transition.
type SetStatusOptions struct {
	CycleID string
	Status  string
	Notes   *string
	ActorID string
}

// SetCycleStatus moves a cycle through its lifecycle. The guard table is
// strict: review is reachable only for routines with an approval chain, and
// done is reachable directly only for routines without one. Every accepted
// transition appends a history entry and an event in the same transaction.
func (e Engine) SetCycleStatus(ctx context.Context, opts SetStatusOptions) (domain.Cycle, error) {
	switch opts.Status {
	case domain.StatusPending, domain.StatusInProgress, domain.StatusInReview, domain.StatusDone, domain.StatusCancelled:
	default:
		return domain.Cycle{}, errors.New("unknown cycle status " + opts.Status)
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
	rt, err := e.Repo.GetRoutine(ctx, c.RoutineID)
	if err != nil {
		return domain.Cycle{}, err
	}
	if err := ensureCycleTransition(c.Status, opts.Status, rt.HasApprovalChain()); err != nil {
		return domain.Cycle{}, err
	}
	if c.Status == domain.StatusInReview && opts.Status == domain.StatusDone {
		allApproved, err := e.allStepsApproved(ctx, tx, c.ID)
		if err != nil {
			return domain.Cycle{}, err
		}
		if !allApproved {
			return domain.Cycle{}, &InvalidTransitionError{From: c.Status, To: opts.Status, Reason: "approval decisions pending"}
		}
	}

	now := e.nowRFC3339()
	var completedAt, completedBy *string
	if opts.Status == domain.StatusDone {
		completedAt = &now
		completedBy = &opts.ActorID
	}
	if err := e.Repo.UpdateCycleStatusTx(ctx, tx, c.ID, opts.Status, completedAt, completedBy, opts.Notes); err != nil {
		return domain.Cycle{}, err
	}

	// Entering review re-copies the approval chain fresh. A cycle sent back
	// and resubmitted starts its approvals over.
	if opts.Status == domain.StatusInReview {
		if err := e.resetApprovalSteps(ctx, tx, c.ID, rt); err != nil {
			return domain.Cycle{}, err
		}
	}

	if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
		CycleID:    c.ID,
		ActorID:    opts.ActorID,
		Action:     historyAction(c.Status, opts.Status),
		FromStatus: c.Status,
		ToStatus:   opts.Status,
		CreatedAt:  now,
	}); err != nil {
		return domain.Cycle{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.status_changed", "cycle", c.ID, opts.ActorID, events.EventPayload{
		"from": c.Status,
		"to":   opts.Status,
	}); err != nil {
		return domain.Cycle{}, err
	}
	if err := e.notifyApproversTx(ctx, tx, c, rt, opts.Status); err != nil {
		return domain.Cycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Cycle{}, err
	}

	c.Status = opts.Status
	c.CompletedAt = completedAt
	c.CompletedBy = completedBy
	if opts.Status != domain.StatusDone {
		c.CompletedAt = nil
		c.CompletedBy = nil
	}
	if opts.Notes != nil {
		c.Notes = *opts.Notes
	}
	return c, nil
}

func ensureCycleTransition(oldStatus, newStatus string, hasChain bool) error {
	if oldStatus == newStatus {
		return &InvalidTransitionError{From: oldStatus, To: newStatus, Reason: "already in that status"}
	}
	if newStatus == domain.StatusCancelled {
		if oldStatus == domain.StatusDone || oldStatus == domain.StatusCancelled {
			return &InvalidTransitionError{From: oldStatus, To: newStatus, Reason: "terminal"}
		}
		return nil
	}
	switch oldStatus {
	case domain.StatusPending:
		if newStatus == domain.StatusInProgress {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusInReview {
			if !hasChain {
				return &InvalidTransitionError{From: oldStatus, To: newStatus, Reason: "routine has no approval chain"}
			}
			return nil
		}
		if newStatus == domain.StatusDone {
			if hasChain {
				return &InvalidTransitionError{From: oldStatus, To: newStatus, Reason: "routine requires review"}
			}
			return nil
		}
	case domain.StatusInReview:
		if newStatus == domain.StatusInProgress || newStatus == domain.StatusDone {
			return nil
		}
	case domain.StatusDone:
		if newStatus == domain.StatusInProgress {
			return nil
		}
	}
	return &InvalidTransitionError{From: oldStatus, To: newStatus}
}

func historyAction(from, to string) string {
	switch {
	case from == domain.StatusDone && to == domain.StatusInProgress:
		return "reopened"
	case to == domain.StatusCancelled:
		return "cancelled"
	case to == domain.StatusDone:
		return "completed"
	case to == domain.StatusInReview:
		return "submitted_for_review"
	}
	return "status_changed"
}

func (e Engine) resetApprovalSteps(ctx context.Context, tx *sql.Tx, cycleID string, rt domain.Routine) error {
	steps := make([]domain.ApprovalStep, 0, len(rt.ApproverIDs))
	for i, userID := range rt.ApproverIDs {
		name := ""
		if p, err := e.Repo.GetProfile(ctx, userID); err == nil {
			name = p.FullName
		}
		steps = append(steps, domain.ApprovalStep{
			CycleID:  cycleID,
			Order:    i + 1,
			UserID:   userID,
			UserName: name,
			Status:   domain.StepPending,
		})
	}
	return e.Repo.ReplaceApprovalStepsTx(ctx, tx, cycleID, steps)
}

func (e Engine) allStepsApproved(ctx context.Context, tx *sql.Tx, cycleID string) (bool, error) {
	steps, err := e.Repo.ListApprovalStepsTx(ctx, tx, cycleID)
	if err != nil {
		return false, err
	}
	if len(steps) == 0 {
		return false, nil
	}
	for _, s := range steps {
		if s.Status != domain.StepApproved {
			return false, nil
		}
	}
	return true, nil
}

func (e Engine) notifyApproversTx(ctx context.Context, tx *sql.Tx, c domain.Cycle, rt domain.Routine, newStatus string) error {
	if newStatus != domain.StatusInReview || len(rt.ApproverIDs) == 0 {
		return nil
	}
	// Only the first approver acts now; later steps are notified as their
	// turn comes in RecordDecision.
	n := domain.Notification{
		ID:        newID(),
		UserID:    rt.ApproverIDs[0],
		Title:     "Approval requested",
		Message:   rt.Title + " is waiting for your review",
		Kind:      "info",
		CreatedAt: e.nowRFC3339(),
	}
	return e.Repo.InsertNotificationTx(ctx, tx, n)
}
