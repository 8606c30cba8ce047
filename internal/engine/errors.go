package engine

import "fmt"

// InvalidTransitionError rejects a lifecycle move the guard table forbids.
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid cycle status transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid cycle status transition %s -> %s", e.From, e.To)
}

// OutOfOrderError rejects an approval decision on a step whose predecessors
// are still pending.
type OutOfOrderError struct {
	CycleID string
	Order   int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("approval step %d of cycle %s is not the next pending step", e.Order, e.CycleID)
}

// UnauthorizedApproverError rejects a decision by anyone other than the
// designated approver of the step.
type UnauthorizedApproverError struct {
	CycleID string
	Order   int
	ActorID string
}

func (e *UnauthorizedApproverError) Error() string {
	return fmt.Sprintf("actor %s is not the approver of step %d of cycle %s", e.ActorID, e.Order, e.CycleID)
}
