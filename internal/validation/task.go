package validation

import (
	"fmt"

	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// Task status transitions. Only
// the transitions named here are legal; task_update rejects the rest
// before the quality-gate runner ever sees the request.
var taskTransitions = map[string][]string{
	store.TaskStatusPending:    {store.TaskStatusInProgress, store.TaskStatusBlocked, store.TaskStatusCancelled, store.TaskStatusCompleted},
	store.TaskStatusInProgress: {store.TaskStatusCompleted, store.TaskStatusBlocked, store.TaskStatusCancelled},
	store.TaskStatusBlocked:    {store.TaskStatusPending, store.TaskStatusInProgress, store.TaskStatusCancelled, store.TaskStatusCompleted},
	store.TaskStatusCompleted:  {store.TaskStatusPending, store.TaskStatusInProgress},
	store.TaskStatusCancelled:  {},
}

type taskValidator struct{}

// NewTaskValidator creates the transition guard for Task entities.
func NewTaskValidator() Validator {
	return &taskValidator{}
}

func (v *taskValidator) Validate(from, to string, ctx *TransitionContext, taskID string) error {
	if !isAllowedTransition(from, to, taskTransitions) {
		return transitionError(from, to)
	}

	switch to {
	case store.TaskStatusCompleted:
		return v.guardCompleted(ctx, taskID)
	}
	return nil
}

// guardCompleted requires every subtask to already be completed
// before the parent may complete.
func (v *taskValidator) guardCompleted(ctx *TransitionContext, taskID string) error {
	if ctx.Force {
		return nil
	}

	total, completed, err := ctx.Store.SubtaskCounts(ctx.Ctx, taskID)
	if err != nil {
		return fmt.Errorf("checking subtasks: %w", err)
	}
	if total > 0 && completed < total {
		return fmt.Errorf("%w: %d of %d subtasks incomplete", ErrTasksIncomplete, total-completed, total)
	}
	return nil
}
