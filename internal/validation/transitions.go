// Package validation holds the pluggable rule registries the entity tools
// consult before committing a mutation: task status-transition guards
// (this file and task.go) and work-product content validation
// (workproduct.go). Both follow the same shape: a tagged variant keyed by
// name, registered once at startup, never by inheritance.
package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTasksIncomplete   = errors.New("all subtasks must be completed")
	ErrAlreadyInState    = errors.New("already in target state")
)

// TransitionContext holds the data a transition guard needs to consult
// related state. Force bypasses soft guards (quality gates still run
// independently in internal/qualitygate).
type TransitionContext struct {
	Store *store.Store
	Ctx   context.Context
	Force bool
}

// Validator checks whether a from->to transition is allowed for one
// entity instance.
type Validator interface {
	Validate(from, to string, ctx *TransitionContext, entityID string) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(from, to string, ctx *TransitionContext, entityID string) error

func (f ValidatorFunc) Validate(from, to string, ctx *TransitionContext, entityID string) error {
	return f(from, to, ctx, entityID)
}

// Registry maps entity types to their validators. Only "task" is
// registered today; the type-keyed dispatch is kept open for future
// entity kinds that gain their own transition guards.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry builds the registry and registers every known validator.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[string]Validator)}
	r.Register("task", NewTaskValidator())
	return r
}

// Register adds a validator for an entity type.
func (r *Registry) Register(entityType string, validator Validator) {
	r.validators[entityType] = validator
}

// Validate checks if a state transition is allowed. A from==to
// transition to "completed" is an idempotent no-op per the repeat-safe
// contract; any other from==to transition is rejected.
func (r *Registry) Validate(entityType, from, to string, ctx *TransitionContext, entityID string) error {
	if from == to {
		if to == store.TaskStatusCompleted {
			return nil
		}
		return ErrAlreadyInState
	}

	validator, ok := r.validators[entityType]
	if !ok {
		return nil
	}
	return validator.Validate(from, to, ctx, entityID)
}

func isAllowedTransition(from, to string, transitions map[string][]string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

func transitionError(from, to string) error {
	return fmt.Errorf("%w: cannot transition from %q to %q", ErrInvalidTransition, from, to)
}
