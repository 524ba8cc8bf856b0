package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is one named engine operation: an input schema for discovery
// and an Execute that takes and returns JSON. Every entity, checkpoint,
// stream, iteration, security-hook, and preflight operation implements
// this.
type Tool interface {
	// Name is the canonical tool name, e.g. "task_create".
	Name() string

	// Description is shown to clients in tools/list.
	Description() string

	// InputSchema is the JSON Schema for Execute's params.
	InputSchema() json.RawMessage

	// Execute runs the operation. Input invariant violations come back
	// as an IsError result, not a Go error; a Go error means the engine
	// itself failed (store, subprocess, encoding).
	Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error)
}

// Registry is the content-addressed tool surface: every operation the
// server dispatches, keyed by name. Registration order is preserved so
// tools/list groups related operations the way serve wiring declares
// them.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
	order  []string
}

// NewRegistry returns an empty tool surface.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds tools in the order given. Two tools claiming one name
// is a wiring bug, caught at startup with a panic rather than silently
// shadowing an operation.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Name()
		if _, taken := r.byName[name]; taken {
			panic(fmt.Sprintf("tool %q registered twice", name))
		}
		r.byName[name] = t
		r.order = append(r.order, name)
	}
}

// Get returns the tool registered under name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// List returns every tool's definition in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		defs = append(defs, ToolDefinition{
			Name:        name,
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}
