package store

// Checkpoint's JSON-document columns (agent context, draft subtask
// snapshot, iteration bookkeeping) are opaque to every caller outside
// this package, same as Task/PRD/WorkProduct metadata.
// These accessors let callers outside the package read and write those
// documents as Go values instead of handling the raw jsonText columns.

// Metadata decodes the checkpoint's opaque freeform metadata document.
func (c *Checkpoint) Metadata() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(c.MetadataRaw, &m)
	return m
}

// SetMetadata re-encodes m as the checkpoint's metadata column.
func (c *Checkpoint) SetMetadata(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	c.MetadataRaw = raw
	return nil
}

// AgentContext decodes the checkpoint's opaque agent-context document.
func (c *Checkpoint) AgentContext() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(c.AgentContextRaw, &m)
	return m
}

// SetAgentContext re-encodes m as the checkpoint's agent-context column.
func (c *Checkpoint) SetAgentContext(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	c.AgentContextRaw = raw
	return nil
}

// SubtaskStates decodes the point-in-time subtask snapshot.
func (c *Checkpoint) SubtaskStates() []SubtaskState {
	var states []SubtaskState
	_ = decodeJSON(c.SubtaskStatesRaw, &states)
	return states
}

// SetSubtaskStates re-encodes the subtask snapshot.
func (c *Checkpoint) SetSubtaskStates(states []SubtaskState) error {
	raw, err := toJSON(states)
	if err != nil {
		return err
	}
	c.SubtaskStatesRaw = raw
	return nil
}

// IterationConfig decodes the checkpoint's iteration config, or nil if
// this is not an iteration checkpoint.
func (c *Checkpoint) IterationConfig() (*IterationConfig, error) {
	if c.IterationConfigRaw == nil {
		return nil, nil
	}
	var cfg IterationConfig
	if err := decodeJSON(*c.IterationConfigRaw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetIterationConfig marks this checkpoint as an iteration checkpoint
// carrying cfg. A nil cfg clears the field (IsIteration() becomes false).
func (c *Checkpoint) SetIterationConfig(cfg *IterationConfig) error {
	if cfg == nil {
		c.IterationConfigRaw = nil
		return nil
	}
	raw, err := toJSON(cfg)
	if err != nil {
		return err
	}
	c.IterationConfigRaw = &raw
	return nil
}

// IterationHistory decodes the chronological round-by-round history.
func (c *Checkpoint) IterationHistory() []IterationHistoryEntry {
	var h []IterationHistoryEntry
	_ = decodeJSON(c.IterationHistoryRaw, &h)
	return h
}

// SetIterationHistory re-encodes the iteration history.
func (c *Checkpoint) SetIterationHistory(h []IterationHistoryEntry) error {
	raw, err := toJSON(h)
	if err != nil {
		return err
	}
	c.IterationHistoryRaw = raw
	return nil
}

// CompletionPromises decodes the configured completion-promise strings.
func (c *Checkpoint) CompletionPromises() []string {
	var p []string
	_ = decodeJSON(c.CompletionPromisesRaw, &p)
	return p
}

// SetCompletionPromises re-encodes the completion-promise list.
func (c *Checkpoint) SetCompletionPromises(p []string) error {
	raw, err := toJSON(p)
	if err != nil {
		return err
	}
	c.CompletionPromisesRaw = raw
	return nil
}

// ValidationState decodes the last persisted validation-state document.
// ok is false if no validation has run yet.
func (c *Checkpoint) ValidationState() (state map[string]any, ok bool) {
	if c.ValidationStateRaw == nil {
		return nil, false
	}
	m := map[string]any{}
	_ = decodeJSON(*c.ValidationStateRaw, &m)
	return m, true
}

// SetValidationState persists iteration_validate's result document.
func (c *Checkpoint) SetValidationState(v map[string]any) error {
	raw, err := toJSON(v)
	if err != nil {
		return err
	}
	c.ValidationStateRaw = &raw
	return nil
}
