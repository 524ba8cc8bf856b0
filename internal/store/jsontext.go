package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonText stores an opaque JSON document as TEXT. It implements
// sql.Scanner/driver.Valuer so sqlx can read/write it as a plain column.
type jsonText string

func (j jsonText) Value() (driver.Value, error) {
	if j == "" {
		return "{}", nil
	}
	return string(j), nil
}

func (j *jsonText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = ""
	case string:
		*j = jsonText(v)
	case []byte:
		*j = jsonText(v)
	default:
		return fmt.Errorf("jsonText: unsupported scan type %T", src)
	}
	return nil
}

// toJSON marshals v into a jsonText column value. Falls back to "{}" for a
// nil map so every row has a well-formed document.
func toJSON(v any) (jsonText, error) {
	if v == nil {
		return "{}", nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling json column: %w", err)
	}
	return jsonText(b), nil
}

// decodeJSON unmarshals a jsonText column into dst. An empty column decodes
// as a zero value rather than erroring.
func decodeJSON(raw jsonText, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// Metadata returns the task/PRD/checkpoint/etc. metadata document as a
// generic map, decoded from its stored JSON column.
func (t *Task) Metadata() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(t.MetadataRaw, &m)
	return m
}

// SetMetadata re-encodes m as the task's stored metadata column.
func (t *Task) SetMetadata(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	t.MetadataRaw = raw
	return nil
}

func (p *PRD) Metadata() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(p.MetadataRaw, &m)
	return m
}

func (p *PRD) SetMetadata(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	p.MetadataRaw = raw
	return nil
}

func (p *PRD) Milestones() []Milestone {
	var ms []Milestone
	_ = decodeJSON(p.MilestonesRaw, &ms)
	return ms
}

func (p *PRD) SetMilestones(ms []Milestone) error {
	raw, err := toJSON(ms)
	if err != nil {
		return err
	}
	p.MilestonesRaw = raw
	return nil
}

func (w *WorkProduct) Metadata() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(w.MetadataRaw, &m)
	return m
}

func (w *WorkProduct) SetMetadata(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	w.MetadataRaw = raw
	return nil
}

func (a *ActivityEntry) SetMetadata(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	a.MetadataRaw = raw
	return nil
}

func (v *ProtocolViolation) SetContext(m map[string]any) error {
	raw, err := toJSON(m)
	if err != nil {
		return err
	}
	v.ContextRaw = raw
	return nil
}

func (v *ProtocolViolation) Context() map[string]any {
	m := map[string]any{}
	_ = decodeJSON(v.ContextRaw, &m)
	return m
}
