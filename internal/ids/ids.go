// Package ids generates the type-prefixed opaque identifiers used
// throughout the data model (INIT-, PRD-, TASK-, WP-, CP-, IT-, HO-, SCR-,
// VIOL-, PERF-).
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix enumerates the entity-id prefixes fixed by the data model.
type Prefix string

const (
	Initiative     Prefix = "INIT"
	PRD            Prefix = "PRD"
	Task           Prefix = "TASK"
	WorkProduct    Prefix = "WP"
	Checkpoint     Prefix = "CP"
	Iteration      Prefix = "IT"
	Handoff        Prefix = "HO"
	ScopeChange    Prefix = "SCR"
	Violation      Prefix = "VIOL"
	Performance    Prefix = "PERF"
	Activity       Prefix = "ACT"
)

// New mints a new id with the given prefix: "<PREFIX>-<uuid>".
func New(p Prefix) string {
	return string(p) + "-" + uuid.NewString()
}

// HasPrefix reports whether id carries the given entity prefix.
func HasPrefix(id string, p Prefix) bool {
	return strings.HasPrefix(id, string(p)+"-")
}
