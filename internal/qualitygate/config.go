// Package qualitygate loads the quality-gate config and runs the
// effective gate list as the completion gate for task_update's
// `* -> completed` transitions. Gate execution delegates
// to the iteration engine's command rule.
package qualitygate

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

// Gate is one named quality check.
type Gate struct {
	Command          string            `json:"command"`
	ExpectedExitCode int               `json:"expectedExitCode,omitempty"`
	TimeoutMs        int               `json:"timeout,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}

// FileConfig is the on-disk `.claude/quality-gates.json` schema.
type FileConfig struct {
	Version      string          `json:"version"`
	DefaultGates []string        `json:"defaultGates"`
	Gates        map[string]Gate `json:"gates"`
}

// Cache loads FileConfig lazily and caches it process-wide; it is
// invalidated only by an explicit Clear.
type Cache struct {
	mu   sync.Mutex
	path string
	cfg  *FileConfig
}

// NewCache returns a cache that will read path on first Load.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Load returns the cached config, reading and parsing path on first
// call. A missing file is not an error: it yields an empty gate set.
func (c *Cache) Load() (*FileConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.cfg = &FileConfig{Version: "1.0", Gates: map[string]Gate{}}
		return c.cfg, nil
	}
	if err != nil {
		return nil, apperr.Config("reading quality gate config", err)
	}

	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Config("parsing quality gate config", err)
	}
	if cfg.Gates == nil {
		cfg.Gates = map[string]Gate{}
	}
	c.cfg = &cfg
	return c.cfg, nil
}

// Clear drops the cached config so the next Load re-reads the file.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = nil
}

// NamedGate pairs a gate definition with the name it was declared
// under, since FileConfig.Gates keys the map by that name.
type NamedGate struct {
	Name string
	Gate
}

// StringSlice coerces a metadata value decoded from JSON (or a literal
// []string, for callers that build metadata in Go) into a string slice.
func StringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// EffectiveGates resolves the gate list for a completing task:
// task.metadata.qualityGates if present (including the empty list,
// which disables gates) else cfg.DefaultGates. A referenced but
// undefined gate name is a hard error.
func EffectiveGates(cfg *FileConfig, taskQualityGates []string, taskQualityGatesSet bool) ([]NamedGate, error) {
	names := cfg.DefaultGates
	if taskQualityGatesSet {
		names = taskQualityGates
	}

	gates := make([]NamedGate, 0, len(names))
	for _, name := range names {
		g, ok := cfg.Gates[name]
		if !ok {
			return nil, apperr.Validation("quality gate %q is referenced but not defined", name)
		}
		gates = append(gates, NamedGate{Name: name, Gate: g})
	}
	return gates, nil
}
