// Package preflight implements the preflight_check tool: a read-only
// environment health probe combining store-derived progress, a git
// status check, and optional dev-server/test-command checks.
package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/preflight"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// checkParams defines the input for preflight_check.
type checkParams struct {
	InitiativeID  string `json:"initiativeId,omitempty"`
	DevServerPort int    `json:"devServerPort,omitempty"`
	TestCommand   string `json:"testCommand,omitempty"`
}

// Check implements preflight_check.
type Check struct {
	store      *store.Store
	workingDir string
}

// NewCheck builds the preflight_check tool.
func NewCheck(s *store.Store, workingDir string) *Check {
	return &Check{store: s, workingDir: workingDir}
}

func (t *Check) Name() string { return "preflight_check" }

func (t *Check) Description() string {
	return "Probe environment health: in-progress/blocked task counts, git branch and working-tree status, and optionally a dev-server port and a test-command baseline. healthy is false iff any check fails."
}

func (t *Check) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "initiativeId": {"type": "string"},
    "devServerPort": {"type": "integer", "description": "Omit or 0 to skip the dev-server probe"},
    "testCommand": {"type": "string", "description": "Omit to skip the test-command probe; capped at 30s"}
  }
}`)
}

func (t *Check) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p checkParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	progressCheck := func(ctx context.Context) preflight.Check {
		tasks, err := t.store.ListTasks(ctx, store.TaskListFilter{})
		if err != nil {
			return preflight.Check{Status: preflight.StatusFail, Detail: fmt.Sprintf("could not read task progress: %v", err)}
		}
		var blocked, inProgress, total int
		for _, task := range tasks {
			if p.InitiativeID != "" {
				initID, err := t.store.InitiativeIDForTask(ctx, task.ID)
				if err != nil || initID != p.InitiativeID {
					continue
				}
			}
			total++
			switch task.Status {
			case store.TaskStatusBlocked:
				blocked++
			case store.TaskStatusInProgress:
				inProgress++
			}
		}
		if blocked > 0 {
			return preflight.Check{Status: preflight.StatusWarn, Detail: fmt.Sprintf("%d of %d tasks blocked, %d in progress", blocked, total, inProgress)}
		}
		return preflight.Check{Status: preflight.StatusPass, Detail: fmt.Sprintf("%d tasks tracked, %d in progress", total, inProgress)}
	}

	report := preflight.Run(ctx, time.Now().UTC(), progressCheck, preflight.Options{
		DevServerPort: p.DevServerPort,
		TestCommand:   p.TestCommand,
		WorkingDir:    t.workingDir,
	})

	return mcp.JSONResult(report)
}
