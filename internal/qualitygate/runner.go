package qualitygate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskflow-dev/taskflowmcp/internal/iteration"
)

// GateResult is one gate's outcome, in the runner's public shape.
type GateResult struct {
	GateName string `json:"gateName"`
	Passed   bool   `json:"passed"`
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message"`
}

// RunResult is the runner's aggregated response.
type RunResult struct {
	AllPassed   bool         `json:"allPassed"`
	TotalGates  int          `json:"totalGates"`
	PassedGates int          `json:"passedGates"`
	FailedGates []string     `json:"failedGates"`
	Results     []GateResult `json:"results"`
}

// Run executes gates sequentially, in declared order, each via the
// iteration engine's command rule, resolving a working directory per
// gate when one isn't explicitly configured.
func Run(ctx context.Context, gates []NamedGate, taskFiles []string, projectRoot string) RunResult {
	res := RunResult{TotalGates: len(gates), AllPassed: true}

	for _, g := range gates {
		wd := workingDirectory(g.Gate, taskFiles, projectRoot)
		spec := iteration.RuleSpec{
			Type: iteration.RuleCommand, Name: g.Name, Command: g.Command,
			WorkingDirectory: wd, TimeoutMs: g.TimeoutMs, ExpectedExitCode: g.ExpectedExitCode,
			Env: g.Env,
		}
		results := iteration.Run(ctx, []iteration.RuleSpec{spec}, iteration.RuleInput{})
		r := results[0]

		gr := GateResult{
			GateName: g.Name, Passed: r.Passed, Command: r.Command,
			ExitCode: r.ExitCode, Stdout: r.Stdout, Stderr: r.Stderr, Error: r.Error, Message: r.Message,
		}
		res.Results = append(res.Results, gr)
		if r.Passed {
			res.PassedGates++
		} else {
			res.AllPassed = false
			res.FailedGates = append(res.FailedGates, g.Name)
		}
	}

	return res
}

// EvaluateForCompletion resolves and runs the effective gates for a task
// transitioning to completed, from its metadata and the cached config.
// It is the single entry point both task_update and
// iteration_complete call so a * -> completed transition is gated
// identically regardless of which tool drives it. Returns nil, nil when
// no gates apply (the effective gate list is empty).
func EvaluateForCompletion(ctx context.Context, cache *Cache, meta map[string]any, projectRoot string) (*RunResult, error) {
	cfg, err := cache.Load()
	if err != nil {
		return nil, err
	}

	gates, set := meta["qualityGates"]
	var names []string
	if set {
		names = StringSlice(gates)
	}
	effective, err := EffectiveGates(cfg, names, set)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return nil, nil
	}

	files := StringSlice(meta["files"])
	res := Run(ctx, effective, files, projectRoot)
	return &res, nil
}

// FailureSummary renders the blocked-reason text task_update rewrites
// a failed completion transition to.
func (r RunResult) FailureSummary() string {
	return fmt.Sprintf("Quality gates failed: %s. %d of %d gates failed.",
		strings.Join(r.FailedGates, ", "), len(r.FailedGates), r.TotalGates)
}

// workingDirectory resolves a gate's execution directory: the explicit
// WorkingDirectory if set; else for npm/yarn/pnpm commands, walk up
// from the first task file looking for package.json, falling back to
// that file's directory and finally the project root; else the first
// file's directory; else the project root.
func workingDirectory(g Gate, taskFiles []string, projectRoot string) string {
	if g.WorkingDirectory != "" {
		return g.WorkingDirectory
	}

	firstFileDir := ""
	if len(taskFiles) > 0 {
		firstFileDir = filepath.Dir(filepath.Join(projectRoot, taskFiles[0]))
	}

	if isPackageManagerCommand(g.Command) && firstFileDir != "" {
		if dir, ok := walkUpForPackageJSON(firstFileDir, projectRoot); ok {
			return dir
		}
		return firstFileDir
	}

	if firstFileDir != "" {
		return firstFileDir
	}
	return projectRoot
}

func isPackageManagerCommand(command string) bool {
	for _, prefix := range []string{"npm ", "npx ", "yarn ", "pnpm "} {
		if strings.HasPrefix(strings.TrimSpace(command), prefix) {
			return true
		}
	}
	return false
}

func walkUpForPackageJSON(start, stopAt string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, true
		}
		if dir == stopAt || dir == filepath.Dir(dir) {
			return "", false
		}
		dir = filepath.Dir(dir)
	}
}
