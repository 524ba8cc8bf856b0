// Package iteration implements the validation-rule engine consulted by
// iteration_validate and, for the command rule specifically, by the
// quality-gate runner (internal/qualitygate). Rule types are an open,
// registration-time set dispatched by a tagged `type` field, never by
// inheritance (spec: "model as a tagged variant with a type-keyed
// dispatch table").
package iteration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// RuleType tags the variant.
type RuleType string

const (
	RuleCommand          RuleType = "command"
	RuleContentRegex     RuleType = "content_regex"
	RuleContentSubstring RuleType = "content_substring"
)

// PredicateTarget selects which document a content-predicate rule reads.
type PredicateTarget string

const (
	TargetWorkProduct PredicateTarget = "work_product"
	TargetTaskNotes   PredicateTarget = "task_notes"
	TargetAgentOutput PredicateTarget = "agent_output"
)

const (
	defaultCommandTimeout = 60 * time.Second

	// termGracePeriod is how long a cancelled command's process group
	// gets between SIGTERM and SIGKILL.
	termGracePeriod = 5 * time.Second
)

// RuleSpec is the declarative, serializable description of one rule,
// the shape persisted on an iteration checkpoint's config and replayed
// on every validate call.
type RuleSpec struct {
	Type             RuleType          `json:"type"`
	Name             string            `json:"name"`
	Command          string            `json:"command,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	TimeoutMs        int               `json:"timeout,omitempty"`
	ExpectedExitCode int               `json:"expectedExitCode,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	Pattern          string            `json:"pattern,omitempty"`
	Target           PredicateTarget   `json:"target,omitempty"`
}

// RuleInput is the document set a content-predicate rule can read from.
type RuleInput struct {
	WorkProductContent string
	TaskNotes          string
	AgentOutput        string
}

// Result is one rule's pass/fail verdict. The engine never itself
// produces CONTINUE/ESCALATE/etc.; callers (internal/tools/iteration)
// layer that decision on top.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Run evaluates every spec in order and returns results in the same
// order (spec: "results are returned in rule order").
func Run(ctx context.Context, specs []RuleSpec, input RuleInput) []Result {
	results := make([]Result, len(specs))
	for i, spec := range specs {
		results[i] = evaluate(ctx, spec, input)
	}
	return results
}

func evaluate(ctx context.Context, spec RuleSpec, input RuleInput) Result {
	switch spec.Type {
	case RuleCommand:
		return runCommand(ctx, spec)
	case RuleContentRegex:
		return evalContentPredicate(spec, input, true)
	case RuleContentSubstring:
		return evalContentPredicate(spec, input, false)
	default:
		return Result{Name: spec.Name, Passed: false, Message: fmt.Sprintf("unknown rule type %q", spec.Type)}
	}
}

// runCommand executes spec.Command in spec.WorkingDirectory with an
// explicit deadline; exceeding it terminates the command's whole
// process group (SIGTERM, then SIGKILL after the grace period) and
// reports a failing, non-crashing result.
func runCommand(ctx context.Context, spec RuleSpec) Result {
	timeout := defaultCommandTimeout
	if spec.TimeoutMs > 0 {
		timeout = time.Duration(spec.TimeoutMs) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := NewShellCommand(runCtx, spec.Command)
	if spec.WorkingDirectory != "" {
		cmd.Dir = spec.WorkingDirectory
	}
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g, _ := errgroup.WithContext(runCtx)
	g.Go(cmd.Run)
	runErr := g.Wait()

	expected := spec.ExpectedExitCode
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	res := Result{
		Name: spec.Name, Command: spec.Command, ExitCode: exitCode,
		Stdout: stdout.String(), Stderr: stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.Passed = false
		res.Error = "timeout"
		res.Message = fmt.Sprintf("command %q exceeded its %s deadline", spec.Command, timeout)
		return res
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			res.Passed = false
			res.Error = runErr.Error()
			res.Message = fmt.Sprintf("command %q failed to run: %v", spec.Command, runErr)
			return res
		}
	}

	res.Passed = exitCode == expected
	if res.Passed {
		res.Message = fmt.Sprintf("command %q exited %d as expected", spec.Command, exitCode)
	} else {
		res.Message = fmt.Sprintf("command %q exited %d, expected %d", spec.Command, exitCode, expected)
	}
	return res
}

// NewShellCommand builds an `sh -c` command running in its own process
// group so cancellation reaches every child the command forks, not just
// the shell. On cancel or deadline the whole group gets SIGTERM, then
// SIGKILL once termGracePeriod elapses.
func NewShellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return terminateGroup(cmd) }
	cmd.WaitDelay = termGracePeriod + time.Second
	return cmd
}

// terminateGroup signals the command's process group: SIGTERM now,
// SIGKILL after the grace period if the group is still alive. Falls
// back to killing the direct child when the group signal fails (e.g.
// the shell exited before setpgid took effect).
func terminateGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	go func() {
		time.Sleep(termGracePeriod)
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}()
	return nil
}

func evalContentPredicate(spec RuleSpec, input RuleInput, useRegex bool) Result {
	var doc string
	switch spec.Target {
	case TargetTaskNotes:
		doc = input.TaskNotes
	case TargetAgentOutput:
		doc = input.AgentOutput
	default:
		doc = input.WorkProductContent
	}

	if useRegex {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return Result{Name: spec.Name, Passed: false, Message: fmt.Sprintf("invalid pattern %q: %v", spec.Pattern, err)}
		}
		if re.MatchString(doc) {
			return Result{Name: spec.Name, Passed: true, Message: fmt.Sprintf("pattern %q matched", spec.Pattern)}
		}
		return Result{Name: spec.Name, Passed: false, Message: fmt.Sprintf("pattern %q did not match %s", spec.Pattern, spec.Target)}
	}

	if strings.Contains(doc, spec.Pattern) {
		return Result{Name: spec.Name, Passed: true, Message: fmt.Sprintf("substring %q found", spec.Pattern)}
	}
	return Result{Name: spec.Name, Passed: false, Message: fmt.Sprintf("substring %q not found in %s", spec.Pattern, spec.Target)}
}
