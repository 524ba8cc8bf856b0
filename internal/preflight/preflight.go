// Package preflight probes environment health: store state, VCS
// status, dev-server reachability, and a test-command baseline.
package preflight

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/iteration"
)

// CheckStatus is one probe's verdict.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check is one named health check's result.
type Check struct {
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
}

// Report is the probe's aggregated response.
type Report struct {
	Healthy         bool             `json:"healthy"`
	Timestamp       time.Time        `json:"timestamp"`
	Checks          map[string]Check `json:"checks"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// ProgressCheck is supplied by the caller (internal/tools/preflight)
// so this package stays decoupled from the store.
type ProgressCheck func(ctx context.Context) Check

// Options configures which optional probes run.
type Options struct {
	DevServerPort int    // 0 disables the dev-server probe
	TestCommand   string // empty disables the test probe
	WorkingDir    string
}

const testProbeTimeout = 30 * time.Second

// Run executes every applicable check and aggregates them. healthy is
// false iff any check returns fail.
func Run(ctx context.Context, now time.Time, progress ProgressCheck, opts Options) Report {
	report := Report{Timestamp: now, Checks: map[string]Check{}, Healthy: true}

	if progress != nil {
		c := progress(ctx)
		report.Checks["progress"] = c
		report.accumulate(c)
	}

	gitCheck := checkGit(ctx, opts.WorkingDir)
	report.Checks["git"] = gitCheck
	report.accumulate(gitCheck)

	if opts.DevServerPort > 0 {
		c := checkDevServer(opts.DevServerPort)
		report.Checks["devServer"] = c
		report.accumulate(c)
	}

	if opts.TestCommand != "" {
		c := checkTests(ctx, opts.TestCommand, opts.WorkingDir)
		report.Checks["tests"] = c
		report.accumulate(c)
	}

	report.Recommendations = recommendations(report.Checks)
	return report
}

func (r *Report) accumulate(c Check) {
	if c.Status == StatusFail {
		r.Healthy = false
	}
}

func checkGit(ctx context.Context, dir string) Check {
	branchCmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	branchCmd.Dir = dir
	branchOut, err := branchCmd.Output()
	if err != nil {
		if _, lookErr := exec.LookPath("git"); lookErr != nil {
			return Check{Status: StatusWarn, Detail: "git is not installed"}
		}
		return Check{Status: StatusWarn, Detail: "not a git repository"}
	}
	branch := strings.TrimSpace(string(branchOut))

	statusCmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	statusCmd.Dir = dir
	statusOut, err := statusCmd.Output()
	if err != nil {
		return Check{Status: StatusWarn, Detail: fmt.Sprintf("branch %s; could not read status", branch)}
	}

	if strings.TrimSpace(string(statusOut)) == "" {
		return Check{Status: StatusPass, Detail: fmt.Sprintf("branch %s; working tree clean", branch)}
	}
	return Check{Status: StatusWarn, Detail: fmt.Sprintf("branch %s; working tree dirty", branch)}
}

func checkDevServer(port int) Check {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		return Check{Status: StatusFail, Detail: fmt.Sprintf("no listener on port %d", port)}
	}
	_ = conn.Close()
	return Check{Status: StatusPass, Detail: fmt.Sprintf("listener on port %d", port)}
}

var testSummaryPattern = regexp.MustCompile(`(\d+)\s*passed|(\d+)\s*failed`)

func checkTests(parent context.Context, command, dir string) Check {
	ctx, cancel := context.WithTimeout(parent, testProbeTimeout)
	defer cancel()

	// Test runners fork freely; run the command in its own process
	// group so a timeout tears down the whole tree, SIGTERM first.
	cmd := iteration.NewShellCommand(ctx, command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	passed, failed := parseTestSummary(string(out))
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return Check{Status: StatusFail, Detail: "test command exceeded 30s"}
	case err != nil && failed == 0 && passed == 0:
		return Check{Status: StatusFail, Detail: fmt.Sprintf("test command failed: %v", err)}
	case failed > 0:
		return Check{Status: StatusFail, Detail: fmt.Sprintf("%d passed / %d failed", passed, failed)}
	default:
		return Check{Status: StatusPass, Detail: fmt.Sprintf("%d passed / %d failed", passed, failed)}
	}
}

func parseTestSummary(output string) (passed, failed int) {
	for _, m := range testSummaryPattern.FindAllStringSubmatch(output, -1) {
		if m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			passed += n
		}
		if m[2] != "" {
			n, _ := strconv.Atoi(m[2])
			failed += n
		}
	}
	return passed, failed
}

func recommendations(checks map[string]Check) []string {
	var recs []string
	if c, ok := checks["git"]; ok && c.Status == StatusWarn && strings.Contains(c.Detail, "dirty") {
		recs = append(recs, "commit or stash outstanding changes before starting a new task")
	}
	if c, ok := checks["devServer"]; ok && c.Status == StatusFail {
		recs = append(recs, "start the dev server before relying on live-reload checks")
	}
	if c, ok := checks["tests"]; ok && c.Status == StatusFail {
		recs = append(recs, "fix failing tests before beginning new iteration work")
	}
	return recs
}
