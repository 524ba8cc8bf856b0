package iteration

import "strings"

const (
	continuationSuffixLen = 100
	continuationBlockAt   = 10
	continuationWarnAt    = 5
	continuationWindow    = 10
)

// Action is the continuation guard's verdict.
type Action string

const (
	ActionAutoResume Action = "auto_resume"
	ActionBlocked    Action = "blocked"
	ActionPromptUser Action = "prompt_user"
)

// State is the per-task continuation bookkeeping persisted under
// task.metadata.continuation. A zero State means no continuation is
// in progress.
type State struct {
	ContinuationCount int      `json:"continuationCount"`
	RecentReasons     []string `json:"recentReasons,omitempty"`
}

// Decision is returned by Evaluate when agentOutput looks incomplete.
type Decision struct {
	Action  Action `json:"action"`
	Warning bool   `json:"warning,omitempty"`
}

// Incomplete reports whether the last 100 characters of output carry
// neither a COMPLETE nor a BLOCKED promise tag.
func Incomplete(output string) bool {
	suffix := output
	if r := []rune(output); len(r) > continuationSuffixLen {
		suffix = string(r[len(r)-continuationSuffixLen:])
	}
	_, complete := DetectPromiseByTag(suffix, "COMPLETE")
	_, blocked := DetectPromiseByTag(suffix, "BLOCKED")
	return !complete && !blocked
}

// explicitContinuationTag is recognized anywhere in the output (not just
// the 100-char suffix) as an agent-initiated request to keep going.
const explicitContinuationTag = "<thinking>CONTINUATION_NEEDED</thinking>"

// ExplicitContinuationRequested reports whether the agent explicitly
// asked to continue via the thinking-block grammar, independent of the
// promise-tag suffix check.
func ExplicitContinuationRequested(output string) bool {
	return strings.Contains(strings.ToUpper(output), strings.ToUpper(explicitContinuationTag))
}

// Evaluate decides the continuation action for an incomplete output,
// given the active iteration's bounds and the task's continuation
// state, and returns the updated state to persist.
//
// Priority: blocked once continuationCount reaches 10; auto_resume
// while inside an active iteration below its max; prompt_user
// otherwise. A warning accompanies auto_resume/prompt_user once the
// count reaches 5.
func Evaluate(st State, reason string, inActiveIteration bool, iterationNumber, maxIterations int) (Decision, State) {
	if st.ContinuationCount >= continuationBlockAt {
		return Decision{Action: ActionBlocked}, st
	}

	warn := st.ContinuationCount >= continuationWarnAt

	if inActiveIteration && iterationNumber < maxIterations {
		st.ContinuationCount++
		st.RecentReasons = pushWindow(st.RecentReasons, reason, continuationWindow)
		return Decision{Action: ActionAutoResume, Warning: warn}, st
	}

	return Decision{Action: ActionPromptUser, Warning: warn}, st
}

// Reset clears continuation bookkeeping, e.g. on a successful COMPLETE.
func Reset() State { return State{} }

func pushWindow(window []string, item string, max int) []string {
	window = append(window, item)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}

// TrimmedSuffix returns the last n characters of s (rune-safe),
// exported for callers that need the same suffix the guard inspected.
func TrimmedSuffix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
