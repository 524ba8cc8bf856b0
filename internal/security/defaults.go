package security

// Default returns a registry pre-loaded with a conservative starter
// rule set: destructive shell commands are blocked outright, and
// secret-looking strings are flagged for review.
func Default() *Registry {
	r := New()

	block, err := PatternRule(
		"destructive-shell", "destructive_shell_command",
		"tool input contains a destructive shell command", 100,
		`rm\s+-rf\s+/|:\(\)\{.*\};:|mkfs\.|dd\s+if=.*of=/dev/`,
		ActionBlock, SeverityCritical,
		"remove the destructive command or scope it to a specific, non-root path",
	)
	if err == nil {
		r.Register(block)
	}

	secret, err := PatternRule(
		"secret-like-string", "secret_like_string",
		"tool input contains a string that looks like a credential", 50,
		`(api[_-]?key|secret|password|token)\s*[:=]\s*['"][A-Za-z0-9/+=_-]{12,}['"]`,
		ActionWarn, SeverityHigh,
		"confirm this value is a placeholder, not a live credential",
	)
	if err == nil {
		r.Register(secret)
	}

	return r
}

// TestResult is hook_test_security's response shape: the full
// decision plus how long evaluation took, without executing the tool.
type TestResult struct {
	Decision      Decision `json:"decision"`
	ExecutionTime float64  `json:"executionTimeMs"`
}
