package iteration

// Signal is the iteration_validate completion signal. Priority order
// when combining sources is BLOCKED > COMPLETE > ESCALATE > CONTINUE.
type Signal string

const (
	SignalContinue Signal = "CONTINUE"
	SignalComplete Signal = "COMPLETE"
	SignalBlocked  Signal = "BLOCKED"
	SignalEscalate Signal = "ESCALATE"
)

// HistoryEntry mirrors store.IterationHistoryEntry's shape without
// importing the store package, so this package stays free of store
// dependencies alongside the command/content-predicate rules in rules.go.
type HistoryEntry struct {
	Iteration        int
	ValidationPassed bool
}

// SafetyCheck runs the iteration-bound and circuit-breaker guards.
// It never looks at promise tags or hooks.
func SafetyCheck(iterationNumber, maxIterations, circuitBreakerThreshold int, history []HistoryEntry) (escalate bool, reason string) {
	if iterationNumber >= maxIterations {
		return true, "iteration limit reached"
	}
	if circuitBreakerThreshold <= 0 {
		circuitBreakerThreshold = 3
	}
	if len(history) >= circuitBreakerThreshold {
		tail := history[len(history)-circuitBreakerThreshold:]
		allFailed := true
		for _, h := range tail {
			if h.ValidationPassed {
				allFailed = false
				break
			}
		}
		if allFailed {
			return true, "circuit breaker tripped: validation failed on the last consecutive iterations"
		}
	}
	return false, ""
}

// BaseSignal combines the promise-tag detections and the safety check
// into the pre-hook signal, per the priority BLOCKED > COMPLETE >
// safety-ESCALATE > CONTINUE.
func BaseSignal(blockedTagFound, completeTagFound, safetyEscalate bool) Signal {
	switch {
	case blockedTagFound:
		return SignalBlocked
	case completeTagFound:
		return SignalComplete
	case safetyEscalate:
		return SignalEscalate
	default:
		return SignalContinue
	}
}
