package iteration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncomplete(t *testing.T) {
	t.Run("no promise tag in suffix is incomplete", func(t *testing.T) {
		assert.True(t, Incomplete("still working on it"))
	})

	t.Run("complete tag in suffix is not incomplete", func(t *testing.T) {
		assert.False(t, Incomplete("all done <promise>complete</promise>"))
	})

	t.Run("blocked tag in suffix is not incomplete", func(t *testing.T) {
		assert.False(t, Incomplete("stuck <promise>blocked</promise>"))
	})

	t.Run("promise tag outside the last 100 chars is ignored", func(t *testing.T) {
		out := "<promise>complete</promise>" + strings.Repeat("x", 200)
		assert.True(t, Incomplete(out))
	})
}

func TestExplicitContinuationRequested(t *testing.T) {
	assert.True(t, ExplicitContinuationRequested("<thinking>continuation_needed</thinking>"))
	assert.False(t, ExplicitContinuationRequested("nothing special here"))
}

func TestEvaluate(t *testing.T) {
	t.Run("blocks once continuation count reaches 10", func(t *testing.T) {
		st := State{ContinuationCount: 10}
		dec, _ := Evaluate(st, "reason", true, 2, 10)
		assert.Equal(t, ActionBlocked, dec.Action)
	})

	t.Run("auto-resumes inside an active iteration below max", func(t *testing.T) {
		st := State{}
		dec, next := Evaluate(st, "timeout writing file", true, 1, 5)
		assert.Equal(t, ActionAutoResume, dec.Action)
		assert.False(t, dec.Warning)
		assert.Equal(t, 1, next.ContinuationCount)
		assert.Equal(t, []string{"timeout writing file"}, next.RecentReasons)
	})

	t.Run("warns once count reaches 5", func(t *testing.T) {
		st := State{ContinuationCount: 5}
		dec, next := Evaluate(st, "reason", true, 1, 5)
		assert.Equal(t, ActionAutoResume, dec.Action)
		assert.True(t, dec.Warning)
		assert.Equal(t, 6, next.ContinuationCount)
	})

	t.Run("prompts user when not in an active iteration", func(t *testing.T) {
		st := State{}
		dec, next := Evaluate(st, "reason", false, 0, 0)
		assert.Equal(t, ActionPromptUser, dec.Action)
		assert.Equal(t, st, next)
	})

	t.Run("prompts user once iteration number reaches max", func(t *testing.T) {
		dec, _ := Evaluate(State{}, "reason", true, 5, 5)
		assert.Equal(t, ActionPromptUser, dec.Action)
	})

	t.Run("recent reasons window caps at 10", func(t *testing.T) {
		st := State{}
		for i := 0; i < 12; i++ {
			_, st = Evaluate(st, "r", true, 0, 99)
		}
		assert.Len(t, st.RecentReasons, 10)
	})
}

func TestReset(t *testing.T) {
	assert.Equal(t, State{}, Reset())
}

func TestTrimmedSuffix(t *testing.T) {
	assert.Equal(t, "short", TrimmedSuffix("short", 100))
	assert.Equal(t, "cdef", TrimmedSuffix("abcdef", 4))
}
