package iteration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPromiseByTag(t *testing.T) {
	t.Run("matches case-insensitively", func(t *testing.T) {
		detected, found := DetectPromiseByTag("work done\n<PROMISE>complete</PROMISE>\nmore text", "COMPLETE")
		assert.True(t, found)
		assert.Contains(t, detected, "<promise>complete</promise>")
	})

	t.Run("no match returns false", func(t *testing.T) {
		_, found := DetectPromiseByTag("nothing here", "COMPLETE")
		assert.False(t, found)
	})

	t.Run("wrong tag name does not match", func(t *testing.T) {
		_, found := DetectPromiseByTag("<promise>blocked</promise>", "COMPLETE")
		assert.False(t, found)
	})

	t.Run("captures trailing context up to blank line", func(t *testing.T) {
		detected, found := DetectPromiseByTag("<promise>complete</promise>\nall tests pass\n\nignored paragraph", "COMPLETE")
		assert.True(t, found)
		assert.Contains(t, detected, "all tests pass")
		assert.NotContains(t, detected, "ignored paragraph")
	})
}

func TestCompletionPromisesDetected(t *testing.T) {
	found := CompletionPromisesDetected("the task is DONE and tests PASS", []string{"DONE", "PASS", "MISSING"})
	assert.ElementsMatch(t, []string{"DONE", "PASS"}, found)
}
