package hooks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflowmcp/internal/security"
)

func decodeResult(t *testing.T, text string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(text), v))
}

func TestRegister_RejectsMissingFields(t *testing.T) {
	tool := NewRegister(security.New())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRegister_RejectsInvalidPattern(t *testing.T) {
	tool := NewRegister(security.New())
	params, err := json.Marshal(map[string]any{
		"id": "r1", "name": "bad pattern", "pattern": "(unterminated",
		"action": "BLOCK", "severity": "high",
	})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRegisterThenList_ReturnsRegisteredRule(t *testing.T) {
	registry := security.New()
	registerTool := NewRegister(registry)

	params, err := json.Marshal(map[string]any{
		"id": "no-rm-rf", "name": "blocks rm -rf", "priority": 100,
		"pattern": "rm -rf", "action": "BLOCK", "severity": "critical",
	})
	require.NoError(t, err)
	res, err := registerTool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	listTool := NewList(registry)
	res, err = listTool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Rules []security.RuleInfo `json:"rules"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	require.Len(t, body.Rules, 1)
	assert.Equal(t, "no-rm-rf", body.Rules[0].ID)
}

func TestTest_EvaluatesRegisteredRuleAgainstHypotheticalCall(t *testing.T) {
	registry := security.New()
	registerTool := NewRegister(registry)
	params, err := json.Marshal(map[string]any{
		"id": "no-rm-rf", "name": "blocks rm -rf", "priority": 100,
		"pattern": "rm -rf", "action": "BLOCK", "severity": "critical",
	})
	require.NoError(t, err)
	res, err := registerTool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	testTool := NewTest(registry)
	testParams, err := json.Marshal(map[string]any{
		"toolName":  "Bash",
		"toolInput": map[string]any{"command": "rm -rf /tmp/scratch"},
	})
	require.NoError(t, err)

	res, err = testTool.Execute(context.Background(), testParams)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var result security.TestResult
	decodeResult(t, res.Content[0].Text, &result)
	assert.Equal(t, security.ActionBlock, result.Decision.Action)
}

func TestToggle_DisablingRuleStopsItFromMatching(t *testing.T) {
	registry := security.New()
	registerTool := NewRegister(registry)
	params, err := json.Marshal(map[string]any{
		"id": "no-rm-rf", "name": "blocks rm -rf", "priority": 100,
		"pattern": "rm -rf", "action": "BLOCK", "severity": "critical",
	})
	require.NoError(t, err)
	res, err := registerTool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	toggleTool := NewToggle(registry)
	toggleParams, err := json.Marshal(map[string]any{"id": "no-rm-rf", "enabled": false})
	require.NoError(t, err)
	res, err = toggleTool.Execute(context.Background(), toggleParams)
	require.NoError(t, err)
	require.False(t, res.IsError)

	testTool := NewTest(registry)
	testParams, err := json.Marshal(map[string]any{
		"toolName":  "Bash",
		"toolInput": map[string]any{"command": "rm -rf /tmp/scratch"},
	})
	require.NoError(t, err)
	res, err = testTool.Execute(context.Background(), testParams)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var result security.TestResult
	decodeResult(t, res.Content[0].Text, &result)
	assert.Equal(t, security.ActionAllow, result.Decision.Action)
}
