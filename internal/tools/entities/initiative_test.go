package entities

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
)

func TestInitiativeLink_SwitchingAutoArchivesStreamTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bus := eventbus.New(zap.NewNop())
	tool := NewInitiativeLink(s, bus)
	createTool := NewTaskCreate(s, bus, zap.NewNop())

	params1, err := json.Marshal(map[string]any{"initiativeId": "INIT-1", "title": "first initiative"})
	require.NoError(t, err)
	res, err := tool.Execute(ctx, params1)
	require.NoError(t, err)
	require.False(t, res.IsError)

	createParams, err := json.Marshal(map[string]any{"title": "foundation work", "streamId": "auth-stream"})
	require.NoError(t, err)
	createRes, err := createTool.Execute(ctx, createParams)
	require.NoError(t, err)
	require.False(t, createRes.IsError)

	var created struct {
		ID string `json:"id"`
	}
	decodeResult(t, createRes.Content[0].Text, &created)

	params2, err := json.Marshal(map[string]any{"initiativeId": "INIT-2", "title": "second initiative"})
	require.NoError(t, err)
	res, err = tool.Execute(ctx, params2)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		PreviousInitiativeID string `json:"previousInitiativeId"`
		ArchivedTasks        int    `json:"archivedTasks"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, "INIT-1", body.PreviousInitiativeID)
	assert.Equal(t, 1, body.ArchivedTasks)

	archived, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
}

func TestInitiativeLink_FirstLinkArchivesNothing(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewInitiativeLink(s, bus)

	params, err := json.Marshal(map[string]any{"initiativeId": "INIT-1"})
	require.NoError(t, err)
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		ArchivedTasks int `json:"archivedTasks"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, 0, body.ArchivedTasks)
}
