package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkInitiative_CreatesOnFirstLink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	init, previous, err := s.LinkInitiative(ctx, "INIT-1", "title", "desc", now)
	require.NoError(t, err)
	assert.Equal(t, "INIT-1", init.ID)
	assert.Empty(t, previous)

	current, err := s.CurrentInitiativeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INIT-1", current)
}

func TestLinkInitiative_RelinkingSameIDIsIdempotentNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.LinkInitiative(ctx, "INIT-1", "title", "desc", now)
	require.NoError(t, err)

	_, previous, err := s.LinkInitiative(ctx, "INIT-1", "title", "desc", now)
	require.NoError(t, err)
	assert.Empty(t, previous, "re-linking the current initiative should report no previous transition")
}

func TestLinkInitiative_SwitchingReportsPreviousInitiative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.LinkInitiative(ctx, "INIT-1", "first", "desc", now)
	require.NoError(t, err)

	init, previous, err := s.LinkInitiative(ctx, "INIT-2", "second", "desc", now)
	require.NoError(t, err)
	assert.Equal(t, "INIT-2", init.ID)
	assert.Equal(t, "INIT-1", previous)
}

func TestLinkInitiative_ReLinkUpdatesTitleAndDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.LinkInitiative(ctx, "INIT-1", "first", "desc", now)
	require.NoError(t, err)
	_, _, err = s.LinkInitiative(ctx, "INIT-2", "second", "desc", now)
	require.NoError(t, err)

	updated, _, err := s.LinkInitiative(ctx, "INIT-1", "renamed", "new desc", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "new desc", updated.Description)
}

func TestGetInitiative_MissingReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	init, err := s.GetInitiative(context.Background(), "INIT-missing")
	require.NoError(t, err)
	assert.Nil(t, init)
}

func TestCurrentInitiativeID_EmptyWhenNoneLinked(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CurrentInitiativeID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}
