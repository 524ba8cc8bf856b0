package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublish_DeliversToSubscribersInOrder(t *testing.T) {
	b := New(nil)
	var order []string

	b.Subscribe(TaskCreated, func(e Event) { order = append(order, "first") })
	b.Subscribe(TaskCreated, func(e Event) { order = append(order, "second") })

	b.Publish(Event{Topic: TaskCreated, Payload: map[string]any{"id": "TASK-1"}})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublish_OnlyDeliversToMatchingTopic(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe(TaskCreated, func(e Event) { called = true })

	b.Publish(Event{Topic: TaskArchived})

	assert.False(t, called)
}

func TestPublish_NoSubscribersIsNoOp(t *testing.T) {
	b := New(zap.NewNop())
	assert.NotPanics(t, func() {
		b.Publish(Event{Topic: IterationStarted})
	})
}

func TestPublish_HandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	b := New(zap.NewNop())
	secondRan := false

	b.Subscribe(CheckpointCreated, func(e Event) { panic("boom") })
	b.Subscribe(CheckpointCreated, func(e Event) { secondRan = true })

	assert.NotPanics(t, func() {
		b.Publish(Event{Topic: CheckpointCreated})
	})
	assert.True(t, secondRan)
}

func TestPublish_PassesPayloadThrough(t *testing.T) {
	b := New(nil)
	var got map[string]any
	b.Subscribe(HandoffCreated, func(e Event) { got = e.Payload })

	b.Publish(Event{Topic: HandoffCreated, Payload: map[string]any{"taskId": "TASK-9"}})

	assert.Equal(t, "TASK-9", got["taskId"])
}
