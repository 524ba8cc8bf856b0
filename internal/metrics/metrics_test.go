package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
)

func TestObserve_CountsBusEvents(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	Observe(bus)

	before := testutil.ToFloat64(tasksCreated)
	bus.Publish(eventbus.Event{Topic: eventbus.TaskCreated, Payload: map[string]any{"taskId": "TASK-1"}})
	bus.Publish(eventbus.Event{Topic: eventbus.TaskCreated, Payload: map[string]any{"taskId": "TASK-2"}})
	assert.Equal(t, before+2, testutil.ToFloat64(tasksCreated))

	beforeSignals := testutil.ToFloat64(iterationSignals.WithLabelValues("CONTINUE"))
	bus.Publish(eventbus.Event{Topic: eventbus.IterationValidated, Payload: map[string]any{"signal": "CONTINUE"}})
	assert.Equal(t, beforeSignals+1, testutil.ToFloat64(iterationSignals.WithLabelValues("CONTINUE")))
}

func TestPayloadString_CoercesNonStrings(t *testing.T) {
	evt := eventbus.Event{Payload: map[string]any{"signal": someSignal("ESCALATE")}}
	assert.Equal(t, "ESCALATE", payloadString(evt, "signal"))
	assert.Empty(t, payloadString(evt, "missing"))
}

type someSignal string
