// Package metrics exposes engine counters on the read-only HTTP
// mirror's /metrics endpoint. Counters are fed from the event bus, so
// they observe only committed mutations.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
)

var (
	tasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_tasks_created_total",
		Help: "Tasks created.",
	})
	taskUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_task_updates_total",
		Help: "Task updates by resulting status.",
	}, []string{"status"})
	checkpointsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_checkpoints_created_total",
		Help: "Checkpoints created, auto and manual.",
	})
	checkpointsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_checkpoints_resumed_total",
		Help: "Checkpoint resume reconstructions served.",
	})
	iterationSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_iteration_signals_total",
		Help: "iteration_validate completion signals by kind.",
	}, []string{"signal"})
	iterationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_iterations_completed_total",
		Help: "Iteration loops completed.",
	})
	streamsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_stream_archive_sweeps_total",
		Help: "Stream archive sweeps (initiative switches and explicit archive_all calls).",
	})
)

// Observe subscribes the counters to the bus topics they count.
func Observe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TaskCreated, func(eventbus.Event) { tasksCreated.Inc() })
	bus.Subscribe(eventbus.TaskUpdated, func(evt eventbus.Event) {
		taskUpdates.WithLabelValues(payloadString(evt, "status")).Inc()
	})
	bus.Subscribe(eventbus.CheckpointCreated, func(eventbus.Event) { checkpointsCreated.Inc() })
	bus.Subscribe(eventbus.CheckpointResumed, func(eventbus.Event) { checkpointsResumed.Inc() })
	bus.Subscribe(eventbus.IterationValidated, func(evt eventbus.Event) {
		if s := payloadString(evt, "signal"); s != "" {
			iterationSignals.WithLabelValues(s).Inc()
		}
	})
	bus.Subscribe(eventbus.IterationCompleted, func(eventbus.Event) { iterationsCompleted.Inc() })
	bus.Subscribe(eventbus.StreamArchived, func(eventbus.Event) { streamsArchived.Inc() })
}

func payloadString(evt eventbus.Event, key string) string {
	v, ok := evt.Payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
