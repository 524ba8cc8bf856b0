// Package eventbus is an in-process, single-threaded publish/subscribe
// channel for checkpoint/iteration/task lifecycle events. Dispatch is
// cooperative: Publish fans out synchronously under a mutex, and a
// listener's panic or error never rolls back the store transaction that
// produced the event (it has already committed by the time Publish runs).
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names the well-known events this bus carries.
type Topic string

const (
	TaskCreated        Topic = "task.created"
	TaskUpdated        Topic = "task.updated"
	TaskArchived       Topic = "task.archived"
	CheckpointCreated  Topic = "checkpoint.created"
	CheckpointResumed  Topic = "checkpoint.resumed"
	IterationStarted   Topic = "iteration.started"
	IterationValidated Topic = "iteration.validated"
	IterationCompleted Topic = "iteration.completed"
	HandoffCreated     Topic = "handoff.created"
	ScopeChangeFiled   Topic = "scope_change.filed"
	StreamArchived     Topic = "stream.archived"
)

// Event is the payload delivered to subscribers. Payload is a shallow map
// so handlers don't need to import the store package's concrete types.
type Event struct {
	Topic   Topic
	Payload map[string]any
}

// Handler receives one event. Handlers run synchronously on the
// publisher's goroutine, in subscription order.
type Handler func(Event)

// Bus is a mutex-guarded, synchronous fan-out dispatcher. The zero value
// is not usable; construct with New.
type Bus struct {
	mu       sync.Mutex
	handlers map[Topic][]Handler
	logger   *zap.Logger
}

// New returns an empty Bus. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[Topic][]Handler), logger: logger}
}

// Subscribe registers h to run whenever topic is published. Subscribe is
// not safe to call concurrently with Publish for the same topic beyond
// the mutex's own serialization; it is intended to happen once at
// startup wiring.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers evt to every handler subscribed to evt.Topic, in
// registration order. A handler that panics is recovered and logged; it
// never propagates back to the caller, since the triggering store
// mutation has already committed.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	hs := append([]Handler(nil), b.handlers[evt.Topic]...)
	b.mu.Unlock()

	for _, h := range hs {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: handler panicked",
				zap.String("topic", string(evt.Topic)), zap.Any("recover", r))
		}
	}()
	h(evt)
}
