package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func countingEntry(name string, count *int32, fail bool) Entry {
	return Entry{
		Name:     name,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(count, 1)
			if fail {
				return errors.New("sweep failed")
			}
			return nil
		},
	}
}

func TestRunner_RunsSweepOnTick(t *testing.T) {
	var count int32
	r := New(zap.NewNop(), countingEntry("tick", &count, false))

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer func() {
		cancel()
		r.Stop()
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 2
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestRunner_StopHaltsFurtherRuns(t *testing.T) {
	var count int32
	r := New(zap.NewNop(), countingEntry("stoppable", &count, false))

	r.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 1
	}, 500*time.Millisecond, 10*time.Millisecond)

	r.Stop()
	countAtStop := atomic.LoadInt32(&count)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAtStop, atomic.LoadInt32(&count))
}

func TestRunner_FailingSweepKeepsTicking(t *testing.T) {
	var count int32
	r := New(zap.NewNop(), countingEntry("failing", &count, true))

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer func() {
		cancel()
		r.Stop()
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 2
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestRunner_SkipsMalformedEntries(t *testing.T) {
	var count int32
	r := New(nil,
		Entry{Name: "no-body", Interval: time.Millisecond},
		Entry{Name: "no-interval", Run: func(context.Context) error { atomic.AddInt32(&count, 1); return nil }},
	)

	r.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	assert.Zero(t, atomic.LoadInt32(&count))
}

func TestRunner_StopIsIdempotent(t *testing.T) {
	var count int32
	r := New(zap.NewNop(), countingEntry("idempotent", &count, false))
	r.Start(context.Background())
	r.Stop()
	assert.NotPanics(t, r.Stop)
}
