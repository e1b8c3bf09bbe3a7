package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingFlusher struct {
	calls   atomic.Int32
	flushed chan struct{}
	ctxErr  atomic.Value
}

func newCountingFlusher() *countingFlusher {
	return &countingFlusher{flushed: make(chan struct{}, 16)}
}

func (f *countingFlusher) Flush(ctx context.Context) error {
	f.calls.Add(1)
	f.ctxErr.Store(fmt.Sprint(ctx.Err()))
	f.flushed <- struct{}{}
	return nil
}

func waitFlush(t *testing.T, f *countingFlusher) {
	t.Helper()
	select {
	case <-f.flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("flush was not triggered")
	}
}

func TestScheduler_NotifyTriggersFlush(t *testing.T) {
	s := NewScheduler(time.Hour, testLogger())
	f := newCountingFlusher()
	s.AddTarget("data", f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	s.Notify()
	waitFlush(t, f)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// Final flush on shutdown, with a live context.
	waitFlush(t, f)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, "<nil>", f.ctxErr.Load())
}

func TestScheduler_TickerTriggersFlush(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, testLogger())
	f := newCountingFlusher()
	s.AddTarget("settings", f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	waitFlush(t, f)
	waitFlush(t, f)
}

func TestScheduler_NotifyDoesNotBlock(t *testing.T) {
	s := NewScheduler(time.Hour, testLogger())

	for i := 0; i < 10; i++ {
		s.Notify()
	}
	assert.Len(t, s.notify, 1)
}

func TestScheduler_FlushAllJoinsErrors(t *testing.T) {
	s := NewScheduler(time.Hour, testLogger())
	boom := errors.New("disk full")
	var okCalls int

	s.AddTarget("data", FlushFunc(func(ctx context.Context) error { return boom }))
	s.AddTarget("settings", FlushFunc(func(ctx context.Context) error {
		okCalls++
		return nil
	}))

	err := s.FlushAll(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "flush data")
	assert.Equal(t, 1, okCalls, "a failing target does not stop the others")
}
