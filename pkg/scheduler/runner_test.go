package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerSkipsOverlappingTicks(t *testing.T) {
	var active, maxActive int32
	release := make(chan struct{})
	job := func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	r := New("slow", 5*time.Millisecond, job, WithImmediate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Stats().Skipped >= 3 }, 2*time.Second, time.Millisecond)
	close(release)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, int32(0), atomic.LoadInt32(&active))
}

func TestRunnerStopsOnCancel(t *testing.T) {
	var runs int32
	r := New("tick", time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("source unavailable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for atomic.LoadInt32(&runs) < 3 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, r.Stats().Failed, int64(3))
}

func TestTrigger(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	r := New("manual", time.Hour, func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})

	go func() { _ = r.Trigger(context.Background()) }()
	<-started
	assert.ErrorIs(t, r.Trigger(context.Background()), ErrBusy)
	close(block)

	require.Eventually(t, func() bool { return !r.running.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), r.Stats().Runs)
}

func TestRunRejectsZeroInterval(t *testing.T) {
	r := New("bad", 0, func(context.Context) error { return nil })
	assert.Error(t, r.Run(context.Background()))
}

func TestGroup(t *testing.T) {
	var a, b int32
	ra := New("a", time.Millisecond, func(context.Context) error { atomic.AddInt32(&a, 1); return nil })
	rb := New("b", time.Millisecond, func(context.Context) error { atomic.AddInt32(&b, 1); return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, Group(ctx, ra, rb))
	assert.Positive(t, atomic.LoadInt32(&a))
	assert.Positive(t, atomic.LoadInt32(&b))
}
