package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	calls atomic.Int64
}

func (c *countingCloser) CloseExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

type deniedLocker struct{}

func (deniedLocker) TryAcquire(context.Context, time.Duration) (bool, error) {
	return false, nil
}

func TestSweeperRunsOnTicks(t *testing.T) {
	closer := &countingCloser{}
	s := New(closer, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return closer.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSweeperSkipsWithoutLock(t *testing.T) {
	closer := &countingCloser{}
	s := New(closer, WithInterval(10*time.Millisecond), WithLocker(deniedLocker{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	require.Zero(t, closer.calls.Load(), "a follower must never sweep")
}
