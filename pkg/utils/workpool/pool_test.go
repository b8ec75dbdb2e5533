package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadSizes(t *testing.T) {
	_, err := New(0, 5)
	assert.Error(t, err)

	_, err = New(1, -1)
	assert.Error(t, err)
}

func TestDo_RunsAndReturnsError(t *testing.T) {
	pool, err := New(2, 0)
	require.NoError(t, err)

	want := errors.New("boom")
	got := pool.Do(context.Background(), func(ctx context.Context) error { return want })
	assert.ErrorIs(t, got, want)
	assert.Equal(t, 0, pool.InFlight())
}

func TestDo_RejectsWhenSaturated(t *testing.T) {
	pool, err := New(1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = pool.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_ = pool.Do(context.Background(), func(ctx context.Context) error { return nil })
	}()

	require.Eventually(t, func() bool { return pool.InFlight() == 2 }, time.Second, time.Millisecond)

	err = pool.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)
	assert.EqualError(t, err, "server is too busy")

	close(release)
	wg.Wait()
	assert.Equal(t, 0, pool.InFlight())
}

func TestDo_LimitsConcurrency(t *testing.T) {
	pool, err := New(3, 100)
	require.NoError(t, err)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, int32(3))
}

func TestDo_ContextCanceledWhileQueued(t *testing.T) {
	pool, err := New(1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pool.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
