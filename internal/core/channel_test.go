package core

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, active int) *Scheduler {
	t.Helper()
	s := NewScheduler(active, Options{Logger: zerolog.Nop(), RandSeed: 1})
	t.Cleanup(s.Shutdown)
	return s
}

// TestChannelPutGetOrdering checks FIFO delivery: a producer coroutine
// puts a sequence of values into a capacity-2 channel, a consumer coroutine
// reads them back, and both suspend and resume across processor boundaries
// along the way.
func TestChannelPutGetOrdering(t *testing.T) {
	sched := newTestScheduler(t, 2)
	r, w, err := MakeChannel[int](sched, 2)
	require.NoError(t, err)

	const n = 50
	got := make(chan []int, 1)
	producerErr := make(chan error, 1)
	consumerErr := make(chan error, 1)

	sched.Go("producer", func(ctx *Context) {
		for i := 0; i < n; i++ {
			if err := w.Put(ctx, i); err != nil {
				producerErr <- err
				return
			}
		}
		w.Close()
		producerErr <- nil
	})

	sched.Go("consumer", func(ctx *Context) {
		values := make([]int, 0, n)
		for {
			v, err := r.Get(ctx)
			if err != nil {
				if errors.Is(err, ErrChannelClosed) {
					got <- values
					consumerErr <- nil
					return
				}
				consumerErr <- err
				return
			}
			values = append(values, v)
		}
	})

	select {
	case err := <-producerErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not finish in time")
	}
	select {
	case err := <-consumerErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish in time")
	}

	values := <-got
	require.Len(t, values, n)
	for i, v := range values {
		require.Equal(t, i, v)
	}
}

// TestChannelCloseMidStreamWakesWaiters closes a channel while a reader is
// parked waiting for a value that will never come, and expects the reader
// to wake with ErrChannelClosed rather than hang.
func TestChannelCloseMidStreamWakesWaiters(t *testing.T) {
	sched := newTestScheduler(t, 1)
	r, w, err := MakeChannel[string](sched, 1)
	require.NoError(t, err)

	readerDone := make(chan error, 1)
	sched.Go("reader", func(ctx *Context) {
		_, err := r.Get(ctx)
		readerDone <- err
	})

	// Give the reader a chance to park before closing.
	time.Sleep(20 * time.Millisecond)
	w.Close()

	select {
	case err := <-readerDone:
		require.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not wake on close")
	}
	require.True(t, r.Closed())
}

// TestChannelFirstCapacityPutsDoNotBlock checks the ring-buffer-of-C+1-slots
// representation: the first C puts on an empty channel must succeed without
// a parked writer ever being created.
func TestChannelFirstCapacityPutsDoNotBlock(t *testing.T) {
	sched := newTestScheduler(t, 1)
	ch, err := NewChannel[int](sched, 3)
	require.NoError(t, err)

	done := make(chan error, 1)
	sched.Go("writer", func(ctx *Context) {
		for i := 0; i < 3; i++ {
			if err := ch.put(ctx, i); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("puts within capacity should not have blocked")
	}
	require.Equal(t, 3, ch.occupied())
	require.Empty(t, ch.writers)
}

// TestChannelTryGet exercises the non-suspending path directly, outside any
// coroutine, since it never needs a Context.
func TestChannelTryGet(t *testing.T) {
	sched := newTestScheduler(t, 1)
	ch, err := NewChannel[int](sched, 2)
	require.NoError(t, err)

	_, ok := ch.tryGet()
	require.False(t, ok)

	ch.buf[ch.wr] = 7
	ch.wr = (ch.wr + 1) % len(ch.buf)

	v, ok := ch.tryGet()
	require.True(t, ok)
	require.Equal(t, 7, v)

	_, ok = ch.tryGet()
	require.False(t, ok)
}

func TestNewChannelRejectsZeroCapacity(t *testing.T) {
	sched := newTestScheduler(t, 1)
	_, err := NewChannel[int](sched, 0)
	require.ErrorIs(t, err, ErrUsageError)
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	sched := newTestScheduler(t, 1)
	r, w, err := MakeChannel[int](sched, 1)
	require.NoError(t, err)
	w.Close()
	w.Close()
	r.Close()
	require.True(t, r.Closed())
}
