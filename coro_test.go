package coro_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coro "github.com/mgajewski/gocoro"
)

// TestPingPong drives a ping-pong exchange entirely through the public
// façade: one active processor, two coroutines exchanging a channel pair,
// A sending 0..9 and B echoing each value back.
func TestPingPong(t *testing.T) {
	sched := coro.NewScheduler(1)
	defer sched.Shutdown()

	rAtoB, wAtoB, err := coro.MakeChannel[int](sched, 1)
	require.NoError(t, err)
	rBtoA, wBtoA, err := coro.MakeChannel[int](sched, 1)
	require.NoError(t, err)

	const n = 10
	got := make(chan []int, 1)

	sched.Go("A", func(ctx *coro.Context) {
		var received []int
		for i := 0; i < n; i++ {
			require.NoError(t, wAtoB.Put(ctx, i))
			v, err := rBtoA.Get(ctx)
			require.NoError(t, err)
			received = append(received, v)
		}
		wAtoB.Close()
		got <- received
	})
	sched.Go("B", func(ctx *coro.Context) {
		for {
			v, err := rAtoB.Get(ctx)
			if err != nil {
				wBtoA.Close()
				return
			}
			if err := wBtoA.Put(ctx, v); err != nil {
				return
			}
		}
	})

	select {
	case received := <-got:
		require.Len(t, received, n)
		for i, v := range received {
			require.Equal(t, i, v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ping-pong did not complete in time")
	}
	sched.Wait()
}

// TestCloseMidStream checks that a producer sending a prefix of values then
// closing leaves the consumer observing exactly that prefix followed by
// ErrChannelClosed.
func TestCloseMidStream(t *testing.T) {
	sched := coro.NewScheduler(1)
	defer sched.Shutdown()

	r, w, err := coro.MakeChannel[int](sched, 2)
	require.NoError(t, err)

	got := make(chan []int, 1)
	sched.Go("producer", func(ctx *coro.Context) {
		for i := 0; i < 5; i++ {
			require.NoError(t, w.Put(ctx, i))
		}
		w.Close()
	})
	sched.Go("consumer", func(ctx *coro.Context) {
		var values []int
		for {
			v, err := r.Get(ctx)
			if err != nil {
				require.True(t, errors.Is(err, coro.ErrChannelClosed))
				got <- values
				return
			}
			values = append(values, v)
		}
	})

	select {
	case values := <-got:
		require.Equal(t, []int{0, 1, 2, 3, 4}, values)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not observe close")
	}
	sched.Wait()
}

// TestBlockExpandsProcessorPool checks that with a single active processor,
// one coroutine entering Block for a while doesn't stall two other
// coroutines spawned afterward: they must still make progress on a
// capacity-1 channel during that window, proving a replacement processor
// was spawned.
func TestBlockExpandsProcessorPool(t *testing.T) {
	sched := coro.NewScheduler(1)
	defer sched.Shutdown()

	release := make(chan struct{})
	blockerEntered := make(chan struct{})
	sched.Go("blocker", func(ctx *coro.Context) {
		ctx.Block(func() {
			close(blockerEntered)
			<-release
		})
	})
	<-blockerEntered

	r, w, err := coro.MakeChannel[int](sched, 1)
	require.NoError(t, err)
	progressed := make(chan struct{})
	sched.Go("writer", func(ctx *coro.Context) {
		require.NoError(t, w.Put(ctx, 42))
	})
	sched.Go("reader", func(ctx *coro.Context) {
		v, err := r.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, 42, v)
		close(progressed)
	})

	select {
	case <-progressed:
	case <-time.After(2 * time.Second):
		t.Fatal("reader/writer never progressed while a processor was blocked")
	}

	total, active, blocked := sched.ProcessorCounts()
	require.Equal(t, 1, active)
	require.Equal(t, 1, blocked)
	require.Equal(t, 2, total)

	close(release)
	sched.Wait()
}

// TestFreeFunctionAPI exercises the implicit goroutine-local surface
// (Go/MakeChannelFor/Block/Yield with no explicit scheduler or processor
// argument) rather than the explicit Scheduler/Context API used elsewhere.
func TestFreeFunctionAPI(t *testing.T) {
	sched := coro.NewScheduler(2)
	defer sched.Shutdown()

	result := make(chan int, 1)
	coro.Go(sched, "receiver", func() {
		r, w, err := coro.MakeChannelFor[int](1)
		require.NoError(t, err)

		coro.Go(sched, "sender", func() {
			require.NoError(t, w.Put(coro.Current(), 7))
		})

		coro.Yield("waiting for sender")
		v, err := r.Get(coro.Current())
		require.NoError(t, err)
		result <- v
	})

	select {
	case v := <-result:
		require.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("free-function coroutine never completed")
	}
	sched.Wait()
}

// TestCurrentPanicsOutsideCoroutine checks the UsageError contract: the
// free-function surface's implicit binding only exists inside a coroutine
// spawned via Go, and resolving it anywhere else must panic with
// ErrUsageError.
func TestCurrentPanicsOutsideCoroutine(t *testing.T) {
	require.PanicsWithValue(t, coro.ErrUsageError, func() {
		coro.Current()
	})
}
