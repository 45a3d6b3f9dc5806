package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// ThreadPool is the set of parked OS threads (goroutines standing in for
// them, per the same substitution used throughout this package) used to run
// arbitrary blocking closures for a coroutine's blocking regions.
type ThreadPool struct {
	log zerolog.Logger

	slots []*parkedSlot

	freeMu sync.Mutex
	free   []*freeThread
}

type parkedSlot struct {
	mu      sync.Mutex
	cv      *sync.Cond
	fn      func()
	running bool
	stopped bool
}

func newParkedSlot() *parkedSlot {
	s := &parkedSlot{}
	s.cv = sync.NewCond(&s.mu)
	go s.routine()
	return s
}

func (s *parkedSlot) routine() {
	for {
		s.mu.Lock()
		for s.fn == nil && !s.stopped {
			s.cv.Wait()
		}
		if s.stopped && s.fn == nil {
			s.mu.Unlock()
			return
		}
		fn := s.fn
		s.mu.Unlock()

		fn()

		s.mu.Lock()
		s.fn = nil
		s.running = false
		s.cv.Broadcast()
		s.mu.Unlock()
	}
}

// run hands fn to this slot if it is idle, returning true on acceptance.
func (s *parkedSlot) run(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return false
	}
	s.running = true
	s.fn = fn
	s.cv.Signal()
	return true
}

func (s *parkedSlot) join() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running {
		s.cv.Wait()
	}
}

func (s *parkedSlot) stopAndJoin() {
	s.mu.Lock()
	s.stopped = true
	s.cv.Broadcast()
	s.mu.Unlock()
	s.join()
}

// freeThread is an ad-hoc, single-use goroutine created when every parked
// slot is busy.
type freeThread struct {
	done chan struct{}
}

func newFreeThread(fn func()) *freeThread {
	ft := &freeThread{done: make(chan struct{})}
	go func() {
		defer close(ft.done)
		fn()
	}()
	return ft
}

func (ft *freeThread) finished() bool {
	select {
	case <-ft.done:
		return true
	default:
		return false
	}
}

func (ft *freeThread) join() { <-ft.done }

// NewThreadPool creates a fixed pool of size parked slots.
func NewThreadPool(size int, log zerolog.Logger) *ThreadPool {
	if size < 1 {
		size = 1
	}
	tp := &ThreadPool{log: log}
	for i := 0; i < size; i++ {
		tp.slots = append(tp.slots, newParkedSlot())
	}
	return tp
}

// Run hands fn to the first idle parked slot; failing that, it spins up a
// fresh ad-hoc thread and opportunistically reaps finished ones.
func (tp *ThreadPool) Run(fn func()) {
	for _, s := range tp.slots {
		if s.run(fn) {
			return
		}
	}

	tp.freeMu.Lock()
	tp.free = append(tp.free, newFreeThread(fn))
	tp.freeMu.Unlock()
	tp.log.Debug().Int("overflow", len(tp.free)).Msg("thread pool overflowed to a free thread")
	tp.reapCompleted()
}

// reapCompleted erases finished free threads from the overflow list, so the
// overflow list doesn't grow without bound under sustained blocking load.
func (tp *ThreadPool) reapCompleted() {
	tp.freeMu.Lock()
	defer tp.freeMu.Unlock()
	live := tp.free[:0]
	for _, ft := range tp.free {
		if !ft.finished() {
			live = append(live, ft)
		}
	}
	tp.free = live
}

// Join waits for every parked slot to become idle and for all free threads
// to finish.
func (tp *ThreadPool) Join() {
	for _, s := range tp.slots {
		s.join()
	}
	tp.freeMu.Lock()
	free := tp.free
	tp.free = nil
	tp.freeMu.Unlock()
	for _, ft := range free {
		ft.join()
	}
}

// StopAndJoin signals every parked slot to terminate after its current task
// and waits for everything to finish.
func (tp *ThreadPool) StopAndJoin() {
	for _, s := range tp.slots {
		s.stopAndJoin()
	}
	tp.freeMu.Lock()
	free := tp.free
	tp.free = nil
	tp.freeMu.Unlock()
	for _, ft := range free {
		ft.join()
	}
}
