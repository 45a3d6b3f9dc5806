package core

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// State is a Processor's position in the {running, idle, blocked, stopping}
// state machine.
type State int32

const (
	StateRunning State = iota
	StateIdle
	StateBlocked
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateBlocked:
		return "blocked"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Processor is an OS-thread-bound executor: it owns a local FIFO ready
// queue, runs coroutines cooperatively one at a time, and exposes steal and
// block/unblock transitions to the Scheduler.
//
// "OS thread" is realized as a dedicated goroutine running Processor.run;
// the stackful context switch is satisfied by Handle's resume/yield channel
// handshake (see handle.go), so only one coroutine is ever runnable under a
// given Processor at a time — single-threaded, cooperative execution per
// processor, with true parallelism only across processors.
type Processor struct {
	ID    int
	sched *Scheduler

	mu    sync.Mutex
	queue []*Handle

	state   atomic.Int32
	current atomic.Pointer[Handle]

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}

	log zerolog.Logger
}

func newProcessor(id int, sched *Scheduler, log zerolog.Logger) *Processor {
	p := &Processor{
		ID:     id,
		sched:  sched,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		log:    log.With().Int("processor", id).Logger(),
	}
	p.state.Store(int32(StateIdle))
	return p
}

// State reports the processor's current position in the state machine.
func (p *Processor) State() State { return State(p.state.Load()) }

func (p *Processor) setState(s State) { p.state.Store(int32(s)) }

// QueueLen returns a point-in-time snapshot of the local ready queue length,
// used by the scheduler's "most busy" steal-victim selection.
func (p *Processor) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Enqueue pushes handles onto the local ready queue if this processor is
// accepting work. It reports false if the processor is stopping, in which
// case the caller must route the range elsewhere.
func (p *Processor) Enqueue(handles []*Handle) bool {
	if len(handles) == 0 {
		return true
	}
	if p.State() == StateStopping {
		return false
	}
	p.mu.Lock()
	if p.State() == StateStopping {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, handles...)
	p.mu.Unlock()
	p.signal()
	return true
}

// EnqueueOrDie is Enqueue for callers that have already decided this
// processor must accept the work; refusal is a scheduler invariant
// violation.
func (p *Processor) EnqueueOrDie(handles []*Handle) {
	if !p.Enqueue(handles) {
		panic(UsageErrorf("processor %d refused enqueue_or_die", p.ID))
	}
}

func (p *Processor) dequeue() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	h := p.queue[0]
	p.queue = p.queue[1:]
	return h
}

// Steal takes up to half of this processor's local queue, from the tail (the
// end opposite the owner's head-dequeue), and returns it. An empty result
// means the target had nothing worth stealing.
func (p *Processor) Steal() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue) / 2
	if n == 0 {
		return nil
	}
	split := len(p.queue) - n
	stolen := append([]*Handle(nil), p.queue[split:]...)
	p.queue = p.queue[:split]
	return stolen
}

// StopIfIdle marks the processor stopping if it currently has no running
// coroutine and an empty queue, returning true on success.
func (p *Processor) StopIfIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.Load() != nil || len(p.queue) != 0 {
		return false
	}
	if p.State() == StateStopping {
		return true
	}
	if p.State() != StateIdle {
		return false
	}
	p.setState(StateStopping)
	close(p.stopCh)
	return true
}

func (p *Processor) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Current returns the handle currently running on this processor, if any.
func (p *Processor) Current() *Handle { return p.current.Load() }

// Done is closed once the processor's run loop has exited.
func (p *Processor) Done() <-chan struct{} { return p.done }

// run is the processor's internal loop:
//  1. empty local queue -> signal starved, wait for work or stop.
//  2. pop one coroutine, mark running, resume it.
//  3. on return: finished -> notify scheduler; else it yielded (already
//     routed by whoever caused the yield).
func (p *Processor) run() {
	defer close(p.done)
	for {
		h := p.dequeue()
		if h == nil {
			if p.State() == StateStopping {
				return
			}
			p.setState(StateIdle)
			p.sched.processorStarved(p)
			select {
			case <-p.wake:
				continue
			case <-p.stopCh:
				return
			}
		}

		p.setState(StateRunning)
		p.current.Store(h)
		finished, panicVal := h.Resume(p)
		p.current.Store(nil)

		if finished {
			if panicVal != nil {
				p.log.Error().Str("coroutine", h.Name).Interface("panic", panicVal).Msg("processor fault: coroutine panicked")
			}
			p.sched.coroutineFinished(h)
			continue
		}
		// Yielded: either parked on a channel wait-list (someone else will
		// schedule it on wake) or already re-enqueued by Context.Yield.
	}
}
