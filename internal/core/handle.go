package core

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ID uniquely identifies a coroutine for the lifetime of a Scheduler.
type ID uint64

// yieldMsg is what a coroutine's goroutine sends back to whichever Processor
// called Resume: either "I yielded" or "I finished, and here's what I
// panicked with (if at all)".
type yieldMsg struct {
	finished bool
	panicVal any
}

// Handle is a coroutine: a resumable unit of work. It does not know about
// queues or the scheduler; it is a passive, routed object.
//
// A stackful context switch is realized here the idiomatic Go way: each
// Handle owns exactly one real goroutine for its entire life. "Resuming" and
// "yielding" are a baton pass over two unbuffered channels, so only one side
// is ever runnable at a time — cooperative, single-threaded execution per
// processor, without reaching for assembly or OS fibers.
type Handle struct {
	ID   ID
	Name string

	resumeCh  chan *Processor
	yieldedCh chan yieldMsg

	checkpoint atomic.Pointer[string]
	finished   atomic.Bool
	proc       atomic.Pointer[Processor]

	log zerolog.Logger
}

// Func is the body of a coroutine. It receives a Context bound to the
// Handle running it, through which it reaches channels, yield and block.
type Func func(ctx *Context)

// NewHandle allocates a Handle and starts its backing goroutine. The
// goroutine blocks immediately on the first Resume.
func NewHandle(id ID, name string, fn Func, sched *Scheduler, log zerolog.Logger) *Handle {
	h := &Handle{
		ID:        id,
		Name:      name,
		resumeCh:  make(chan *Processor),
		yieldedCh: make(chan yieldMsg),
		log:       log,
	}
	h.setCheckpoint("created")
	go h.launch(fn, sched)
	return h
}

func (h *Handle) launch(fn Func, sched *Scheduler) {
	p := <-h.resumeCh
	h.proc.Store(p)
	ctx := &Context{handle: h, sched: sched}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("coroutine", h.Name).Msg("coroutine body panicked")
			h.finished.Store(true)
			h.yieldedCh <- yieldMsg{finished: true, panicVal: r}
			return
		}
		h.finished.Store(true)
		h.yieldedCh <- yieldMsg{finished: true}
	}()

	fn(ctx)
}

// Resume transfers control to the coroutine's suspended point on behalf of
// p. It returns true once the coroutine has finished (and should never be
// resumed again).
func (h *Handle) Resume(p *Processor) (finished bool, panicVal any) {
	h.proc.Store(p)
	h.resumeCh <- p
	msg := <-h.yieldedCh
	return msg.finished, msg.panicVal
}

// yield suspends the calling coroutine (called from inside its own
// goroutine) and records reason as the last checkpoint. It returns the
// Processor that resumed it, which may differ from the one that most
// recently suspended it — the scheduler is free to migrate a parked
// coroutine to any processor on wake.
func (h *Handle) yield(reason string) *Processor {
	h.setCheckpoint(reason)
	h.yieldedCh <- yieldMsg{finished: false}
	return <-h.resumeCh
}

func (h *Handle) setCheckpoint(s string) {
	h.checkpoint.Store(&s)
}

// Checkpoint returns the last recorded suspension reason, for diagnostics.
func (h *Handle) Checkpoint() string {
	if p := h.checkpoint.Load(); p != nil {
		return *p
	}
	return ""
}

// Finished reports whether the coroutine's body has returned.
func (h *Handle) Finished() bool { return h.finished.Load() }

// CurrentProcessor returns the Processor that most recently resumed this
// coroutine. It is only meaningful while the coroutine is running.
func (h *Handle) CurrentProcessor() *Processor { return h.proc.Load() }
