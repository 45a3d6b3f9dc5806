package coro

import (
	"github.com/mgajewski/gocoro/internal/core"
)

// Scheduler owns a pool of processors and places coroutines onto them. The
// zero value is not usable; construct one with NewScheduler.
type Scheduler struct {
	core *core.Scheduler
}

// Context is the view a running coroutine has of its own handle, processor
// and scheduler.
type Context = core.Context

// Func is the body of a coroutine, receiving the Context it runs under.
type Func = core.Func

// Reader is the exclusive, move-only read half of a channel.
type Reader[T any] = core.Reader[T]

// Writer is the exclusive, move-only write half of a channel.
type Writer[T any] = core.Writer[T]

// Handle is a coroutine's handle: identity, name, last checkpoint, finished
// state.
type Handle = core.Handle

// NewScheduler constructs a scheduler with activeProcessors active
// processors (must be >= 1).
func NewScheduler(activeProcessors int, opts ...Option) *Scheduler {
	return &Scheduler{core: core.NewScheduler(activeProcessors, resolveOptions(opts))}
}

// Go spawns name/fn as a new coroutine, routed onto the processor pool.
func (s *Scheduler) Go(name string, fn Func) *Handle {
	return s.core.Go(name, fn)
}

// MakeChannel creates a new bounded channel of the given capacity and splits
// it into reader/writer halves.
func MakeChannel[T any](s *Scheduler, capacity int) (*Reader[T], *Writer[T], error) {
	return core.MakeChannel[T](s.core, capacity)
}

// Wait blocks the calling thread until every live coroutine has finished.
func (s *Scheduler) Wait() { s.core.Wait() }

// DebugDump prints a diagnostic snapshot (coroutine names, last checkpoints,
// processor counts) and terminates the process. It is a debug last resort,
// not a recoverable operation.
func (s *Scheduler) DebugDump() { s.core.DebugDump(nil) }

// LiveCount reports the number of live coroutines. Diagnostic, useful for
// tests and monitoring.
func (s *Scheduler) LiveCount() int { return s.core.LiveCount() }

// ProcessorCounts reports {total, active, blocked} processor accounting.
func (s *Scheduler) ProcessorCounts() (total, active, blocked int) {
	return s.core.ProcessorCounts()
}

// Shutdown waits for all coroutines to drain and then stops every
// processor and the thread pool.
func (s *Scheduler) Shutdown() { s.core.Shutdown() }
