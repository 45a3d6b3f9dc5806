package coro

import (
	"github.com/mgajewski/gocoro/internal/gls"
)

// The free functions below are an implicit convenience surface: each one
// resolves the calling goroutine's bound *Context via internal/gls and
// forwards to the Context-based API, which remains the primary, explicit,
// idiomatic surface (see internal/core/context.go's doc comment for why).
//
// The binding is established by Go: every coroutine spawned through Go gets
// its Context bound to its own backing goroutine before its body runs, and
// unbound once it finishes.

// Go spawns name/fn on sched as a new coroutine and binds the free-function
// API for the duration of its body.
func Go(sched *Scheduler, name string, fn func()) *Handle {
	return sched.Go(name, func(ctx *Context) {
		gls.Bind(ctx)
		defer gls.Unbind()
		fn()
	})
}

func current() *Context {
	v, ok := gls.Current()
	if !ok {
		panic(ErrUsageError)
	}
	ctx, ok := v.(*Context)
	if !ok {
		panic(ErrUsageError)
	}
	return ctx
}

// Current returns the calling coroutine's bound Context, for passing to
// Reader.Get/Writer.Put from free-function-style code. Channel operations
// keep an explicit Context parameter even under the free-function surface;
// Current is how a coroutine spawned via Go recovers one. It must be called
// from inside a coroutine spawned via Go.
func Current() *Context { return current() }

// Block runs fn on a dedicated OS thread via the current scheduler's thread
// pool, and must be called from inside a coroutine spawned via Go. The
// current processor stays blocked until fn returns; a replacement processor
// runs other ready coroutines meanwhile.
func Block(fn func()) { current().Block(fn) }

// Yield suspends the calling coroutine, recording reason as its last
// checkpoint, and must be called from inside a coroutine spawned via Go.
func Yield(reason string) { current().Yield(reason) }

// MakeChannelFor creates a channel on the calling coroutine's current
// scheduler, for callers using the free-function API exclusively. Prefer
// MakeChannel when a *Scheduler is already at hand.
func MakeChannelFor[T any](capacity int) (*Reader[T], *Writer[T], error) {
	ctx := current()
	return MakeChannel[T](&Scheduler{core: ctx.Scheduler()}, capacity)
}
