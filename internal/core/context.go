package core

// Context is the view a running coroutine has of its own handle, processor
// and scheduler. Go has no first-class goroutine-local storage, so this
// explicit parameter threaded through every suspension point stands in for
// the implicit thread-local binding a stackful-coroutine runtime would
// otherwise carry. The package-level free functions (see the root package)
// additionally bind a Context per goroutine via internal/gls, for callers
// who want an implicit surface instead.
type Context struct {
	handle *Handle
	sched  *Scheduler
}

// Handle returns the coroutine handle this context belongs to.
func (c *Context) Handle() *Handle { return c.handle }

// Scheduler returns the owning scheduler.
func (c *Context) Scheduler() *Scheduler { return c.sched }

// Processor returns the processor currently running this coroutine.
func (c *Context) Processor() *Processor { return c.handle.CurrentProcessor() }

// Yield suspends the current coroutine, recording reason as its last
// checkpoint, and hands control back to its processor. Unlike a channel
// park, nothing else holds a reference to this handle once it suspends, so
// Yield re-enqueues it itself before suspending. The scheduler may hand it
// to another (starved) processor at once; that processor's Resume cannot
// complete its handoff until this coroutine has yielded below.
func (c *Context) Yield(reason string) {
	c.sched.Schedule(c.handle)
	c.handle.yield(reason)
}

// Block runs fn on a dedicated OS thread via the scheduler's thread pool.
// This coroutine's processor enters the blocked state and stays with it
// until fn returns; its queued coroutines are handed back to the scheduler
// and a replacement processor is spawned if needed, so other ready
// coroutines keep running. The calling goroutine (and hence this coroutine)
// remains parked on fn for its duration; Block returns once fn returns.
func (c *Context) Block(fn func()) {
	c.sched.runBlocking(c.handle, fn)
}
