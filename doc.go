// Package coro is an embeddable M:N coroutine runtime: a small pool of
// processors (goroutines standing in for OS threads) multiplexes a larger
// number of cooperatively-scheduled coroutines, expanding elastically when a
// coroutine enters a blocking region and rebalancing idle processors via
// work stealing. Bounded, typed, synchronous channels are both the public
// concurrency primitive and the internal signaling substrate.
//
// The scheduler, processor and channel internals live in
// github.com/mgajewski/gocoro/internal/core; this package is the public
// façade plus a free-function convenience layer for callers who'd rather not
// thread a Context through every call.
package coro
