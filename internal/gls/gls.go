// Package gls implements a minimal goroutine-local registry, used only by
// the root package's free-function convenience API (Go, MakeChannelFor,
// Block, Yield) to resolve the "current processor" binding without
// threading a Context parameter through every call.
//
// Go deliberately has no goroutine-local storage API. This is the same
// technique community libraries such as jtolds/gls use: parse the numeric
// goroutine id out of runtime.Stack's header line and key a registry on it.
package gls

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	mu       sync.RWMutex
	bindings = make(map[uint64]any)
)

// goroutineID extracts the numeric id Go's runtime prints at the start of
// every stack trace ("goroutine 123 [running]: ...").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Bind associates v with the calling goroutine until Unbind is called. It is
// meant to be called once, right after a coroutine's backing goroutine wakes
// from its first resume.
func Bind(v any) {
	mu.Lock()
	bindings[goroutineID()] = v
	mu.Unlock()
}

// Unbind removes the calling goroutine's binding.
func Unbind() {
	id := goroutineID()
	mu.Lock()
	delete(bindings, id)
	mu.Unlock()
}

// Current returns the calling goroutine's bound value, if any.
func Current() (any, bool) {
	mu.RLock()
	v, ok := bindings[goroutineID()]
	mu.RUnlock()
	return v, ok
}
