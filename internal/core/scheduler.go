package core

import (
	"math/rand"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Scheduler owns the processor set, the global overflow queue, the starved
// LIFO and the live-coroutine set, and makes all placement decisions.
//
// Locking hierarchy (top to bottom, always acquired in this order):
// processorsMu -> coroutinesMu -> starvedMu -> globalMu. A Processor's own
// queue mutex is always below all of these: the scheduler may call into a
// processor while holding any of its locks, but a processor never calls
// back into the scheduler while holding its queue mutex.
type Scheduler struct {
	active int

	processorsMu sync.RWMutex
	processors   []*Processor
	blocked      int

	coroutinesMu sync.Mutex
	coroutines   map[*Handle]struct{}
	coroCond     *sync.Cond
	maxCoros     int
	nextID       ID

	starvedMu sync.Mutex
	starved   []*Processor

	globalMu sync.Mutex
	global   []*Handle

	randMu sync.Mutex
	rnd    *rand.Rand

	pool *ThreadPool
	log  zerolog.Logger
}

// Options configures a new Scheduler.
type Options struct {
	ThreadPoolSize int
	Logger         zerolog.Logger
	RandSeed       int64
}

// NewScheduler constructs a scheduler with the given number of active
// processors (must be >= 1). It starts active processor run loops
// immediately.
func NewScheduler(activeProcessors int, opts Options) *Scheduler {
	if activeProcessors < 1 {
		panic(UsageErrorf("active_processors must be >= 1, got %d", activeProcessors))
	}
	poolSize := opts.ThreadPoolSize
	if poolSize < 1 {
		poolSize = activeProcessors
	}
	seed := opts.RandSeed
	if seed == 0 {
		seed = 0x5eed // deterministic default; callers wanting entropy pass one in.
	}

	s := &Scheduler{
		active:     activeProcessors,
		coroutines: make(map[*Handle]struct{}),
		rnd:        rand.New(rand.NewSource(seed)),
		pool:       NewThreadPool(poolSize, opts.Logger),
		log:        opts.Logger,
	}
	s.coroCond = sync.NewCond(&s.coroutinesMu)

	s.processorsMu.Lock()
	for i := 0; i < activeProcessors; i++ {
		s.processors = append(s.processors, s.spawnProcessorLocked())
	}
	s.processorsMu.Unlock()

	return s
}

func (s *Scheduler) spawnProcessorLocked() *Processor {
	p := newProcessor(len(s.processors), s, s.log)
	go p.run()
	return p
}

// Go registers fn under name as a new live coroutine and routes it via
// schedule.
func (s *Scheduler) Go(name string, fn Func) *Handle {
	s.coroutinesMu.Lock()
	id := s.nextID
	s.nextID++
	s.coroutinesMu.Unlock()

	h := NewHandle(id, name, fn, s, s.log)

	s.coroutinesMu.Lock()
	s.coroutines[h] = struct{}{}
	if len(s.coroutines) > s.maxCoros {
		s.maxCoros = len(s.coroutines)
	}
	s.coroutinesMu.Unlock()

	s.log.Debug().Str("coroutine", name).Msg("spawned")
	s.schedule([]*Handle{h}, nil)
	return h
}

// schedule implements the placement order: starved first, then self (the
// calling coroutine's own processor, if any), then the global queue.
func (s *Scheduler) schedule(handles []*Handle, current *Processor) {
	if len(handles) == 0 {
		return
	}

	s.starvedMu.Lock()
	if n := len(s.starved); n > 0 {
		victim := s.starved[n-1]
		s.starved = s.starved[:n-1]
		s.starvedMu.Unlock()
		victim.EnqueueOrDie(handles)
		return
	}
	s.starvedMu.Unlock()

	if current != nil && current.Enqueue(handles) {
		return
	}

	s.globalMu.Lock()
	s.global = append(s.global, handles...)
	s.globalMu.Unlock()
}

// Schedule is the public form used by channel wake-ups and explicit yields;
// it resolves "self" from the handle's own current processor.
func (s *Scheduler) Schedule(h *Handle) {
	s.schedule([]*Handle{h}, h.CurrentProcessor())
}

// processorStarved handles a processor reporting an empty local queue:
// drain the global queue into it, failing that steal from the busiest
// active processor, and failing that park it on the starved list.
func (s *Scheduler) processorStarved(p *Processor) {
	s.globalMu.Lock()
	if len(s.global) > 0 {
		drained := s.global
		s.global = nil
		s.globalMu.Unlock()
		p.EnqueueOrDie(drained)
		return
	}
	s.globalMu.Unlock()

	s.processorsMu.RLock()
	idx := s.indexOf(p)
	if idx < 0 || idx >= s.active+s.blocked {
		s.processorsMu.RUnlock()
		return // exile: this processor is a shrinkage candidate, leave it to be reaped.
	}
	victim := s.mostBusyLocked(s.active)
	s.processorsMu.RUnlock()

	if victim != nil {
		if stolen := victim.Steal(); len(stolen) > 0 {
			s.log.Debug().Int("processor", p.ID).Int("victim", victim.ID).Int("n", len(stolen)).Msg("stole coroutines")
			p.EnqueueOrDie(stolen)
			return
		}
	}

	s.starvedMu.Lock()
	s.starved = append(s.starved, p)
	s.starvedMu.Unlock()
}

func (s *Scheduler) indexOf(p *Processor) int {
	for i, q := range s.processors {
		if q == p {
			return i
		}
	}
	return -1
}

// mostBusyLocked picks the processor with the largest local queue among the
// first n entries of s.processors, with the scheduler's PRNG breaking ties.
// Callers must hold at least a read lock on processorsMu.
func (s *Scheduler) mostBusyLocked(n int) *Processor {
	if n > len(s.processors) {
		n = len(s.processors)
	}
	if n == 0 {
		return nil
	}
	best := -1
	var bestLen int
	var ties []int
	for i := 0; i < n; i++ {
		l := s.processors[i].QueueLen()
		if l > bestLen || best < 0 {
			best, bestLen = i, l
			ties = ties[:0]
			ties = append(ties, i)
		} else if l == bestLen {
			ties = append(ties, i)
		}
	}
	if bestLen == 0 {
		return nil
	}
	if len(ties) > 1 {
		s.randMu.Lock()
		pick := ties[s.rnd.Intn(len(ties))]
		s.randMu.Unlock()
		return s.processors[pick]
	}
	return s.processors[best]
}

// runBlocking is the running->blocked->running transition: the calling
// coroutine's processor hands its remaining local queue to the scheduler, a
// replacement processor is spawned if needed, fn runs on the thread pool
// while this goroutine waits on it, and the processor rejoins as unblocked
// once fn returns.
func (s *Scheduler) runBlocking(h *Handle, fn func()) {
	p := h.CurrentProcessor()
	if p == nil {
		panic(UsageErrorf("block() called outside a processor"))
	}

	remaining := p.drainQueueForBlock()
	p.setState(StateBlocked)
	s.processorBlocked(p, remaining)

	done := make(chan struct{})
	s.pool.Run(func() {
		defer close(done)
		fn()
	})
	<-done

	p.setState(StateRunning)
	s.processorUnblocked(p)
}

func (p *Processor) drainQueueForBlock() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queue
	p.queue = nil
	return q
}

// processorBlocked accounts for a processor entering the blocked state: it
// spawns a replacement if the pool has fallen below active+blocked, then
// routes the blocked processor's orphaned queue elsewhere.
func (s *Scheduler) processorBlocked(p *Processor, remaining []*Handle) {
	s.processorsMu.Lock()
	s.blocked++
	if len(s.processors) < s.active+s.blocked {
		s.log.Debug().Int("processor", p.ID).Msg("spawning replacement processor for blocked one")
		s.processors = append(s.processors, s.spawnProcessorLocked())
	}
	s.processorsMu.Unlock()

	s.schedule(remaining, nil)
}

// processorUnblocked accounts for a processor leaving the blocked state and
// applies the high-water shrink trigger: once the pool exceeds
// 3*active+blocked, idle processors are stopped and dropped down to
// 2*active+blocked.
func (s *Scheduler) processorUnblocked(p *Processor) {
	s.processorsMu.Lock()
	if s.blocked <= 0 {
		panic(UsageErrorf("processor_unblocked called with blocked_processors == 0"))
	}
	s.blocked--

	if len(s.processors) > 3*s.active+s.blocked {
		s.starvedMu.Lock()
		for len(s.processors) > 2*s.active+s.blocked {
			tail := s.processors[len(s.processors)-1]
			if !tail.StopIfIdle() {
				break
			}
			s.starved = removeProcessor(s.starved, tail)
			s.processors = s.processors[:len(s.processors)-1]
		}
		s.starvedMu.Unlock()
	}
	s.processorsMu.Unlock()

	// p itself re-enters its run loop as a normal, unblocked processor; it
	// was never removed from s.processors.
	p.signal()
}

func removeProcessor(list []*Processor, target *Processor) []*Processor {
	out := list[:0]
	for _, p := range list {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// coroutineFinished removes h from the live set and wakes any Wait callers
// once no coroutines remain.
func (s *Scheduler) coroutineFinished(h *Handle) {
	s.coroutinesMu.Lock()
	delete(s.coroutines, h)
	empty := len(s.coroutines) == 0
	s.coroutinesMu.Unlock()
	if empty {
		s.coroCond.Broadcast()
	}
	s.log.Debug().Str("coroutine", h.Name).Msg("finished")
}

// Wait blocks the calling (external, non-coroutine) goroutine until the
// live-coroutine set is empty.
func (s *Scheduler) Wait() {
	s.coroutinesMu.Lock()
	defer s.coroutinesMu.Unlock()
	for len(s.coroutines) > 0 {
		s.coroCond.Wait()
	}
}

// LiveCount returns the number of live coroutines, for diagnostics and
// tests.
func (s *Scheduler) LiveCount() int {
	s.coroutinesMu.Lock()
	defer s.coroutinesMu.Unlock()
	return len(s.coroutines)
}

// ProcessorCounts reports the current {total, active, blocked} processor
// accounting, for diagnostics and tests.
func (s *Scheduler) ProcessorCounts() (total, active, blocked int) {
	s.processorsMu.RLock()
	defer s.processorsMu.RUnlock()
	return len(s.processors), s.active, s.blocked
}

// DebugDump prints a diagnostic snapshot and terminates the process. It is a
// debug last resort, not a recoverable operation. The snapshot goes to the
// configured logger, or to stderr when that logger is disabled.
func (s *Scheduler) DebugDump(exit func(int)) {
	s.processorsMu.RLock()
	s.coroutinesMu.Lock()

	log := s.log
	if log.GetLevel() == zerolog.Disabled {
		log = zerolog.New(os.Stderr)
	}
	log.Error().Int("live_coroutines", len(s.coroutines)).
		Int("max_coroutines", s.maxCoros).
		Int("processors", len(s.processors)).
		Int("blocked_processors", s.blocked).
		Msg("scheduler debug dump")
	for coro := range s.coroutines {
		log.Error().Str("coroutine", coro.Name).Str("checkpoint", coro.Checkpoint()).Msg("live coroutine")
	}

	s.coroutinesMu.Unlock()
	s.processorsMu.RUnlock()

	if exit == nil {
		exit = osExit
	}
	exit(1)
}

// Shutdown stops every processor after Wait() returns: wait for voluntary
// drain, then tear down the pool.
func (s *Scheduler) Shutdown() {
	s.Wait()
	s.processorsMu.Lock()
	procs := append([]*Processor(nil), s.processors...)
	s.processorsMu.Unlock()
	for _, p := range procs {
		for !p.StopIfIdle() {
			// A processor can be here if it has just finished the last
			// coroutine and not yet looped back to idle; Wait() guarantees
			// no coroutines remain, so it reaches idle shortly.
		}
		<-p.Done()
	}
	s.pool.StopAndJoin()
}
