package coro

import (
	"github.com/rs/zerolog"

	"github.com/mgajewski/gocoro/internal/core"
)

// Option configures a Scheduler using the standard applyX-interface
// functional-option shape: an unexported apply method plus an optionFunc
// adapter.
type Option interface {
	apply(*core.Options)
}

type optionFunc func(*core.Options)

func (f optionFunc) apply(o *core.Options) { f(o) }

// WithThreadPoolSize sets the number of parked thread-pool slots backing
// block{} regions. Defaults to the active processor count.
func WithThreadPoolSize(n int) Option {
	return optionFunc(func(o *core.Options) { o.ThreadPoolSize = n })
}

// WithLogger sets the zerolog.Logger used for lifecycle diagnostics.
// Defaults to a disabled (Nop) logger.
func WithLogger(log zerolog.Logger) Option {
	return optionFunc(func(o *core.Options) { o.Logger = log })
}

// WithRandSeed sets the seed for the scheduler's steal-victim tie-breaking
// PRNG. Defaults to a fixed seed for reproducible tests.
func WithRandSeed(seed int64) Option {
	return optionFunc(func(o *core.Options) { o.RandSeed = seed })
}

func resolveOptions(opts []Option) core.Options {
	cfg := core.Options{Logger: zerolog.Nop()}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&cfg)
	}
	return cfg
}
