package coro

import "github.com/mgajewski/gocoro/internal/core"

// Sentinel error kinds. Use errors.Is(err, coro.ErrChannelClosed) etc.
var (
	ErrChannelClosed     = core.ErrChannelClosed
	ErrAllocationFailure = core.ErrAllocationFailure
	ErrUsageError        = core.ErrUsageError
	ErrProcessorFault    = core.ErrProcessorFault
)
