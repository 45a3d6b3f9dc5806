package core

import "os"

// osExit is the default DebugDump termination hook, split out so tests can
// substitute a non-fatal one.
func osExit(code int) { os.Exit(code) }
