// Package debug provides a cheap, opt-in trace logger for the core. Log
// routing is left to the host; this just gates the core's own diagnostic
// prints behind a single boolean.
package debug

import "log"

// Logf prints a formatted trace line when enabled is true. Callers pass
// their config's Debug flag; there is no global state to avoid hidden
// coupling between unrelated components.
func Logf(enabled bool, format string, args ...any) {
	if !enabled {
		return
	}
	log.Printf(format, args...)
}
