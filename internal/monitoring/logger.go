// Package monitoring holds the diagnostic logger shared by the anchor
// pipeline. Nothing here is on the per-frame hot path unless a transition or
// failure needs reporting.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger, e.g. to mute tests or prefix a host's output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Errorf logs a recoverable failure. Misuse such as attaching a second
// interpolator to an anchor ends up here rather than panicking.
func Errorf(format string, v ...interface{}) {
	Logf("error: "+format, v...)
}
