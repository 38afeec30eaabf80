// Package safego launches background goroutines that survive panics.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on its own goroutine and recovers any panic, logging it with a
// stack trace instead of taking the process down. Audit writes and other
// fire-and-forget work go through here so a bad entry can never kill the
// server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in background goroutine",
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
