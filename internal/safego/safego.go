// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine under the given task name. A panic in fn is
// recovered and logged with the task name and stack instead of crashing the process.
// Use it for every fire-and-forget goroutine (session sweeper, limiter cleanup).
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"task", task, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
