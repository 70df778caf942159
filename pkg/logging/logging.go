// Package logging wraps log/slog so every log line in the backup pipeline
// carries the worker attribute spec.md's log grammar calls for: a worker
// index, or "m" for the coordinator (primary).
package logging

import (
	"log/slog"
	"strconv"
)

// ForWorker returns a logger tagged with the given worker index.
func ForWorker(id int) *slog.Logger {
	return slog.Default().With("worker", strconv.Itoa(id))
}

// ForCoordinator returns a logger tagged with the coordinator's "m" tag.
func ForCoordinator() *slog.Logger {
	return slog.Default().With("worker", "m")
}
