package autosave

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("autosave: controller closed")
	// ErrOffline is returned when a save was queued instead of attempted.
	ErrOffline = errors.New("autosave: offline, payload queued")
	// ErrFlushInProgress is returned when a queue flush is already running.
	ErrFlushInProgress = errors.New("autosave: flush already in progress")
	// ErrNoConflict is returned by Resolve when nothing is pending.
	ErrNoConflict = errors.New("autosave: no conflict to resolve")
)

// ConflictError indicates the remote copy changed after the last local save.
// Save collaborators may also return it to report a server-side conflict.
type ConflictError struct {
	LocalSavedAt    time.Time
	RemoteUpdatedAt time.Time
}

func (e *ConflictError) Error() string {
	if e.RemoteUpdatedAt.IsZero() {
		return "conflict: remote rejected save"
	}
	return fmt.Sprintf("conflict: remote updated at %s after local save at %s",
		e.RemoteUpdatedAt.Format(time.RFC3339), e.LocalSavedAt.Format(time.RFC3339))
}

// RetryError indicates every attempt of a save failed.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Errorf("save failed after %d attempts: %w", e.Attempts, e.Err).Error()
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// HTTPError indicates a non-success response from an HTTP collaborator.
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Errorf("http status %d: %w", e.StatusCode, e.Err).Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if IsConflict(err) {
		return "conflict"
	}
	if errors.Is(err, ErrOffline) {
		return "offline"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 {
			return "server"
		}
		return "client"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "other"
}
