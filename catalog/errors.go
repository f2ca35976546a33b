package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind groups crawl failures for metrics and retry decisions.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server"
	KindOther       ErrorKind = "other"
)

// FetchError describes a failed listing request.
type FetchError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request is worth repeating. Client errors
// other than rate limiting will fail the same way again.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindForbidden, KindNotFound:
		return false
	default:
		return true
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &FetchError{Kind: KindConnection, Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return &FetchError{Kind: KindForbidden, Status: statusCode, Err: wrapped}
		case statusCode == http.StatusNotFound:
			return &FetchError{Kind: KindNotFound, Status: statusCode, Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return &FetchError{Kind: KindRateLimited, Status: statusCode, Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return &FetchError{Kind: KindServer, Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return &FetchError{Kind: KindOther, Status: statusCode, Err: err}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return string(KindOther)
}
