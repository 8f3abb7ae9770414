package gateway

import (
	"errors"
	"net"
)

// Failure classes surfaced by Invoke. Callers classify with errors.Is.
var (
	// ErrInvalidArgument covers unknown tools and arguments that fail the
	// tool's input schema. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRateLimitExceeded is returned when a call blocked on its rate
	// class for longer than the configured wait ceiling.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrDomainNotAllowed is returned before any network call when a
	// URL-fetching tool targets a host outside the allow-list.
	ErrDomainNotAllowed = errors.New("domain not allowed")

	// ErrUpstream is returned once the retry budget for transient
	// failures is exhausted, or for a non-transient upstream failure.
	ErrUpstream = errors.New("upstream error")

	// ErrTransient marks handler failures worth retrying (timeouts, 5xx,
	// connection resets). Handlers wrap their errors with it; the
	// gateway's retry predicate keys off it.
	ErrTransient = errors.New("transient upstream failure")
)

// IsTransient reports whether a handler failure should be retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
