package agent

import "errors"

var (
	// ErrVendorAuth marks authentication/authorization failures from a
	// model vendor. Never retried; the run fails immediately.
	ErrVendorAuth = errors.New("vendor authentication failed")

	// ErrVendorTransient marks vendor failures worth re-attempting the
	// whole run for: timeouts, connection errors, vendor-side rate limits,
	// 5xx responses.
	ErrVendorTransient = errors.New("transient vendor failure")
)

// IsRetryable reports whether a vendor failure should trigger a whole-run
// retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVendorTransient)
}
