package location

import "errors"

var (
	// ErrPermissionDenied means the OS or user denied access to the
	// positioning hardware. Terminal for the current acquisition attempt.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrPositionUnavailable means the provider could not resolve a fix.
	// Transient; callers may retry at reduced accuracy.
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrTimeout means no fix arrived within the configured bound.
	ErrTimeout = errors.New("location request timed out")
)

// Terminal reports whether err rules out any further acquisition attempt.
func Terminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
