package masterslave

import "errors"

var (
	// ErrRunning indicates InitializeTask was called on a running controller.
	ErrRunning = errors.New("masterslave: task already running")

	// ErrLockTimeout indicates the pair lock could not be taken in time.
	ErrLockTimeout = errors.New("masterslave: lock timeout")
)
