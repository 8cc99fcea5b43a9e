// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// CancelGracePeriod is how long a launcher waits for a renderer to exit
	// after a polite stop before escalating to a kill. Shared by every
	// launcher so renderers see the same grace regardless of where they run.
	CancelGracePeriod = 2 * time.Second

	// SessionTeardownTimeout is the maximum time a session teardown may keep
	// running after the originating request is gone.
	SessionTeardownTimeout = 30 * time.Second

	// SweepTimeout is the maximum time for one full keep-alive sweep,
	// including job teardowns.
	SweepTimeout = 60 * time.Second
)
