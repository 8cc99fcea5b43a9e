// Package scheduler defines the launcher abstraction used to run rendering
// resources. Implementations cover a SLURM cluster reached over SSH, locally
// forked processes and Docker containers.
package scheduler

import (
	"context"
	"errors"
)

// ErrJobFailed is returned by ResolveHost when the job no longer exists or
// has reached a failed terminal state. Observing it moves the session to the
// failed state.
var ErrJobFailed = errors.New("job reached a terminal state")

// Job references a launched rendering resource. Exactly one of ID and PID is
// meaningful: cluster and container launchers set ID, the local process
// launcher sets PID.
type Job struct {
	ID  string
	PID int
}

// SubmitRequest describes the rendering resource to launch.
type SubmitRequest struct {
	SessionID   string
	Executable  string
	Arguments   []string
	Environment []string // K=V pairs
	Modules     []string // environment modules loaded before launch
	Port        int      // REST port the renderer listens on
}

// CancelOptions carries the renderer endpoint for the graceful exit request
// issued before the job is cancelled.
type CancelOptions struct {
	Host         string
	Port         int
	GracefulExit bool
}

// ExitRequester asks a renderer to terminate itself. Errors are ignored by
// contract; the job is cancelled right after regardless.
type ExitRequester interface {
	RequestExit(ctx context.Context, host string, port int)
}

// Launcher runs rendering resources and tracks them until termination.
type Launcher interface {
	// Submit launches the renderer and returns its job reference.
	Submit(ctx context.Context, req *SubmitRequest) (*Job, error)

	// ResolveHost reports where the renderer runs. An empty host means the
	// job is still pending; ErrJobFailed means it reached a terminal state.
	ResolveHost(ctx context.Context, job *Job) (string, error)

	// Cancel stops the job, optionally asking the renderer to exit first,
	// and waits up to two seconds for the cancellation to be observed.
	Cancel(ctx context.Context, job *Job, opts CancelOptions) error

	// Kill forcefully terminates the job. Used only after a failed Cancel;
	// a failure to deliver the kill is reported, never swallowed.
	Kill(ctx context.Context, job *Job) error

	// JobInfo returns the scheduler's raw description of the job.
	JobInfo(ctx context.Context, job *Job) (string, error)

	// FetchLog returns the contents of the renderer's error log.
	FetchLog(ctx context.Context, job *Job, executable string) (string, error)
}
