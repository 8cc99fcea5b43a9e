// Package process launches rendering resources as locally forked child
// processes. Each child runs in its own process group so cancellation can
// take the whole renderer tree down; stdout and stderr are captured to
// per-job files in the configured work directory.
package process

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/common/constants"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/scheduler"
)

const dialTimeout = 500 * time.Millisecond

type localJob struct {
	cmd      *exec.Cmd
	port     int
	outPath  string
	errPath  string
	started  time.Time
	done     chan struct{} // closed once the child has been reaped
	exitErr  error
	exitSeen time.Time
}

func (j *localJob) exited() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Launcher forks renderers on the local machine. Environment modules have no
// meaning outside the cluster and are ignored.
type Launcher struct {
	workDir string
	exiter  scheduler.ExitRequester
	logger  *logger.Logger

	mu   sync.Mutex
	jobs map[int]*localJob
}

var _ scheduler.Launcher = (*Launcher)(nil)

// NewLauncher creates a process launcher writing renderer output below workDir.
func NewLauncher(workDir string, exiter scheduler.ExitRequester, log *logger.Logger) *Launcher {
	return &Launcher{
		workDir: workDir,
		exiter:  exiter,
		logger:  log.WithFields(zap.String("component", "process-launcher")),
		jobs:    make(map[int]*localJob),
	}
}

// Submit forks the renderer and starts reaping it in the background.
func (l *Launcher) Submit(ctx context.Context, req *scheduler.SubmitRequest) (*scheduler.Job, error) {
	if err := os.MkdirAll(l.workDir, 0o755); err != nil {
		return nil, apperrors.SchedulerFailure("failed to prepare work directory", err)
	}

	outPath := filepath.Join(l.workDir, fmt.Sprintf("%s_%s.out", filepath.Base(req.Executable), req.SessionID))
	errPath := filepath.Join(l.workDir, fmt.Sprintf("%s_%s.err", filepath.Base(req.Executable), req.SessionID))
	outFile, err := os.Create(outPath)
	if err != nil {
		return nil, apperrors.SchedulerFailure("failed to create output file", err)
	}
	errFile, err := os.Create(errPath)
	if err != nil {
		_ = outFile.Close()
		return nil, apperrors.SchedulerFailure("failed to create error file", err)
	}

	cmd := exec.Command(req.Executable, req.Arguments...)
	cmd.Env = append(os.Environ(), req.Environment...)
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = outFile.Close()
		_ = errFile.Close()
		return nil, apperrors.SchedulerFailure(
			fmt.Sprintf("failed to start %s", req.Executable), err)
	}

	job := &localJob{
		cmd:     cmd,
		port:    req.Port,
		outPath: outPath,
		errPath: errPath,
		started: time.Now().UTC(),
		done:    make(chan struct{}),
	}
	pid := cmd.Process.Pid

	l.mu.Lock()
	l.jobs[pid] = job
	l.mu.Unlock()

	l.logger.Info("renderer process started",
		zap.String("session_id", req.SessionID),
		zap.String("executable", req.Executable),
		zap.Int("pid", pid))

	go func() {
		job.exitErr = cmd.Wait()
		job.exitSeen = time.Now().UTC()
		_ = outFile.Close()
		_ = errFile.Close()
		close(job.done)
		l.logger.Info("renderer process exited", zap.Int("pid", pid), zap.Error(job.exitErr))
	}()

	return &scheduler.Job{PID: pid}, nil
}

func (l *Launcher) lookup(pid int) (*localJob, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[pid]
	return job, ok
}

// ResolveHost reports "localhost" once the child accepts connections on its
// REST port. An exited or unknown child is a terminal state.
func (l *Launcher) ResolveHost(ctx context.Context, job *scheduler.Job) (string, error) {
	tracked, ok := l.lookup(job.PID)
	if !ok || tracked.exited() {
		return "", scheduler.ErrJobFailed
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("localhost", strconv.Itoa(tracked.port)))
	if err != nil {
		// Not listening yet.
		return "", nil
	}
	_ = conn.Close()
	return "localhost", nil
}

// Cancel optionally asks the renderer to exit, then terminates the process
// group and waits up to two seconds for the child to be reaped.
func (l *Launcher) Cancel(ctx context.Context, job *scheduler.Job, opts scheduler.CancelOptions) error {
	if opts.GracefulExit && opts.Host != "" && l.exiter != nil {
		l.exiter.RequestExit(ctx, opts.Host, opts.Port)
	}

	tracked, ok := l.lookup(job.PID)
	if !ok {
		// Nothing to stop; treat as already cancelled.
		return nil
	}
	if tracked.exited() {
		l.remove(job.PID)
		return nil
	}

	l.logger.Debug("terminating renderer process", zap.Int("pid", job.PID))
	_ = terminateGroup(job.PID)

	select {
	case <-tracked.done:
		l.remove(job.PID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(constants.CancelGracePeriod):
		return apperrors.SchedulerFailure(
			fmt.Sprintf("could not stop process %d", job.PID), nil)
	}
}

// Kill force-terminates the process group.
func (l *Launcher) Kill(ctx context.Context, job *scheduler.Job) error {
	tracked, ok := l.lookup(job.PID)
	if !ok {
		return nil
	}
	if tracked.exited() {
		l.remove(job.PID)
		return nil
	}

	l.logger.Info("killing renderer process", zap.Int("pid", job.PID))
	if err := killGroup(job.PID); err != nil {
		return apperrors.SchedulerFailure(
			fmt.Sprintf("could not kill process %d", job.PID), err)
	}

	select {
	case <-tracked.done:
	case <-time.After(constants.CancelGracePeriod):
	}
	l.remove(job.PID)
	return nil
}

func (l *Launcher) remove(pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.jobs, pid)
}

// JobInfo describes the tracked child in a scontrol-like single line.
func (l *Launcher) JobInfo(ctx context.Context, job *scheduler.Job) (string, error) {
	tracked, ok := l.lookup(job.PID)
	if !ok {
		return "", apperrors.NotFound("process", strconv.Itoa(job.PID))
	}

	state := "RUNNING"
	if tracked.exited() {
		state = "COMPLETED"
		if tracked.exitErr != nil {
			state = "FAILED"
		}
	}
	return fmt.Sprintf("Pid=%d JobState=%s Command=%s StartTime=%s\n",
		job.PID, state, tracked.cmd.Path, tracked.started.Format(time.RFC3339)), nil
}

// FetchLog returns the contents of the child's captured stderr.
func (l *Launcher) FetchLog(ctx context.Context, job *scheduler.Job, executable string) (string, error) {
	tracked, ok := l.lookup(job.PID)
	if !ok {
		return "", apperrors.NotFound("process", strconv.Itoa(job.PID))
	}

	contents, err := os.ReadFile(tracked.errPath)
	if err != nil {
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("could not read log file %s", tracked.errPath), err)
	}
	return tracked.errPath + ":\n" + string(contents), nil
}
