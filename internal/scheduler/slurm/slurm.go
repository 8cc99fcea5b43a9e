// Package slurm launches rendering resources as batch jobs on a SLURM
// cluster. All cluster interaction goes through a single SSH control channel
// to the head node; the underlying connection is not reentrant, so every
// operation serializes on one mutex.
package slurm

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/common/constants"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/common/stringutil"
	"github.com/bluegrid/rrm/internal/scheduler"
)

const (
	connectTimeout = 10 * time.Second
	cancelPoll     = 250 * time.Millisecond
	// maxLoggedOutput caps how much remote command output lands in debug
	// logs; scontrol dumps can run to several kilobytes per job.
	maxLoggedOutput = 512
)

// Launcher submits, queries and cancels SLURM jobs over SSH.
type Launcher struct {
	cfg    config.SlurmConfig
	exiter scheduler.ExitRequester
	logger *logger.Logger

	mu     sync.Mutex
	client *ssh.Client
}

var _ scheduler.Launcher = (*Launcher)(nil)

// NewLauncher creates a SLURM launcher. The control channel is established
// lazily on first use.
func NewLauncher(cfg config.SlurmConfig, exiter scheduler.ExitRequester, log *logger.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		exiter: exiter,
		logger: log.WithFields(zap.String("component", "slurm-launcher")),
	}
}

// Close shuts down the control channel.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

// connectLocked establishes the SSH control channel. Callers hold l.mu.
func (l *Launcher) connectLocked() error {
	if l.client != nil {
		return nil
	}
	sshConfig := &ssh.ClientConfig{
		User: l.cfg.Username,
		Auth: []ssh.AuthMethod{ssh.Password(l.cfg.Password)},
		// Head nodes sit behind a DNS alias and present varying host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return apperrors.SchedulerFailure(fmt.Sprintf("failed to connect to cluster at %s", addr), err)
	}
	l.logger.Info("connected to cluster control channel", zap.String("addr", addr))
	l.client = client
	return nil
}

// run executes one remote command under the adapter mutex and returns its
// combined output. A dropped connection is re-established once.
func (l *Launcher) run(ctx context.Context, command, stdin string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.connectLocked(); err != nil {
		return "", err
	}
	session, err := l.client.NewSession()
	if err != nil {
		_ = l.client.Close()
		l.client = nil
		if err := l.connectLocked(); err != nil {
			return "", err
		}
		if session, err = l.client.NewSession(); err != nil {
			return "", apperrors.SchedulerFailure("failed to open control session", err)
		}
	}
	defer func() { _ = session.Close() }()

	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		res := <-done
		return string(res.output), ctx.Err()
	case res := <-done:
		l.logger.Debug("remote command completed",
			zap.String("command", command),
			zap.String("output", stringutil.TruncateStringWithEllipsis(string(res.output), maxLoggedOutput)))
		return string(res.output), res.err
	}
}

// Submit renders the batch script, pipes it to sbatch and returns the opaque
// job id built from the configured service URL and the cluster job number.
func (l *Launcher) Submit(ctx context.Context, req *scheduler.SubmitRequest) (*scheduler.Job, error) {
	script := buildBatchScript(req, l.cfg)
	l.logger.Info("submitting job",
		zap.String("session_id", req.SessionID),
		zap.String("executable", req.Executable))
	l.logger.Debug("batch script", zap.String("script", script))

	output, err := l.run(ctx, "sbatch", script)
	if err != nil {
		return nil, apperrors.SchedulerFailure(
			fmt.Sprintf("sbatch failed: %s", strings.TrimSpace(output)), err)
	}
	number, err := parseSubmission(output)
	if err != nil {
		return nil, err
	}

	jobID := opaqueJobID(l.cfg.ServiceURL, number)
	l.logger.Info("job submitted", zap.String("job_id", jobID))
	return &scheduler.Job{ID: jobID}, nil
}

// ResolveHost queries scontrol for the job state. Pending jobs report an
// empty host; terminal states report ErrJobFailed; running jobs report the
// batch host qualified with the cluster domain.
func (l *Launcher) ResolveHost(ctx context.Context, job *scheduler.Job) (string, error) {
	number, err := jobNumber(job.ID)
	if err != nil {
		return "", err
	}

	output, err := l.run(ctx, "scontrol show job "+number, "")
	if err != nil {
		if strings.Contains(output, "Invalid job id") {
			return "", scheduler.ErrJobFailed
		}
		return "", apperrors.SchedulerFailure("scontrol query failed", err)
	}

	state, err := parseJobState(output)
	if err != nil {
		return "", err
	}
	l.logger.Debug("job state", zap.String("job_id", job.ID), zap.String("state", state))

	if terminalStates[state] {
		return "", scheduler.ErrJobFailed
	}
	if state != "RUNNING" {
		return "", nil
	}
	return parseBatchHost(output, l.cfg.HostDomain)
}

// Cancel optionally asks the renderer to exit, cancels the job and waits up
// to two seconds for the cancellation to be observed. A job that is already
// gone counts as cancelled.
func (l *Launcher) Cancel(ctx context.Context, job *scheduler.Job, opts scheduler.CancelOptions) error {
	if opts.GracefulExit && opts.Host != "" && l.exiter != nil {
		l.exiter.RequestExit(ctx, opts.Host, opts.Port)
	}

	number, err := jobNumber(job.ID)
	if err != nil {
		return err
	}

	l.logger.Debug("cancelling job", zap.String("job_id", job.ID))
	if output, err := l.run(ctx, "scancel "+number, ""); err != nil {
		if strings.Contains(output, "Invalid job id") {
			return nil
		}
		return apperrors.SchedulerFailure("scancel failed", err)
	}

	deadline := time.Now().Add(constants.CancelGracePeriod)
	for {
		output, err := l.run(ctx, "scontrol show job "+number, "")
		if err != nil && strings.Contains(output, "Invalid job id") {
			return nil
		}
		if err == nil {
			if state, stateErr := parseJobState(output); stateErr == nil && terminalStates[state] {
				l.logger.Info("job cancelled", zap.String("job_id", job.ID))
				return nil
			}
		}
		if time.Now().After(deadline) {
			return apperrors.SchedulerFailure(fmt.Sprintf("could not cancel job %s", job.ID), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cancelPoll):
		}
	}
}

// Kill delivers SIGKILL to the job. Only used after a failed Cancel.
func (l *Launcher) Kill(ctx context.Context, job *scheduler.Job) error {
	number, err := jobNumber(job.ID)
	if err != nil {
		return err
	}

	l.logger.Info("killing job", zap.String("job_id", job.ID))
	if output, err := l.run(ctx, "scancel --signal=KILL "+number, ""); err != nil {
		if strings.Contains(output, "Invalid job id") {
			return nil
		}
		return apperrors.SchedulerFailure(fmt.Sprintf("could not kill job %s", job.ID), err)
	}
	return nil
}

// JobInfo returns the raw scontrol description of the job.
func (l *Launcher) JobInfo(ctx context.Context, job *scheduler.Job) (string, error) {
	number, err := jobNumber(job.ID)
	if err != nil {
		return "", err
	}
	output, err := l.run(ctx, "scontrol show job "+number, "")
	if err != nil {
		return "", apperrors.SchedulerFailure("scontrol query failed", err)
	}
	return output, nil
}

// FetchLog reads the renderer's error file on the cluster filesystem. The %A
// placeholder in the configured file name expands to the job number.
func (l *Launcher) FetchLog(ctx context.Context, job *scheduler.Job, executable string) (string, error) {
	number, err := jobNumber(job.ID)
	if err != nil {
		return "", err
	}

	filename := l.cfg.OutputPrefix + executable + l.cfg.ErrFile
	filename = strings.Replace(filename, "%A", number, 1)

	output, err := l.run(ctx, "cat "+filename, "")
	if err != nil {
		return "", apperrors.SchedulerFailure(fmt.Sprintf("could not read log file %s", filename), err)
	}
	return filename + ":\n" + output, nil
}
