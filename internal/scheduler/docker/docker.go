// Package docker launches rendering resources as Docker containers. The first
// token of a configuration's command line names the image; the remaining
// tokens become the container command.
package docker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/common/constants"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/scheduler"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// logTail bounds how many log lines FetchLog returns.
const logTail = "200"

// Launcher runs renderers as containers on a local or remote Docker daemon.
type Launcher struct {
	cli    *client.Client
	exiter scheduler.ExitRequester
	logger *logger.Logger
}

// NewLauncher creates a Docker backed launcher. The daemon connection is
// validated lazily on first use.
func NewLauncher(cfg config.DockerConfig, exiter scheduler.ExitRequester, log *logger.Logger) (*Launcher, error) {
	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, apperrors.InternalError("could not create docker client", err)
	}

	return &Launcher{
		cli:    cli,
		exiter: exiter,
		logger: log.WithFields(zap.String("component", "docker-launcher")),
	}, nil
}

// Close releases the Docker client.
func (l *Launcher) Close() error {
	return l.cli.Close()
}

// Submit creates and starts a container for the renderer. Environment modules
// have no container equivalent and are ignored.
func (l *Launcher) Submit(ctx context.Context, req *scheduler.SubmitRequest) (*scheduler.Job, error) {
	containerCfg := &container.Config{
		Image: req.Executable,
		Cmd:   req.Arguments,
		Env:   req.Environment,
	}
	// The container shares the host network namespace so the renderer port
	// from the session row is reachable on localhost without a published
	// port mapping.
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode("host"),
	}

	name := "rrm-" + req.SessionID
	resp, err := l.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, apperrors.SchedulerFailure(
			fmt.Sprintf("could not create container for session %s", req.SessionID), err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := l.remove(ctx, resp.ID, true); removeErr != nil {
			l.logger.Warn("could not remove container after failed start",
				zap.String("container_id", resp.ID), zap.Error(removeErr))
		}
		return nil, apperrors.SchedulerFailure(
			fmt.Sprintf("could not start container for session %s", req.SessionID), err)
	}

	l.logger.Info("renderer container started",
		zap.String("session_id", req.SessionID),
		zap.String("image", req.Executable),
		zap.String("container_id", shortID(resp.ID)))
	return &scheduler.Job{ID: resp.ID}, nil
}

// ResolveHost inspects the container. A running container is reachable on
// localhost through the host network namespace.
func (l *Launcher) ResolveHost(ctx context.Context, job *scheduler.Job) (string, error) {
	inspect, err := l.cli.ContainerInspect(ctx, job.ID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", scheduler.ErrJobFailed
		}
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("could not inspect container %s", shortID(job.ID)), err)
	}

	switch inspect.State.Status {
	case "running":
		return "localhost", nil
	case "exited", "dead", "removing":
		return "", scheduler.ErrJobFailed
	default:
		return "", nil
	}
}

// Cancel asks the renderer to exit, then stops the container and removes it.
func (l *Launcher) Cancel(ctx context.Context, job *scheduler.Job, opts scheduler.CancelOptions) error {
	if opts.GracefulExit && opts.Host != "" && l.exiter != nil {
		l.exiter.RequestExit(ctx, opts.Host, opts.Port)
	}

	seconds := int(constants.CancelGracePeriod.Seconds())
	err := l.cli.ContainerStop(ctx, job.ID, container.StopOptions{Timeout: &seconds})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return apperrors.SchedulerFailure(
			fmt.Sprintf("could not stop container %s", shortID(job.ID)), err)
	}

	if err := l.remove(ctx, job.ID, false); err != nil {
		return apperrors.SchedulerFailure(
			fmt.Sprintf("could not remove container %s", shortID(job.ID)), err)
	}

	l.logger.Info("renderer container stopped", zap.String("container_id", shortID(job.ID)))
	return nil
}

// Kill force removes the container. The forced removal delivers SIGKILL when
// the container is still running.
func (l *Launcher) Kill(ctx context.Context, job *scheduler.Job) error {
	if err := l.cli.ContainerKill(ctx, job.ID, "KILL"); err != nil && !client.IsErrNotFound(err) {
		l.logger.Debug("kill signal not delivered",
			zap.String("container_id", shortID(job.ID)), zap.Error(err))
	}

	if err := l.remove(ctx, job.ID, true); err != nil {
		return apperrors.SchedulerFailure(
			fmt.Sprintf("could not kill container %s", shortID(job.ID)), err)
	}

	l.logger.Info("renderer container killed", zap.String("container_id", shortID(job.ID)))
	return nil
}

// JobInfo reports the container state in the same key=value shape the other
// launchers use.
func (l *Launcher) JobInfo(ctx context.Context, job *scheduler.Job) (string, error) {
	inspect, err := l.cli.ContainerInspect(ctx, job.ID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", apperrors.NotFound("container", shortID(job.ID))
		}
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("could not inspect container %s", shortID(job.ID)), err)
	}

	started, _ := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
	return fmt.Sprintf("ContainerId=%s JobState=%s Image=%s StartTime=%s\n",
		shortID(inspect.ID), jobState(inspect.State), inspect.Config.Image,
		started.Format(time.RFC3339)), nil
}

// FetchLog returns the tail of the container's combined output.
func (l *Launcher) FetchLog(ctx context.Context, job *scheduler.Job, executable string) (string, error) {
	reader, err := l.cli.ContainerLogs(ctx, job.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       logTail,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", apperrors.NotFound("container", shortID(job.ID))
		}
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("could not read logs of container %s", shortID(job.ID)), err)
	}
	defer reader.Close()

	return fmt.Sprintf("container %s:\n%s", shortID(job.ID), demuxLogs(reader)), nil
}

func (l *Launcher) remove(ctx context.Context, containerID string, force bool) error {
	err := l.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return err
	}
	return nil
}

// demuxLogs reads Docker's multiplexed stream format. Without a TTY each
// frame carries an 8 byte header: stream type, three reserved bytes and a
// big endian frame length. Stdout (type 1) and stderr (type 2) are both kept.
func demuxLogs(reader io.Reader) []byte {
	var buf bytes.Buffer
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			return buf.Bytes()
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(reader, frame); err != nil {
			return buf.Bytes()
		}
		if header[0] == 1 || header[0] == 2 {
			buf.Write(frame)
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func jobState(state *container.State) string {
	switch state.Status {
	case "running":
		return "RUNNING"
	case "created":
		return "PENDING"
	case "exited":
		if state.ExitCode == 0 {
			return "COMPLETED"
		}
		return "FAILED"
	default:
		return strings.ToUpper(state.Status)
	}
}
