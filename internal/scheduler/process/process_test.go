package process

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/scheduler"
)

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process launcher tests rely on unix shell tools")
	}
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewLauncher(t.TempDir(), nil, log)
}

func waitForExit(t *testing.T, l *Launcher, pid int) {
	t.Helper()
	job, ok := l.lookup(pid)
	require.True(t, ok)
	select {
	case <-job.done:
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit in time")
	}
}

func TestSubmitAndCancel(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()

	job, err := l.Submit(ctx, &scheduler.SubmitRequest{
		SessionID:  "f3a1",
		Executable: "sleep",
		Arguments:  []string{"30"},
		Port:       1, // nothing listens there
	})
	require.NoError(t, err)
	require.NotZero(t, job.PID)

	host, err := l.ResolveHost(ctx, job)
	require.NoError(t, err)
	assert.Empty(t, host, "renderer not listening yet")

	require.NoError(t, l.Cancel(ctx, job, scheduler.CancelOptions{}))

	_, ok := l.lookup(job.PID)
	assert.False(t, ok, "cancelled job must be untracked")
}

func TestResolveHostAfterExit(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()

	job, err := l.Submit(ctx, &scheduler.SubmitRequest{
		SessionID:  "f3a1",
		Executable: "true",
	})
	require.NoError(t, err)
	waitForExit(t, l, job.PID)

	_, err = l.ResolveHost(ctx, job)
	assert.True(t, errors.Is(err, scheduler.ErrJobFailed))
}

func TestResolveHostWhenListening(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	port := listener.Addr().(*net.TCPAddr).Port

	job, err := l.Submit(ctx, &scheduler.SubmitRequest{
		SessionID:  "f3a1",
		Executable: "sleep",
		Arguments:  []string{"30"},
		Port:       port,
	})
	require.NoError(t, err)
	defer func() { _ = l.Kill(ctx, job) }()

	host, err := l.ResolveHost(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
}

func TestFetchLogCapturesStderr(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()

	job, err := l.Submit(ctx, &scheduler.SubmitRequest{
		SessionID:  "f3a1",
		Executable: "sh",
		Arguments:  []string{"-c", "echo boom 1>&2"},
	})
	require.NoError(t, err)
	waitForExit(t, l, job.PID)

	contents, err := l.FetchLog(ctx, job, "sh")
	require.NoError(t, err)
	assert.Contains(t, contents, "boom")
}

func TestJobInfoStates(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()

	job, err := l.Submit(ctx, &scheduler.SubmitRequest{
		SessionID:  "f3a1",
		Executable: "true",
	})
	require.NoError(t, err)
	waitForExit(t, l, job.PID)

	info, err := l.JobInfo(ctx, job)
	require.NoError(t, err)
	assert.Contains(t, info, "JobState=COMPLETED")
}

func TestCancelUnknownJob(t *testing.T) {
	l := newTestLauncher(t)
	assert.NoError(t, l.Cancel(context.Background(), &scheduler.Job{PID: 999999}, scheduler.CancelOptions{}))
	assert.NoError(t, l.Kill(context.Background(), &scheduler.Job{PID: 999999}))
}
