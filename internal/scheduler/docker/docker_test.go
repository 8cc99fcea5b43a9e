package docker

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
)

func frame(streamType byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, payload...)
}

func TestDemuxLogsInterleavesStdoutAndStderr(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(1, "vocabulary loaded\n"))
	stream.Write(frame(2, "warning: no GPU\n"))
	stream.Write(frame(1, "listening on :3000\n"))

	out := demuxLogs(&stream)
	assert.Equal(t, "vocabulary loaded\nwarning: no GPU\nlistening on :3000\n", string(out))
}

func TestDemuxLogsSkipsStdinFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(0, "ignored"))
	stream.Write(frame(1, "kept"))

	assert.Equal(t, "kept", string(demuxLogs(&stream)))
}

func TestDemuxLogsStopsOnTruncatedFrame(t *testing.T) {
	data := frame(1, "complete")
	truncated := frame(2, "cut off")
	stream := bytes.NewBuffer(append(data, truncated[:10]...))

	assert.Equal(t, "complete", string(demuxLogs(stream)))
}

func TestJobState(t *testing.T) {
	tests := []struct {
		name  string
		state container.State
		want  string
	}{
		{"running", container.State{Status: "running"}, "RUNNING"},
		{"created", container.State{Status: "created"}, "PENDING"},
		{"clean exit", container.State{Status: "exited", ExitCode: 0}, "COMPLETED"},
		{"crash", container.State{Status: "exited", ExitCode: 137}, "FAILED"},
		{"paused", container.State{Status: "paused"}, "PAUSED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jobState(&tt.state))
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "4fa6e0f0c678", shortID("4fa6e0f0c6786287e131c3852c58a2e01cc697a80d9bf273989e4c17859a61a1"))
	assert.Equal(t, "short", shortID("short"))
}
