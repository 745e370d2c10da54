package listeners

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperrec/vesper-recorder/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func messages(lines []map[string]any) []string {
	var out []string
	for _, l := range lines {
		out = append(out, l["msg"].(string))
	}
	return out
}

func TestLoggerSessionIDs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogger(logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC))
	info := fakeInfo{channels: 1, rate: 1000, frames: 100}

	require.NoError(t, l.RecordingStarted(info, t0))
	first := l.Session()
	_, err := uuid.Parse(first)
	require.NoError(t, err)
	require.NoError(t, l.RecordingStopped(info, t0.Add(time.Minute)))

	require.NoError(t, l.RecordingStarted(info, t0.Add(time.Hour)))
	assert.NotEqual(t, first, l.Session(), "each span gets its own session")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"recording started", "recording stopped", "recording started"}, messages(lines))
	assert.Equal(t, first, lines[1]["session"])
}

func TestLoggerRecorderOverflowRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogger(logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC))
	info := fakeInfo{channels: 1, rate: 1000, frames: 100}

	require.NoError(t, l.RecordingStarted(info, t0))
	require.NoError(t, l.InputOverflowed(info, t0, 100, false))
	require.NoError(t, l.InputOverflowed(info, t0, 400, false))
	require.NoError(t, l.InputOverflowed(info, t0, 250, false))
	require.NoError(t, l.InputArrived(info, t0, nil, 100, false))
	require.NoError(t, l.InputArrived(info, t0, nil, 100, false))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3, "one message when the run starts and one when it ends")
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Contains(t, lines[1]["msg"], "recorder input overflow")
	assert.InDelta(t, 750, lines[2]["frames"], 0)
	assert.InDelta(t, 0.75, lines[2]["seconds"], 1e-9)
}

func TestLoggerDriverOverflowRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogger(logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC))
	info := fakeInfo{channels: 1, rate: 1000, frames: 100}

	require.NoError(t, l.RecordingStarted(info, t0))
	for range 3 {
		require.NoError(t, l.InputArrived(info, t0, nil, 100, true))
	}
	require.NoError(t, l.RecordingStopped(info, t0))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1]["msg"], "driver input overflow")
	assert.Equal(t, "driver input overflow ended", lines[2]["msg"])
	assert.InDelta(t, 3, lines[2]["consecutive_buffers"], 0)
	assert.Equal(t, "recording stopped", lines[3]["msg"])
}

func TestLoggerReportsRecorderFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogger(logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC))
	info := fakeInfo{channels: 1, rate: 1000, err: stderrors.New("device unplugged")}

	require.NoError(t, l.RecordingStarted(info, t0))
	require.NoError(t, l.RecordingStopped(info, t0))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "device unplugged", lines[1]["error"])
}
