package httpcontroller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/listeners"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/observability"
	"github.com/vesperrec/vesper-recorder/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	snap status.Snapshot
	tail []string
}

func (f *fakeProvider) Snapshot() status.Snapshot { return f.snap }
func (f *fakeProvider) Tail() []string            { return f.tail }

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fullSnapshot() status.Snapshot {
	lat := 42.45
	return status.Snapshot{
		Version:   "0.4.0",
		Time:      t0,
		TimeZone:  "UTC",
		State:     "started",
		Recording: true,
		Levels: &listeners.LevelMeterView{
			Available: true, RMS: []float64{-20, -21.5}, Peak: []float64{-3, -4}, UpdatePeriod: 1,
		},
		Interval: &status.IntervalView{Label: "Current", Start: t0.Add(-time.Minute), End: t0.Add(time.Minute)},
		Station:  status.Station{Name: "Ithaca", Latitude: &lat},
		Devices: []status.Device{
			{InputDevice: audiocore.InputDevice{Index: 0, Name: "Built-in", InputChannelCount: 2}},
			{InputDevice: audiocore.InputDevice{Index: 1, Name: "USB <mic>", InputChannelCount: 2}, Selected: true},
		},
		Input: status.Input{DeviceIndex: 1, DeviceName: "USB <mic>", DeviceFound: true, ChannelCount: 2, SampleRate: 22050, BufferSize: 0.05, TotalBufferSize: 60},
		LocalRecording: status.LocalRecording{Enabled: true, FileWriterView: &listeners.FileWriterView{
			Dir: "/data/Recordings", MaxFileDuration: 3600, Available: true, FilesWritten: 3, FreeBytes: 5 << 30,
		}},
		Schedule: []status.ScheduledRecording{
			{Index: 0, Start: t0.Add(-2 * time.Hour), End: t0.Add(-time.Hour), Status: status.IntervalPast},
			{Index: 1, Start: t0.Add(-time.Minute), End: t0.Add(time.Minute), Status: status.IntervalCurrent},
			{Index: 2, Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour), Status: status.IntervalFuture},
		},
	}
}

func newTestServer(t *testing.T, provider StatusProvider, m *observability.Metrics) *Server {
	t.Helper()
	s, err := New(Config{Port: 0, Metrics: m}, provider, logger.NewDiscardLogger())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestStatusPage(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProvider{snap: fullSnapshot(), tail: []string{"level=INFO msg=\"recording started\""}}, nil)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	for _, want := range []string{
		"Vesper Recorder 0.4.0",
		"<td>Current Time</td><td>2024-06-01 12:00:00 UTC</td>",
		"<td>Recording</td><td>Yes</td>",
		"Recent RMS Sample Values (dBFS)</td><td>-20.00, -21.50</td>",
		"<td>Current Recording Start Time</td><td>2024-06-01 11:59:00 UTC</td>",
		"<td>Latitude (degrees north)</td><td>42.45</td>",
		"<td>Longitude (degrees east)</td><td>None</td>",
		"<td>*1</td><td>USB &lt;mic&gt;</td>",
		"* Selected input device.",
		"<td>Recording Directory</td><td>/data/Recordings</td>",
		"<td>Free Disk Space</td><td>5.0 GiB</td>",
		"<td>Past</td>", "<td>Current</td>", "<td>Future</td>",
		"Recent Log Messages",
		"recording started",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "<td>*0</td>")
}

func TestStatusPageSparse(t *testing.T) {
	t.Parallel()

	snap := status.Snapshot{
		Time:     t0,
		TimeZone: "UTC",
		State:    "stopped",
		Error:    "audio stream stopped unexpectedly",
		Input:    status.Input{DeviceIndex: 4},
		Devices:  []status.Device{},
		Schedule: []status.ScheduledRecording{},
	}
	s := newTestServer(t, &fakeProvider{snap: snap}, nil)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<td>Recording</td><td>No</td>")
	assert.Contains(t, body, "<td>Error</td><td>audio stream stopped unexpectedly</td>")
	assert.Contains(t, body, "<td>Next Recording Start Time</td><td>None</td>")
	assert.Contains(t, body, "No input devices were found.")
	assert.Contains(t, body, "There is no input device with index 4.")
	assert.Contains(t, body, "<td>Enabled</td><td>No</td>")
	assert.Contains(t, body, "No recordings are scheduled.")
	assert.NotContains(t, body, "RMS Sample")
	assert.NotContains(t, body, "Recent Log Messages")
}

func TestStatusAPI(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProvider{snap: fullSnapshot()}, nil)

	rec := get(t, s, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var got struct {
		Recording bool `json:"recording"`
		Input     struct {
			DeviceName string `json:"deviceName"`
		} `json:"input"`
		Levels struct {
			RMS []float64 `json:"rms"`
		} `json:"levels"`
		Schedule []status.ScheduledRecording `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Recording)
	assert.Equal(t, "USB <mic>", got.Input.DeviceName)
	assert.Equal(t, []float64{-20, -21.5}, got.Levels.RMS)
	assert.Len(t, got.Schedule, 3)

	rec = get(t, s, "/api/v1/schedule")
	require.Equal(t, http.StatusOK, rec.Code)
	var sched scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sched))
	assert.Equal(t, "UTC", sched.TimeZone)
	require.Len(t, sched.Intervals, 3)
	assert.Equal(t, status.IntervalCurrent, sched.Intervals[1].Status)
	assert.True(t, sched.Intervals[2].Start.Equal(t0.Add(time.Hour)))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{snap: fullSnapshot()}
	s := newTestServer(t, provider, nil)
	rec := get(t, s, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	provider.snap.Error = "device removed"
	rec = get(t, s, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeProvider{snap: fullSnapshot()}, nil)
		assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		m, err := observability.NewMetrics()
		require.NoError(t, err)
		s := newTestServer(t, &fakeProvider{snap: fullSnapshot()}, m)

		require.Equal(t, http.StatusOK, get(t, s, "/api/v1/status").Code)
		require.Equal(t, http.StatusOK, get(t, s, "/").Code)
		require.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)

		rec := get(t, s, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `vesper_http_requests_total{method="GET",path="/api/v1/status",status_code="200"} 1`)
		assert.Contains(t, body, `vesper_http_template_render_duration_seconds_count{template="status"} 1`)
		assert.Contains(t, body, `vesper_http_request_errors_total{error_type="client",method="GET"`)
		assert.Positive(t, testutil.CollectAndCount(m.HTTP))
	})
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{Port: 70000}, &fakeProvider{}, nil)
	require.Error(t, err)
}

func TestRunAndShutdown(t *testing.T) {
	s := newTestServer(t, &fakeProvider{snap: fullSnapshot()}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Addr().String() + "/api/v1/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"recording":true`))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", formatLevels(nil))
	assert.Equal(t, "-120.00", formatLevels([]float64{-120}))
	assert.Equal(t, "None", formatTime(time.Time{}))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2<<20))
	assert.Empty(t, plural(1))
	assert.Equal(t, "s", plural(2))
	assert.Equal(t, "No", yesNo(false))
}
