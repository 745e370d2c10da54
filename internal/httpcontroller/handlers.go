package httpcontroller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vesperrec/vesper-recorder/internal/status"
)

// pageData is passed to the status page template.
type pageData struct {
	Title  string
	Status status.Snapshot
	Log    []string
}

// scheduleResponse is the body of GET /api/v1/schedule.
type scheduleResponse struct {
	TimeZone  string                      `json:"timeZone"`
	Intervals []status.ScheduledRecording `json:"intervals"`
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Recording bool   `json:"recording"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) statusPageHandler(c echo.Context) error {
	return c.Render(http.StatusOK, "status", pageData{
		Title:  "Vesper Recorder",
		Status: s.status.Snapshot(),
		Log:    s.status.Tail(),
	})
}

func (s *Server) statusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) scheduleHandler(c echo.Context) error {
	snap := s.status.Snapshot()
	return c.JSON(http.StatusOK, scheduleResponse{
		TimeZone:  snap.TimeZone,
		Intervals: snap.Schedule,
	})
}

// healthHandler reports 503 once the recorder has stopped on a failure.
func (s *Server) healthHandler(c echo.Context) error {
	snap := s.status.Snapshot()
	resp := healthResponse{
		Status:    "ok",
		State:     snap.State,
		Recording: snap.Recording,
		Error:     snap.Error,
	}
	code := http.StatusOK
	if snap.Error != "" {
		resp.Status = "failed"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
