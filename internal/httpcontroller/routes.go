package httpcontroller

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vesperrec/vesper-recorder/internal/observability/metrics"
)

// initRoutes initializes the routes for the server.
func (s *Server) initRoutes() {
	if s.metrics != nil {
		httpMetrics := s.metrics.HTTP
		s.renderer.observe = func(name string, d time.Duration, err error) {
			httpMetrics.RecordTemplateRender(name, d.Seconds())
			if err != nil {
				httpMetrics.RecordTemplateRenderError(name, metrics.StatusError)
			}
		}
	}

	s.Echo.GET("/", s.statusPageHandler)

	api := s.Echo.Group("/api/v1")
	api.GET("/status", s.statusHandler)
	api.GET("/schedule", s.scheduleHandler)
	api.GET("/health", s.healthHandler)

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}
