package httpcontroller

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(s.RequestLoggerMiddleware())
	if s.metrics != nil {
		s.Echo.Use(s.MetricsMiddleware())
	}
	s.Echo.Use(s.GzipMiddleware())
	s.Echo.Use(s.CacheControlMiddleware())
}

// RequestLoggerMiddleware logs every request at debug level and failed
// requests at warn level.
func (s *Server) RequestLoggerMiddleware() echo.MiddlewareFunc {
	reqLog := s.log.Module("access")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("request_id", v.RequestID),
				logger.String("client_ip", v.RemoteIP),
				logger.String("method", v.Method),
				logger.String("path", v.URIPath),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			if v.Status >= http.StatusBadRequest {
				reqLog.Warn("request completed with error status", fields...)
			} else {
				reqLog.Debug("request completed", fields...)
			}
			return nil
		},
	})
}

// MetricsMiddleware records request counts and latencies by route pattern.
func (s *Server) MetricsMiddleware() echo.MiddlewareFunc {
	httpMetrics := s.metrics.HTTP
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			httpMetrics.RecordHTTPRequest(method, path, status, time.Since(start).Seconds())
			switch {
			case status >= http.StatusInternalServerError:
				httpMetrics.RecordHTTPRequestError(method, path, "server")
			case status >= http.StatusBadRequest:
				httpMetrics.RecordHTTPRequestError(method, path, "client")
			}
			return err
		}
	}
}

// GzipMiddleware configures Gzip compression for the server
func (s *Server) GzipMiddleware() echo.MiddlewareFunc {
	return middleware.GzipWithConfig(middleware.GzipConfig{
		Level:     6,
		MinLength: 2048,
		Skipper: func(c echo.Context) bool {
			// promhttp negotiates its own compression
			return c.Path() == "/metrics"
		},
	})
}

// CacheControlMiddleware sets cache headers. Everything the server returns
// is live status, so nothing is cacheable.
func (s *Server) CacheControlMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Cache-Control", "no-store")
			if strings.HasPrefix(c.Request().URL.Path, "/api/") {
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
				h.Set("X-Content-Type-Options", "nosniff")
			}
			return next(c)
		}
	}
}
