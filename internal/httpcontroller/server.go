// Package httpcontroller serves the recorder status page, a JSON status API
// and the Prometheus metrics endpoint.
package httpcontroller

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/observability"
	"github.com/vesperrec/vesper-recorder/internal/status"
)

const (
	componentHTTP = "httpcontroller"

	// shutdownTimeout bounds graceful shutdown of open connections.
	shutdownTimeout = 5 * time.Second
)

// StatusProvider supplies the data shown by the server.
type StatusProvider interface {
	Snapshot() status.Snapshot
	Tail() []string
}

// Config configures the server. Metrics may be nil, in which case /metrics
// is not served.
type Config struct {
	Port    int
	Metrics *observability.Metrics
}

// Server encapsulates the Echo server and its dependencies.
type Server struct {
	Echo     *echo.Echo
	status   StatusProvider
	metrics  *observability.Metrics
	log      logger.Logger
	addr     string
	renderer *TemplateRenderer
}

// New initializes a new HTTP server. It does not start listening.
func New(cfg Config, provider StatusProvider, log logger.Logger) (*Server, error) {
	if provider == nil {
		return nil, errors.Newf("status provider is required").
			Component(componentHTTP).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, errors.Newf("invalid port %d", cfg.Port).
			Component(componentHTTP).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("http")
	}

	renderer, err := newTemplateRenderer()
	if err != nil {
		return nil, errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_templates").
			Build()
	}

	s := &Server{
		Echo:     echo.New(),
		status:   provider,
		metrics:  cfg.Metrics,
		log:      log,
		addr:     net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		renderer: renderer,
	}
	s.initializeServer()
	return s, nil
}

// initializeServer configures and initializes the server.
func (s *Server) initializeServer() {
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Renderer = s.renderer
	s.Echo.HTTPErrorHandler = s.errorHandler
	s.configureMiddleware()
	s.initRoutes()
}

// Run listens on the configured port until ctx is done, then shuts the
// server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Echo.Start(s.addr)
	}()
	s.log.Info("HTTP server starting", logger.String("address", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryNetwork).
			Context("address", s.addr).
			Build()
	case <-ctx.Done():
	}

	s.log.Info("stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Echo.Shutdown(shutdownCtx)
	<-errCh
	if err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

// Addr returns the listening address once Run has started listening.
func (s *Server) Addr() net.Addr {
	return s.Echo.ListenerAddr()
}

// errorHandler logs server-side failures and delegates the response to
// Echo's default handler. Errors reach it twice, once from the request
// logger and once from the router; only the first writes a response.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Error(err))
	}
	s.Echo.DefaultHTTPErrorHandler(err, c)
}
