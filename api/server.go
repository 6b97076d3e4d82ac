// Package api exposes the integration facade over HTTP with echo.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/core"
)

type Option func(*Server)

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithMetricsHandler mounts handler at GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

// WithHealthCheck adds a named probe to GET /healthz.
func WithHealthCheck(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) {
		if name != "" && check != nil {
			s.health.add(name, check)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

type Server struct {
	echo    *echo.Echo
	facade  *integrations.Facade
	config  core.Config
	logger  core.Logger
	metrics core.MetricsRecorder
	now     func() time.Time

	metricsHandler http.Handler
	health         *healthChecker
}

func New(facade *integrations.Facade, cfg core.Config, opts ...Option) (*Server, error) {
	if facade == nil {
		return nil, fmt.Errorf("api: facade is required")
	}
	s := &Server{
		facade: facade,
		config: cfg,
		health: &healthChecker{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	_, s.logger = core.ResolveLogger("integrations.api", nil, s.logger)
	if s.metrics == nil {
		s.metrics = core.NopMetricsRecorder{}
	}
	s.health.now = s.now

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.logger, s.metrics))
	s.echo = e
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health.handle)
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	s.echo.POST("/webhooks/:platform", s.handleWebhook)

	g := s.echo.Group("/integrations")
	g.GET("/oauth/authorize/:platform", s.authorize)
	g.GET("/oauth/callback/:platform", s.callback)
	g.GET("/connected", s.connected)
	g.DELETE("/disconnect/:platform", s.disconnect)
	// app ids may contain slashes, e.g. "octo/app".
	g.POST("/sync/:platform/*", s.sync)
	g.GET("/snapshots/:platform/*", s.snapshots)
	g.GET("/events/:platform", s.events)
	// idempotency keys contain slashes, e.g. "d/<delivery id>".
	g.GET("/events/:platform/*", s.event)
	g.POST("/subscriptions", s.subscribe)
	g.DELETE("/subscriptions", s.unsubscribe)
	g.GET("/subscriptions/:platform", s.subscriptions)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
