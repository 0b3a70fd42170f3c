package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"PivotScan/pkg/http/middleware"
	applogger "PivotScan/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler registers routes on the server's Echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption adjusts server construction.
type ServerOption func(*ServerConfig)

// ServerConfig carries the bind address, timeouts, and middleware
// switches.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	MetricsLogger   *applogger.Logger
	SlowThreshold   time.Duration
}

// Server wraps Echo with the engine's middleware stack and a
// Prometheus scrape endpoint.
type Server struct {
	e   *echo.Echo
	cfg *ServerConfig
}

// NewServer builds the Echo instance, wires the middleware chain, and
// registers the handler's routes plus /metrics.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	conf := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
	}
	for _, opt := range opts {
		opt(conf)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = conf.ReadTimeout
	e.Server.WriteTimeout = conf.WriteTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLogging())
	e.Use(middleware.Metrics(conf.MetricsLogger, conf.SlowThreshold))
	if conf.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{AllowOrigins: []string{"*"}}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{e: e, cfg: conf}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	go func() {
		log.Printf("http: listening on %s", addr)
		err := s.e.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: serve error: %v", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests until the context expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Println("http: stopped")
	return nil
}

// Echo exposes the underlying instance, mainly for route inspection in
// tests.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// WithHost sets the bind host.
func WithHost(host string) ServerOption {
	return func(sc *ServerConfig) {
		if host != "" {
			sc.Host = host
		}
	}
}

// WithPort sets the bind port.
func WithPort(port int) ServerOption {
	return func(sc *ServerConfig) {
		if port > 0 {
			sc.Port = port
		}
	}
}

// WithTimeouts sets read, write, and shutdown timeouts. Zero values
// keep the defaults.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(sc *ServerConfig) {
		if read > 0 {
			sc.ReadTimeout = read
		}
		if write > 0 {
			sc.WriteTimeout = write
		}
		if shutdown > 0 {
			sc.ShutdownTimeout = shutdown
		}
	}
}

// WithCORS enables or disables CORS.
func WithCORS(enabled bool) ServerOption {
	return func(sc *ServerConfig) {
		sc.CORS = enabled
	}
}

// WithRequestMetrics attaches a logger for 5xx and slow-request
// reporting in the metrics middleware.
func WithRequestMetrics(l *applogger.Logger, slowThreshold time.Duration) ServerOption {
	return func(sc *ServerConfig) {
		sc.MetricsLogger = l
		sc.SlowThreshold = slowThreshold
	}
}
