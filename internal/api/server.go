package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Server exposes health, manual trigger and last-result endpoints.
type Server struct {
	echo   *echo.Echo
	port   int
	coord  *Coordinator
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(port int, coord *Coordinator, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := &Server{
		echo:   e,
		port:   port,
		coord:  coord,
		logger: logger.With().Str("component", "api").Logger(),
	}

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			server.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.triggerRun)
	v1.GET("/runs/last", s.lastRun)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		addr := fmt.Sprintf(":%d", s.port)
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"running": s.coord.Running(),
	})
}

// triggerRun runs the pipeline synchronously. The run outlives a client
// disconnect once started.
func (s *Server) triggerRun(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	result, err := s.coord.Trigger(ctx, "http")
	if errors.Is(err, ErrRunInProgress) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) lastRun(c echo.Context) error {
	result, ok := s.coord.Last()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
	}
	return c.JSON(http.StatusOK, result)
}
