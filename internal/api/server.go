// Package api provides the HTTP REST API for Tilt Logic Core.
//
// It exposes show library operations, playback control, playlist
// control, and system management endpoints to operator tooling and
// the machine's service menu UI.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All playback mutations are marshalled onto the show controller's
// control loop via Do(); handlers never touch controller state from
// HTTP goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/config"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/logging"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/mqtt"
	"github.com/tiltlogic/tiltlogic-core/internal/show"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// loopTimeout is how long a handler waits for the control loop to pick
// up its command before giving up. At 30 fps a tick is ~33ms, so this
// only trips when the loop has stalled.
const loopTimeout = 2 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller *show.Controller
	Library    *show.Library
	Playlists  map[string]*show.Playlist // optional: named playlists exposed over the API
	Repository *show.Repository          // optional: execution history endpoints
	MQTT       *mqtt.Client              // optional: reported in status only
	Metrics    *Metrics                  // optional: Prometheus /metrics endpoint
	Version    string
}

// Server is the HTTP API server for Tilt Logic Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller *show.Controller
	library    *show.Library
	playlists  map[string]*show.Playlist
	repo       *show.Repository
	mqtt       *mqtt.Client
	metrics    *Metrics
	version    string
	startTime  time.Time
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, controller, library)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("show controller is required")
	}
	if deps.Library == nil {
		return nil, fmt.Errorf("show library is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		library:    deps.Library,
		playlists:  deps.Playlists,
		repo:       deps.Repository,
		mqtt:       deps.MQTT,
		metrics:    deps.Metrics,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop it with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// onLoop runs fn on the show controller's control loop and waits for it
// to complete. Returns false if the loop did not pick the command up
// within loopTimeout.
func (s *Server) onLoop(fn func()) bool {
	done := make(chan struct{})
	s.controller.Do(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return true
	case <-time.After(loopTimeout):
		return false
	}
}
