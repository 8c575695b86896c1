package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/midea-bridge/internal/bridges/midea"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/config"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/midea-bridge/internal/metrics"
	"github.com/nerrad567/midea-bridge/internal/process"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the status view of the running bridge. *midea.Bridge
// implements it.
type Bridge interface {
	Health() (midea.HealthStatus, string)
	Devices() []midea.DeviceStatus
	Device(name string) (midea.DeviceStatus, error)
}

// Hub reports hub reachability. *openhab.Client implements it.
type Hub interface {
	HealthCheck(ctx context.Context) error
	MissingItems() []string
}

// Cloud reports the cloud session state. *cloud.Client implements it.
type Cloud interface {
	LoggedIn() bool
}

// Checker is an optional collaborator that can be probed.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Supervisor reports restart statistics. *process.Supervisor implements it.
type Supervisor interface {
	Stats() process.Stats
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  Bridge
	Hub     Hub
	Cloud   Cloud
	Metrics *metrics.Metrics
	Version string

	// Optional. Nil means disabled.
	MQTT       Checker
	InfluxDB   Checker
	Supervisor Supervisor
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	hub       Hub
	cloud     Cloud
	metrics   *metrics.Metrics
	mqtt      Checker
	influx    Checker
	sup       Supervisor
	version   string
	startTime time.Time

	server *http.Server
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		hub:       deps.Hub,
		cloud:     deps.Cloud,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		sup:       deps.Supervisor,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close shuts the server down, waiting up to 10 seconds for requests.
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
