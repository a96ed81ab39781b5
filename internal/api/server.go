package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
	"github.com/billbot/node/internal/infrastructure/config"
	"github.com/billbot/node/internal/infrastructure/logging"
	"github.com/billbot/node/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// GatewayController drives the gateway connection. *gateway.Manager
// satisfies it.
type GatewayController interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() gateway.Status
}

// CapabilitySource reports capability availability.
// *capability.Registry satisfies it.
type CapabilitySource interface {
	Descriptors() []capability.Descriptor
}

// StatsSource reports command counters. *dispatch.Stats satisfies it.
type StatsSource interface {
	Snapshot() dispatch.StatsSnapshot
}

// BrokerStatus reports the MQTT connection. *mqtt.Client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
	Subscriptions() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Gateway      GatewayController
	Settings     settings.Repository
	Capabilities CapabilitySource
	Stats        StatsSource
	MQTT         BrokerStatus // optional
	DB           *sql.DB      // optional, for pool metrics
	Version      string
}

// Server is the local HTTP control API.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	gateway   GatewayController
	settings  settings.Repository
	caps      CapabilitySource
	stats     StatsSource
	mqtt      BrokerStatus
	db        *sql.DB
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway controller is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		settings:  deps.Settings,
		caps:      deps.Capabilities,
		stats:     deps.Stats,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start launches the HTTP listener in a background goroutine. The server
// can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.cfg.Token != "")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
