package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/location"
	"github.com/nerrad567/homecore/internal/schedule"
	"github.com/nerrad567/homecore/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceController sends commands to devices. *device.Controller
// satisfies it.
type DeviceController interface {
	Command(ctx context.Context, id string, patch device.State) (*device.Device, error)
	Toggle(ctx context.Context, id string) (*device.Device, error)
}

// SceneExecutor runs scenes. *automation.Executor satisfies it.
type SceneExecutor interface {
	Execute(ctx context.Context, sceneID string) (*automation.Execution, error)
}

// ScheduleReloader rebuilds the cron triggers after a mutation.
// *schedule.Scheduler satisfies it.
type ScheduleReloader interface {
	Reload(ctx context.Context) error
}

// BrokerStatus reports the broker connection for /health.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Telemetry config.TelemetryConfig
	Logger    *logging.Logger
	Hub       *Hub

	Rooms      location.Repository
	Devices    device.Repository
	Controller DeviceController
	Schedules  schedule.Repository
	Scheduler  ScheduleReloader // may be nil when scheduling is disabled
	Scenes     automation.Repository
	Executor   SceneExecutor
	Power      telemetry.Repository
	Broker     BrokerStatus // may be nil

	Version string
}

// Server is the HTTP API server for HomeCore.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	telCfg     config.TelemetryConfig
	logger     *logging.Logger
	hub        *Hub
	rooms      location.Repository
	devices    device.Repository
	controller DeviceController
	schedules  schedule.Repository
	scheduler  ScheduleReloader
	scenes     automation.Repository
	executor   SceneExecutor
	power      telemetry.Repository
	broker     BrokerStatus
	version    string
	now        func() time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server. The server is not started until Start()
// is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Hub == nil {
		return nil, errors.New("websocket hub is required")
	}
	if deps.Rooms == nil || deps.Devices == nil || deps.Schedules == nil || deps.Scenes == nil || deps.Power == nil {
		return nil, errors.New("all repositories are required")
	}
	if deps.Controller == nil || deps.Executor == nil {
		return nil, errors.New("device controller and scene executor are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		telCfg:     deps.Telemetry,
		logger:     deps.Logger,
		hub:        deps.Hub,
		rooms:      deps.Rooms,
		devices:    deps.Devices,
		controller: deps.Controller,
		schedules:  deps.Schedules,
		scheduler:  deps.Scheduler,
		scenes:     deps.Scenes,
		executor:   deps.Executor,
		power:      deps.Power,
		broker:     deps.Broker,
		version:    deps.Version,
		now:        time.Now,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors are returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and shuts the server down, waiting
// up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// reloadSchedules rebuilds the scheduler's triggers after a mutation. The
// mutation itself has already succeeded, so failures are only logged.
func (s *Server) reloadSchedules(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	// Outlives the request so a client disconnect cannot skip the reload.
	if err := s.scheduler.Reload(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("failed to reload schedules", "error", err)
	}
}
