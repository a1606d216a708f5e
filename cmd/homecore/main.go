// HomeCore keeps device state consistent across REST and WebSocket
// commands, MQTT telemetry and cron schedules, and pushes every change to
// connected clients.
//
// Usage:
//
//	homecore                       run the server
//	homecore token -subject alice  print a bearer token signed with the configured secret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homecore/internal/api"
	"github.com/nerrad567/homecore/internal/auth"
	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/bridge"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
	"github.com/nerrad567/homecore/internal/infrastructure/influxdb"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecore/internal/location"
	"github.com/nerrad567/homecore/internal/schedule"
	"github.com/nerrad567/homecore/internal/telemetry"
	"github.com/nerrad567/homecore/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse order: HTTP, MQTT, InfluxDB, then the database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HomeCore", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))

	var sink telemetry.Sink
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		sink = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log)

	rooms := location.NewSQLiteRepository(db.DB)
	devices := device.NewSQLiteRepository(db.DB)
	schedules := schedule.NewSQLiteRepository(db.DB)
	scenes := automation.NewSQLiteRepository(db.DB)
	power := telemetry.NewSQLiteRepository(db.DB)

	reconciler := device.NewReconciler(devices, hub)
	reconciler.SetLogger(log)

	recorder := telemetry.NewRecorder(power, sink)
	recorder.SetLogger(log)

	br, err := bridge.New(bridge.Options{
		Transport:   mqttClient,
		States:      reconciler,
		Recorder:    recorder,
		Broadcaster: hub,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	controller := device.NewController(reconciler, br)
	controller.SetLogger(log)

	executor := automation.NewExecutor(scenes, devices, controller, log)

	var scheduler *schedule.Scheduler
	var reloader api.ScheduleReloader
	if cfg.Scheduler.Enabled {
		scheduler = schedule.NewScheduler(schedules, controller, cfg.SchedulerLocation(), log)
		reloader = scheduler
	} else {
		log.Info("scheduler disabled")
	}

	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Telemetry:  cfg.Telemetry,
		Logger:     log,
		Hub:        hub,
		Rooms:      rooms,
		Devices:    devices,
		Controller: controller,
		Schedules:  schedules,
		Scheduler:  reloader,
		Scenes:     scenes,
		Executor:   executor,
		Power:      power,
		Broker:     mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if scheduler != nil {
		if err := scheduler.Start(gctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}
	if err := server.Start(gctx); err != nil {
		if scheduler != nil {
			scheduler.Stop()
		}
		return fmt.Errorf("starting API server: %w", err)
	}

	pruner := telemetry.NewPruner(power, time.Duration(cfg.Telemetry.RetentionDays)*24*time.Hour, cfg.PruneInterval(), log)
	g.Go(func() error { return pruner.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		if scheduler != nil {
			scheduler.Stop()
		}
		return server.Close()
	})

	log.Info("initialisation complete", "api", server.Addr())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("HomeCore stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("HOMECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// runToken prints a signed access token. Only the security section of the
// config is needed, but the whole file is validated.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject (user name)")
	role := fs.String("role", string(auth.RoleUser), "token role: user or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}
	if !auth.IsValidRole(auth.Role(*role)) {
		return fmt.Errorf("unknown role %q", *role)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	lifetime := *ttl
	if lifetime == 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateAccessToken(auth.Identity{Subject: *subject, Role: auth.Role(*role)}, cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
