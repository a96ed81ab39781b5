// BillBot Node - gateway-connected device automation agent
//
// The node proves its identity to a BillBot gateway over a WebSocket,
// then executes the gateway's commands (screenshots, UI tree dumps,
// gestures, text input, app launches) against the local device through
// adb.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/billbot/node/internal/api"
	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/capability/adb"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
	"github.com/billbot/node/internal/identity"
	"github.com/billbot/node/internal/infrastructure/config"
	"github.com/billbot/node/internal/infrastructure/database"
	"github.com/billbot/node/internal/infrastructure/influxdb"
	"github.com/billbot/node/internal/infrastructure/logging"
	"github.com/billbot/node/internal/infrastructure/mqtt"
	"github.com/billbot/node/internal/presence"
	"github.com/billbot/node/internal/settings"
	"github.com/billbot/node/internal/telemetry"
	"github.com/billbot/node/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("billbot-node %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.migrateDown {
		if err := migrateDown(ctx, opts.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath  string
	showVersion bool
	migrateDown bool
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions

	flagSet := pflag.NewFlagSet("billbot-node", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: $BILLBOT_CONFIG or "+defaultConfigPath+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVar(&opts.migrateDown, "migrate-down", false, "revert the most recent database migration and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the config path from BILLBOT_CONFIG, or the default.
func getConfigPath() string {
	if path := os.Getenv("BILLBOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run wires the node together and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BillBot Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	logMigrationStatus(ctx, db, log)

	settingsRepo := settings.NewSQLiteRepository(db.DB)
	if _, seedErr := settings.Seed(ctx, settingsRepo, settings.Settings{
		GatewayHost:  cfg.Gateway.Host,
		GatewayPort:  cfg.Gateway.Port,
		GatewayToken: cfg.Gateway.Token,
		DisplayName:  cfg.Node.DisplayName,
	}, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding settings: %w", seedErr)
	}

	idm, err := identity.NewManager(identity.NewSQLiteKeyStore(db.DB), settingsRepo, identity.Options{
		Passphrase: cfg.Identity.Passphrase,
		WorkFactor: cfg.Identity.ScryptWorkFactor,
		DeviceID:   cfg.Node.DeviceID,
		Logger:     log.Component("identity"),
	})
	if err != nil {
		return fmt.Errorf("creating identity manager: %w", err)
	}
	ident, err := idm.Identity(ctx)
	if err != nil {
		return fmt.Errorf("loading device identity: %w", err)
	}
	log.Info("device identity ready", "device_id", ident.ID)

	registry := capability.NewRegistry()
	registry.SetLogger(log.Component("capability"))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		if stopErr := registry.StopAll(stopCtx); stopErr != nil {
			log.Error("error stopping capability providers", "error", stopErr)
		}
	}()
	startProviders(ctx, cfg, registry, log)

	dispatcher := dispatch.New(registry)
	dispatcher.SetLogger(log.Component("dispatch"))

	gw, err := gateway.New(gateway.Deps{
		Settings:    settingsRepo,
		Signer:      idm,
		Dispatcher:  dispatcher,
		Permissions: registry,
	}, gateway.Options{
		ClientID:         cfg.Node.ClientID,
		Platform:         cfg.Node.Platform,
		Locale:           cfg.Node.Locale,
		UserAgent:        "billbot-node/" + version,
		Caps:             capability.Caps(),
		Commands:         dispatch.Methods(),
		TLS:              cfg.Gateway.TLS,
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
		PingInterval:     cfg.GetPingInterval(),
		PongTimeout:      cfg.GetPongTimeout(),
		Logger:           log.Component("gateway"),
	})
	if err != nil {
		return fmt.Errorf("creating gateway manager: %w", err)
	}
	gwLog := log.Component("gateway")
	gw.OnStateChange(func(c gateway.StateChange) {
		if c.Err != nil {
			gwLog.Warn("connection state changed", "from", c.From, "to", c.To, "error", c.Err)
			return
		}
		gwLog.Debug("connection state changed", "from", c.From, "to", c.To)
	})

	// MQTT presence (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, ident.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		pres := presence.New(presence.Deps{
			Broker:       mqttClient,
			Gateway:      gw,
			Capabilities: registry,
			DeviceID:     ident.ID,
		})
		pres.SetLogger(log.Component("presence"))
		gw.OnStateChange(pres.StateChanged)
		registry.Subscribe(pres.CapabilitiesChanged)
		dispatcher.AddObserver(pres)
		if startErr := pres.Start(); startErr != nil {
			return fmt.Errorf("starting presence: %w", startErr)
		}
		defer pres.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorder := telemetry.NewRecorder(influxClient, ident.ID)
		dispatcher.SetRecorder(recorder)
		gw.OnStateChange(recorder.StateChanged)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Local control API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:       cfg.API,
			Logger:       log.Component("api"),
			Gateway:      gw,
			Settings:     settingsRepo,
			Capabilities: registry,
			Stats:        dispatcher.Stats(),
			DB:           db.DB,
			Version:      version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		var apiErr error
		apiServer, apiErr = api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	if healthErr := healthCheck(hctx, db, mqttClient, influxClient, apiServer); healthErr != nil {
		log.Warn("startup health check failed", "error", healthErr)
	}
	cancel()

	supervisor := gateway.NewSupervisor(gw, gateway.SupervisorOptions{
		AutoConnect:  cfg.Gateway.AutoConnect,
		Policy:       cfg.Gateway.Reconnect.Policy,
		InitialDelay: time.Duration(cfg.Gateway.Reconnect.InitialDelay) * time.Second,
		MaxDelay:     time.Duration(cfg.Gateway.Reconnect.MaxDelay) * time.Second,
		MaxAttempts:  cfg.Gateway.Reconnect.MaxAttempts,
		Logger:       log.Component("supervisor"),
	})

	log.Info("BillBot Node started", "device_id", ident.ID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	err = g.Wait()
	log.Info("shutting down BillBot Node")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// startProviders registers the configured capability providers. A provider
// that fails to start leaves its capabilities unavailable.
func startProviders(ctx context.Context, cfg *config.Config, registry *capability.Registry, log *logging.Logger) {
	if !cfg.Capabilities.ADB.Enabled {
		log.Info("adb providers disabled")
		return
	}

	device := adb.New(adb.Options{
		Binary: cfg.Capabilities.ADB.Binary,
		Serial: cfg.Capabilities.ADB.Serial,
		Logger: log.Component("adb"),
	})
	if err := registry.Start(ctx, "adb", device); err != nil {
		log.Warn("adb providers unavailable", "error", err)
		return
	}
	log.Info("adb providers started", "serial", cfg.Capabilities.ADB.Serial)
}

// migrateDown reverts the most recently applied migration.
func migrateDown(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // process exits next

	if err := db.Rollback(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	logMigrationStatus(ctx, db, log)
	return nil
}

// logMigrationStatus reports the schema version. Failures are only logged.
func logMigrationStatus(ctx context.Context, db *database.DB, log *logging.Logger) {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		log.Warn("reading migration status failed", "error", err)
		return
	}
	current := "none"
	if len(applied) > 0 {
		current = applied[len(applied)-1].Version
	}
	log.Info("database ready",
		"path", db.Path(),
		"schema_version", current,
		"applied", len(applied),
		"pending", len(pending),
	)
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}
