// Solshade Core - Adaptive Shading Controller
//
// This is the main entry point for the Solshade daemon. Solshade drives
// motorised covers (blinds, awnings, venetians, double rollers) from solar
// geometry: it computes where the sun is relative to each window, decides
// shade positions, and dispatches commands over MQTT while respecting
// manual control and indoor/outdoor climate conditions.
//
// For the control pipeline, see internal/control.
// For the position solvers, see internal/cover.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/solshade-core/migrations"

	"github.com/nerrad567/solshade-core/internal/api"
	"github.com/nerrad567/solshade-core/internal/control"
	"github.com/nerrad567/solshade-core/internal/cover"
	"github.com/nerrad567/solshade-core/internal/forecast"
	"github.com/nerrad567/solshade-core/internal/history"
	"github.com/nerrad567/solshade-core/internal/infrastructure/config"
	"github.com/nerrad567/solshade-core/internal/infrastructure/database"
	"github.com/nerrad567/solshade-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/solshade-core/internal/infrastructure/logging"
	"github.com/nerrad567/solshade-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/solshade-core/internal/solar"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Solshade Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The site timezone drives every dispatch window and solar calculation
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading site timezone: %w", err)
	}
	site := control.Site{
		Latitude:  cfg.Site.Location.Latitude,
		Longitude: cfg.Site.Location.Longitude,
		Timezone:  loc,
	}

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise cover group registry, seeded from the covers file.
	// Existing database rows win over seed definitions so API edits
	// survive restarts.
	registry := cover.NewRegistry(cover.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	if seedErr := seedCovers(ctx, cfg, registry, log); seedErr != nil {
		return seedErr
	}
	stats := registry.GetStats()
	log.Info("cover registry initialised",
		"groups", stats.TotalGroups,
		"enabled", stats.EnabledGroups,
		"devices", stats.TotalDevices,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// History store with background retention pruning
	histStore := history.NewSQLiteStore(db.DB)
	go pruneLoop(ctx, histStore, cfg, log)

	// Forecast generator (optional)
	var forecastGen *forecast.Generator
	if cfg.Forecast.Enabled {
		forecastGen, err = forecast.NewGenerator(forecast.Options{
			Site:    site,
			Horizon: cfg.GetForecastHorizon(),
			Step:    cfg.GetForecastStep(),
			TTL:     cfg.GetForecastCacheTTL(),
		})
		if err != nil {
			return fmt.Errorf("creating forecast generator: %w", err)
		}
		log.Info("forecast generator initialised",
			"horizon", cfg.GetForecastHorizon().String(),
			"step", cfg.GetForecastStep().String(),
		)
	} else {
		log.Info("forecast disabled")
	}

	// Assemble the controller
	ctrlOpts := control.Options{
		Site:           site,
		InstanceID:     cfg.Control.InstanceID,
		Version:        version,
		Interval:       cfg.GetControlInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		SensorMaxAge:   cfg.GetSensorMaxAge(),
		Groups:         registry,
		MQTTClient:     &mqttControlAdapter{client: mqttClient},
		Logger:         log.With("component", "control"),
		History:        histStore,
		Audit:          histStore,
	}
	if influxClient != nil {
		ctrlOpts.Telemetry = &cycleTelemetry{influx: influxClient, site: site}
	}

	controller, err := control.NewController(ctrlOpts)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	if startErr := controller.Start(ctx); startErr != nil {
		return fmt.Errorf("starting controller: %w", startErr)
	}
	defer func() {
		log.Info("stopping controller")
		controller.Stop()
	}()

	// Start the HTTP API
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		Registry:   registry,
		Controller: controller,
		Forecast:   forecastGen,
		History:    histStore,
		DB:         db,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Controller (publishes stopping health, drains cycle loop)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Solshade Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SOLSHADE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOLSHADE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedCovers loads cover group definitions from the covers file and inserts
// any that are not already present. A missing file is not fatal: a
// deployment provisioned entirely through the API has no covers file, so
// the registry simply runs with whatever the database holds.
func seedCovers(ctx context.Context, cfg *config.Config, registry *cover.Registry, log *logging.Logger) error {
	groups, err := cover.LoadGroups(cfg.Covers.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("covers file not found, using database contents only",
				"path", cfg.Covers.File)
			return registry.RefreshCache(ctx)
		}
		return fmt.Errorf("loading covers file: %w", err)
	}

	if err := registry.Seed(ctx, groups); err != nil {
		return fmt.Errorf("seeding cover groups: %w", err)
	}
	log.Info("cover groups seeded from file", "path", cfg.Covers.File, "defined", len(groups))
	return nil
}

// pruneLoop periodically deletes history rows past the retention window.
// It runs until the context is cancelled.
func pruneLoop(ctx context.Context, store *history.SQLiteStore, cfg *config.Config, log *logging.Logger) {
	interval := cfg.GetHistoryPruneInterval()
	retention := cfg.GetHistoryRetention()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := store.Prune(ctx, retention)
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				log.Info("history pruned", "rows", pruned, "retention", retention.String())
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttControlAdapter adapts the infrastructure MQTT client to the control
// package's MQTTClient interface. The difference is the Subscribe handler
// signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Control expects: func(topic, payload []byte)
type mqttControlAdapter struct {
	client *mqtt.Client
}

// Publish implements control.MQTTClient.
func (a *mqttControlAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements control.MQTTClient.
func (a *mqttControlAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (control handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements control.MQTTClient.
func (a *mqttControlAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// cycleTelemetry forwards cycle results to InfluxDB as cover_cycle points.
// The solar position is recomputed for the cycle instant so each point
// carries the elevation and azimuth that produced it.
type cycleTelemetry struct {
	influx *influxdb.Client
	site   control.Site
}

// RecordCycle implements control.CycleRecorder. The underlying write is
// batched and asynchronous, so this never blocks the cycle loop.
func (t *cycleTelemetry) RecordCycle(_ context.Context, result control.Result) error {
	pos := solar.Position(result.ComputedAt, t.site.Latitude, t.site.Longitude)

	t.influx.WriteCycle(influxdb.CyclePoint{
		GroupID:       result.GroupID,
		CoverType:     string(result.Type),
		Method:        result.ControlMethod,
		Position:      result.State,
		Secondary:     result.DoubleState,
		Elevation:     pos.Elevation,
		Azimuth:       pos.Azimuth,
		SunValid:      result.SunValid,
		ManualAny:     result.AnyManualOverride,
		ManualDevices: len(result.ManualDevices),
		ComputedAt:    result.ComputedAt,
	})
	return nil
}
