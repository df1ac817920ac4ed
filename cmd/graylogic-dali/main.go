// Gray Logic DALI gateway
//
// This is the service entry point. It opens the DALI bus interface (USB HID,
// serial or mock) and bridges it onto the Gray Logic MQTT bus, recording the
// traffic in SQLite, a CBOR capture file and InfluxDB when configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-dali/internal/bridges/dalibridge"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
	"github.com/nerrad567/gray-logic-dali/internal/hardware"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dali/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic DALI gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("gateway", cfg.Gateway.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"transport", cfg.DALI.Transport,
		"level", cfg.Logging.Level,
	)

	opts := dalibridge.BridgeOptions{
		GatewayID:        cfg.Gateway.ID,
		Version:          version,
		Transport:        cfg.DALI.Transport,
		HealthInterval:   cfg.GetHealthInterval(),
		JournalRetention: cfg.GetJournalRetention(),
		HealthChecks:     make(map[string]dalibridge.HealthCheck),
		Logger:           log.Component("bridge"),
	}

	// Frame journal (optional)
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.ConfigFrom(cfg.Database))
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
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
		applied, pending, statusErr := db.MigrationStatus(ctx, migrations.FS)
		if statusErr != nil {
			return fmt.Errorf("reading schema version: %w", statusErr)
		}
		schema := "none"
		if len(applied) > 0 {
			schema = applied[len(applied)-1].Version
		}
		log.Info("database ready", "path", db.Path(), "schema_version", schema, "pending", len(pending))

		opts.HealthChecks["database"] = db.HealthCheck

		journal := dalibridge.NewJournal(db.DB)
		journal.SetLogger(log.Component("journal"))
		if startErr := journal.Start(); startErr != nil {
			return fmt.Errorf("starting frame journal: %w", startErr)
		}
		defer journal.Stop()
		opts.Journal = journal
	}

	// MQTT (without it the gateway only records bus traffic)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, cfg.Gateway.ID)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		opts.MQTT = mqttClient
	} else {
		log.Warn("MQTT disabled, recording bus traffic only")
		opts.MQTT = offlineMQTT{}
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, cfg.Gateway.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		opts.Telemetry = influxClient
		opts.HealthChecks["influxdb"] = influxClient.HealthCheck
	}

	// Capture file (optional)
	if cfg.Capture.Enabled {
		writer, captureErr := capture.Create(cfg.Capture.Path)
		if captureErr != nil {
			return fmt.Errorf("opening capture file: %w", captureErr)
		}
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				log.Error("error closing capture file", "error", closeErr)
			}
		}()
		log.Info("capturing frames", "path", cfg.Capture.Path)
		opts.Capture = writer
	}

	driver, err := hardware.OpenDriver(cfg.DALI, log.Component("dali"), os.Stdout)
	if err != nil {
		return fmt.Errorf("opening DALI interface: %w", err)
	}
	defer func() {
		log.Info("closing DALI interface")
		if closeErr := driver.Close(); closeErr != nil {
			log.Error("error closing DALI interface", "error", closeErr)
		}
	}()
	opts.Driver = driver

	bridge, err := dalibridge.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: bridge, DALI interface, capture,
	// InfluxDB, MQTT, journal, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_DALI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_DALI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// offlineMQTT stands in for the broker when MQTT is disabled.
type offlineMQTT struct{}

func (offlineMQTT) Publish(string, []byte, byte, bool) error          { return nil }
func (offlineMQTT) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }
func (offlineMQTT) Unsubscribe(string) error                          { return nil }
func (offlineMQTT) IsConnected() bool                                 { return false }
