package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported DALI transports.
const (
	TransportUSB    = "usb"
	TransportSerial = "serial"
	TransportMock   = "mock"
)

// Config is the root configuration structure for the Gray Logic DALI gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	DALI     DALIConfig     `yaml:"dali"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Capture  CaptureConfig  `yaml:"capture"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig identifies this gateway on the message bus.
type GatewayConfig struct {
	ID string `yaml:"id"`

	// HealthInterval is the health publish period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// JournalRetention is how long the frame journal keeps rows, in hours.
	// 0 keeps everything.
	JournalRetention int `yaml:"journal_retention"`
}

// DALIConfig selects and configures the bus interface.
type DALIConfig struct {
	// Transport is "usb", "serial" or "mock".
	Transport string `yaml:"transport"`

	// QueueSize is the receive queue capacity.
	QueueSize int `yaml:"queue_size"`

	USB    DALIUSBConfig    `yaml:"usb"`
	Serial DALISerialConfig `yaml:"serial"`
}

// DALIUSBConfig identifies the USB interface.
type DALIUSBConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
}

// DALISerialConfig configures the serial interface.
type DALISerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`

	// Transparent echoes every raw line to stdout.
	Transparent bool `yaml:"transparent"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// CaptureConfig enables the CBOR bus capture file.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_DALI_SECTION_KEY
// For example: GRAYLOGIC_DALI_SERIAL_PORT, GRAYLOGIC_DALI_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:               "dali-01",
			HealthInterval:   30,
			JournalRetention: 168,
		},
		DALI: DALIConfig{
			Transport: TransportSerial,
			QueueSize: 40,
			USB: DALIUSBConfig{
				VendorID:  0x17B5,
				ProductID: 0x0020,
			},
			Serial: DALISerialConfig{
				Port:     "/dev/ttyUSB0",
				BaudRate: 500000,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/dali.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-dali",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Capture: CaptureConfig{
			Path: "./data/capture.cbor",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_DALI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("GRAYLOGIC_DALI_GATEWAY_ID"); v != "" {
		cfg.Gateway.ID = v
	}

	// Bus interface
	if v := os.Getenv("GRAYLOGIC_DALI_TRANSPORT"); v != "" {
		cfg.DALI.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("GRAYLOGIC_DALI_SERIAL_PORT"); v != "" {
		cfg.DALI.Serial.Port = v
	}
	if v := os.Getenv("GRAYLOGIC_DALI_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.DALI.Serial.BaudRate = baud
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DALI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_DALI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_DALI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_DALI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_DALI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_DALI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}
	if c.Gateway.HealthInterval < 0 {
		errs = append(errs, "gateway.health_interval must not be negative")
	}

	switch c.DALI.Transport {
	case TransportUSB:
		if c.DALI.USB.VendorID == 0 || c.DALI.USB.ProductID == 0 {
			errs = append(errs, "dali.usb.vendor_id and dali.usb.product_id are required")
		}
	case TransportSerial:
		if c.DALI.Serial.Port == "" {
			errs = append(errs, "dali.serial.port is required")
		}
		if c.DALI.Serial.BaudRate <= 0 {
			errs = append(errs, "dali.serial.baud_rate must be positive")
		}
	case TransportMock:
	default:
		errs = append(errs, fmt.Sprintf("dali.transport must be usb, serial or mock (got %q)", c.DALI.Transport))
	}
	if c.DALI.QueueSize < 1 {
		errs = append(errs, "dali.queue_size must be at least 1")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	if c.Capture.Enabled && c.Capture.Path == "" {
		errs = append(errs, "capture.path is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHealthInterval returns the health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Gateway.HealthInterval) * time.Second
}

// GetJournalRetention returns the journal retention as a Duration.
// Zero means keep everything.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.Gateway.JournalRetention) * time.Hour
}
