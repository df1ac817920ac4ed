package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
gateway:
  id: "dali-lobby"
  health_interval: 15
dali:
  transport: usb
  queue_size: 64
  usb:
    vendor_id: 0x17B5
    product_id: 0x0020
database:
  path: "/tmp/dali.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
capture:
  enabled: true
  path: "/tmp/bus.cbor"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.ID != "dali-lobby" {
		t.Errorf("Gateway.ID = %q, want %q", cfg.Gateway.ID, "dali-lobby")
	}
	if cfg.DALI.Transport != TransportUSB {
		t.Errorf("DALI.Transport = %q, want %q", cfg.DALI.Transport, TransportUSB)
	}
	if cfg.DALI.QueueSize != 64 {
		t.Errorf("DALI.QueueSize = %d, want 64", cfg.DALI.QueueSize)
	}
	if cfg.DALI.USB.VendorID != 0x17B5 {
		t.Errorf("DALI.USB.VendorID = %#x, want 0x17b5", cfg.DALI.USB.VendorID)
	}
	// Unset keys keep their defaults.
	if cfg.DALI.Serial.BaudRate != 500000 {
		t.Errorf("DALI.Serial.BaudRate = %d, want 500000", cfg.DALI.Serial.BaudRate)
	}
	if cfg.GetHealthInterval() != 15*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 15s", cfg.GetHealthInterval())
	}
	if !cfg.Capture.Enabled || cfg.Capture.Path != "/tmp/bus.cbor" {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
gateway:
  id: "dali-01"
dali:
  transport: "can"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown transport, got nil")
	}
	if !strings.Contains(err.Error(), "dali.transport") {
		t.Errorf("Load() error = %v, want mention of dali.transport", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "mock transport needs no device",
			mutate: func(c *Config) { c.DALI.Transport = TransportMock; c.DALI.Serial.Port = "" },
		},
		{
			name:    "missing gateway id",
			mutate:  func(c *Config) { c.Gateway.ID = "" },
			wantErr: "gateway.id",
		},
		{
			name:    "serial without port",
			mutate:  func(c *Config) { c.DALI.Serial.Port = "" },
			wantErr: "dali.serial.port",
		},
		{
			name:    "serial with zero baud",
			mutate:  func(c *Config) { c.DALI.Serial.BaudRate = 0 },
			wantErr: "dali.serial.baud_rate",
		},
		{
			name: "usb without ids",
			mutate: func(c *Config) {
				c.DALI.Transport = TransportUSB
				c.DALI.USB = DALIUSBConfig{}
			},
			wantErr: "dali.usb",
		},
		{
			name:    "empty queue",
			mutate:  func(c *Config) { c.DALI.QueueSize = 0 },
			wantErr: "dali.queue_size",
		},
		{
			name:    "database without path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:   "disabled database without path",
			mutate: func(c *Config) { c.Database.Enabled = false; c.Database.Path = "" },
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "capture enabled without path",
			mutate:  func(c *Config) { c.Capture.Enabled = true; c.Capture.Path = "" },
			wantErr: "capture.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Gateway.ID = ""
	cfg.MQTT.QoS = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"gateway.id", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("GRAYLOGIC_DALI_GATEWAY_ID", "dali-garage")
	t.Setenv("GRAYLOGIC_DALI_TRANSPORT", "USB")
	t.Setenv("GRAYLOGIC_DALI_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("GRAYLOGIC_DALI_SERIAL_BAUD", "115200")
	t.Setenv("GRAYLOGIC_DALI_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_DALI_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_DALI_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_DALI_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_DALI_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_DALI_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Gateway.ID", cfg.Gateway.ID, "dali-garage"},
		{"DALI.Transport", cfg.DALI.Transport, TransportUSB},
		{"DALI.Serial.Port", cfg.DALI.Serial.Port, "/dev/ttyACM0"},
		{"DALI.Serial.BaudRate", cfg.DALI.Serial.BaudRate, 115200},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_BadBaudIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("GRAYLOGIC_DALI_SERIAL_BAUD", "fast")

	applyEnvOverrides(cfg)

	if cfg.DALI.Serial.BaudRate != 500000 {
		t.Errorf("DALI.Serial.BaudRate = %d, want default 500000", cfg.DALI.Serial.BaudRate)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.ID == "" {
		t.Error("Default() should have non-empty Gateway.ID")
	}
	if cfg.DALI.QueueSize != 40 {
		t.Errorf("Default() DALI.QueueSize = %d, want 40", cfg.DALI.QueueSize)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default() MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.GetJournalRetention() != 168*time.Hour {
		t.Errorf("GetJournalRetention() = %v, want 168h", cfg.GetJournalRetention())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}
