// Package config loads the DALI gateway configuration.
//
// Values come from Default, then the YAML file, then GRAYLOGIC_DALI_*
// environment variables, and are checked by Validate before use:
//
//	cfg, err := config.Load(os.Getenv("GRAYLOGIC_DALI_CONFIG"))
//
// Keep the MQTT password and InfluxDB token in the environment rather than
// in a world-readable file.
package config
