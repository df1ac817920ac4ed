// Package logging builds the gateway's log/slog logger from the logging
// section of config.yaml.
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr, discard
//
// Every entry carries service and version. Subsystems get a child logger
// via Component so bus traffic can be filtered by component=dali:
//
//	log := logging.New(cfg.Logging, version)
//	drv, err := serial.Open(port, serial.Options{Logger: log.Component("dali")})
//
// *Logger satisfies the small Logger interfaces declared by the dali,
// dalibridge and mqtt packages. Never log MQTT passwords or InfluxDB tokens.
package logging
