// Package hardware selects and opens the DALI bus interface named in the
// configuration.
package hardware

import (
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/mock"
	"github.com/nerrad567/gray-logic-dali/internal/dali/serial"
	"github.com/nerrad567/gray-logic-dali/internal/dali/usb"
	"github.com/nerrad567/gray-logic-dali/internal/hardware/hidusb"
	"github.com/nerrad567/gray-logic-dali/internal/hardware/serialport"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
)

// OpenDriver opens the configured bus interface and starts receiving.
//
// Parameters:
//   - cfg: DALI section of the configuration
//   - log: Driver logger (may be nil)
//   - console: Where the mock transport prints commands and the serial
//     transport echoes raw lines in transparent mode (may be nil)
//
// Returns:
//   - dali.Driver: Running driver
//   - error: If the interface cannot be opened
func OpenDriver(cfg config.DALIConfig, log dali.Logger, console io.Writer) (dali.Driver, error) {
	log = dali.OrNop(log)

	switch cfg.Transport {
	case config.TransportUSB:
		dev, err := hidusb.Open(cfg.USB.VendorID, cfg.USB.ProductID)
		if err != nil {
			return nil, err
		}
		d, err := usb.Open(dev, usb.Options{QueueSize: cfg.QueueSize, Logger: log})
		if err != nil {
			dev.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
		if d.HasPowerSupply() {
			log.Info("DALI USB interface has an integrated bus power supply")
		}
		return d, nil

	case config.TransportSerial:
		port, err := serialport.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err != nil {
			return nil, err
		}
		opts := serial.Options{QueueSize: cfg.QueueSize, Logger: log}
		if cfg.Serial.Transparent && console != nil {
			opts.Transparent = console
		}
		d, err := serial.Open(port, opts)
		if err != nil {
			port.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
		return d, nil

	case config.TransportMock:
		return mock.New(console), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
