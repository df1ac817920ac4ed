// dalictl is an interactive console for a DALI bus interface.
//
// It opens the interface directly (no MQTT) and lets an installer send
// frames, run queries and watch the bus:
//
//	dalictl --transport serial --port /dev/ttyUSB0
//	dalictl --transport usb
//	dalictl --mock
//	dalictl --replay capture.cbor
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

	"github.com/chzyer/readline"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
	"github.com/nerrad567/gray-logic-dali/internal/hardware"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/logging"
)

type options struct {
	transport   string
	port        string
	baud        int
	transparent bool
	mock        bool
	capture     string
	replay      string
	status      string
	logLevel    string
}

func main() {
	var opts options
	defaults := config.Default().DALI

	flag.StringVar(&opts.transport, "transport", defaults.Transport, "Bus interface: usb, serial or mock")
	flag.StringVar(&opts.port, "port", defaults.Serial.Port, "Serial port")
	flag.IntVar(&opts.baud, "baud", defaults.Serial.BaudRate, "Serial baud rate")
	flag.BoolVar(&opts.transparent, "transparent", false, "Echo raw serial lines")
	flag.BoolVar(&opts.mock, "mock", false, "Use the mock transport (same as --transport mock)")
	flag.StringVar(&opts.capture, "capture", "", "Append every frame to this CBOR capture file")
	flag.StringVar(&opts.replay, "replay", "", "Print a capture file and exit")
	flag.StringVar(&opts.status, "status", "", "With --replay, only print frames with this status (e.g. FRAME)")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, opts options) error {
	if opts.replay != "" {
		var filter capture.Filter
		if opts.status != "" {
			status, err := dali.ParseStatus(opts.status)
			if err != nil {
				return err
			}
			filter.Status = &status
		}
		return replay(os.Stdout, opts.replay, filter)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dali> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	log := logging.NewWithWriter(config.LoggingConfig{Level: opts.logLevel, Format: "text"}, "dalictl", rl.Stderr())

	cfg := daliConfig(opts)
	driver, err := hardware.OpenDriver(cfg, log.Component("dali"), rl.Stdout())
	if err != nil {
		return fmt.Errorf("opening %s interface: %w", cfg.Transport, err)
	}
	defer driver.Close()

	c := newConsole(driver, rl.Stdout())
	if opts.capture != "" {
		w, err := capture.Create(opts.capture)
		if err != nil {
			return fmt.Errorf("opening capture file: %w", err)
		}
		defer w.Close()
		c.capture = w
	}

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return nil
		}

		if quit := c.execute(ctx, line); quit {
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return nil
		}
	}
}

// daliConfig builds the interface configuration from flags.
func daliConfig(opts options) config.DALIConfig {
	cfg := config.Default().DALI
	cfg.Transport = opts.transport
	if opts.mock {
		cfg.Transport = config.TransportMock
	}
	cfg.Serial.Port = opts.port
	cfg.Serial.BaudRate = opts.baud
	cfg.Serial.Transparent = opts.transparent
	return cfg
}

// replay prints every record of a capture file.
func replay(out io.Writer, path string, filter capture.Filter) error {
	r, err := capture.Open(path, filter)
	if err != nil {
		return fmt.Errorf("opening capture file: %w", err)
	}
	defer r.Close()

	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record %d: %w", n+1, err)
		}
		n++
		fmt.Fprintf(out, "%s %-3s %s\n", rec.Time.Format("15:04:05.000"), rec.Direction, rec.Frame())
	}
	fmt.Fprintf(out, "%d records\n", n)
	return nil
}
