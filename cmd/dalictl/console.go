package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
)

// commandTimeout bounds one console command on the bus.
const commandTimeout = 5 * time.Second

// console runs commands against one driver. It has no readline dependency
// so tests can drive it with plain strings.
type console struct {
	driver  dali.Driver
	out     io.Writer
	capture *capture.Writer
}

func newConsole(driver dali.Driver, out io.Writer) *console {
	return &console{driver: driver, out: out}
}

// execute runs one input line and reports whether the user asked to quit.
func (c *console) execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "send", "s":
		err = c.cmdSend(ctx, args, false)
	case "twice", "t":
		err = c.cmdSend(ctx, args, true)
	case "query":
		err = c.cmdQuery(ctx, args)
	case "recv", "r":
		err = c.cmdRecv(args)
	case "flush":
		fmt.Fprintf(c.out, "flushed %d frames\n", c.driver.Flush())
	case "power":
		err = c.cmdPower(args)
	case "stats":
		c.cmdStats()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `
DALI Console Commands:
  Bus:
    send <bits> <hex> [block]  - Transmit a forward frame (e.g. send 16 FF00)
    twice <bits> <hex> [block] - Transmit a frame twice (configuration commands)
    query <bits> <hex>         - Send a query and print the backward frame
    recv [ms]                  - Wait for the next bus event (default 1000ms)
    flush                      - Discard queued bus events

  Interface:
    power on|off               - Switch the integrated bus power supply
    stats                      - Show receive statistics

  General:
    help                       - Show this help
    quit                       - Exit`)
}

// parseFrame reads "<bits> <hex>" into a frame.
func parseFrame(args []string) (dali.Frame, error) {
	if len(args) < 2 {
		return dali.Frame{}, errors.New("usage: <bits> <hex>")
	}
	length, err := strconv.Atoi(args[0])
	if err != nil || length <= 0 {
		return dali.Frame{}, fmt.Errorf("invalid length %q", args[0])
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(args[1], "0x"), "0X")
	data, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return dali.Frame{}, fmt.Errorf("invalid hex data %q", args[1])
	}
	f := dali.NewFrame(length, uint32(data))
	return f, f.Validate()
}

func (c *console) cmdSend(ctx context.Context, args []string, twice bool) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	frame.SendTwice = twice
	block := len(args) > 2 && args[2] == "block"

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := c.driver.Transmit(ctx, frame, block); err != nil {
		return err
	}
	c.record(capture.DirectionOut, frame)
	fmt.Fprintf(c.out, "sent %s\n", frame)
	return nil
}

func (c *console) cmdQuery(ctx context.Context, args []string) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	reply, err := c.driver.QueryReply(ctx, frame)
	if err != nil {
		return err
	}
	c.record(capture.DirectionOut, frame)
	c.record(capture.DirectionIn, reply)
	fmt.Fprintf(c.out, "reply %s\n", reply)
	return nil
}

func (c *console) cmdRecv(args []string) error {
	timeout := dali.DefaultReceiveTimeout
	if len(args) > 0 {
		ms, err := strconv.Atoi(args[0])
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid timeout %q", args[0])
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	frame, err := c.driver.Receive(timeout)
	if err != nil {
		return err
	}
	if frame.Status != dali.StatusTimeout {
		c.record(capture.DirectionIn, frame)
	}
	fmt.Fprintf(c.out, "recv %s\n", frame)
	return nil
}

func (c *console) cmdPower(args []string) error {
	pc, ok := c.driver.(dali.PowerController)
	if !ok {
		return errors.New("this interface has no bus power supply control")
	}
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: power on|off")
	}
	if err := pc.Power(args[0] == "on"); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "bus power %s\n", args[0])
	return nil
}

func (c *console) cmdStats() {
	s := c.driver.Stats()
	fmt.Fprintf(c.out, "running:   %v\n", s.Running)
	fmt.Fprintf(c.out, "received:  %d\n", s.FramesReceived)
	fmt.Fprintf(c.out, "dropped:   %d\n", s.FramesDropped)
	fmt.Fprintf(c.out, "flushed:   %d\n", s.FramesFlushed)
	fmt.Fprintf(c.out, "errors:    %d (panics %d)\n", s.ReadErrors, s.Panics)
	fmt.Fprintf(c.out, "queue:     %d/%d\n", s.QueueDepth, s.QueueCapacity)
	if !s.LastActivity.IsZero() {
		fmt.Fprintf(c.out, "last seen: %s\n", s.LastActivity.Format(time.RFC3339))
	}
}

func (c *console) record(dir capture.Direction, frame dali.Frame) {
	if c.capture == nil {
		return
	}
	if err := c.capture.Record(dir, frame); err != nil {
		fmt.Fprintf(c.out, "capture: %v\n", err)
	}
}
