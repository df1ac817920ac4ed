package usb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// fakeEndpoint is an in-memory HID endpoint. Reports pushed on in are
// returned by ReadReport; onWrite lets a test play the device.
type fakeEndpoint struct {
	in      chan []byte
	readErr chan error
	product string

	mu         sync.Mutex
	writes     [][]byte
	shortWrite bool
	onWrite    func(report []byte)
	closed     int
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		in:      make(chan []byte, 64),
		readErr: make(chan error, 1),
	}
}

func (f *fakeEndpoint) Write(report []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), report...))
	short := f.shortWrite
	hook := f.onWrite
	f.mu.Unlock()

	if short {
		return len(report) - 1, nil
	}
	if hook != nil {
		hook(report)
	}
	return len(report), nil
}

func (f *fakeEndpoint) ReadReport(buf []byte, timeout time.Duration) (int, error) {
	select {
	case r := <-f.in:
		return copy(buf, r), nil
	case err := <-f.readErr:
		return 0, err
	case <-time.After(timeout):
		return 0, ErrReadTimeout
	}
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) Product() (string, error) {
	return f.product, nil
}

func (f *fakeEndpoint) setOnWrite(hook func(report []byte)) {
	f.mu.Lock()
	f.onWrite = hook
	f.mu.Unlock()
}

func (f *fakeEndpoint) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func openDriver(t *testing.T, ep *fakeEndpoint, opts Options) *Driver {
	t.Helper()
	d, err := Open(ep, opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenDrainsPendingReports(t *testing.T) {
	ep := newFakeEndpoint()
	ep.in <- inReport(ReadType8Bit, 1, 0x11)
	ep.in <- inReport(ReadType8Bit, 2, 0x22)

	d := openDriver(t, ep, Options{})

	f, err := d.Receive(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if f.Status != dali.StatusTimeout {
		t.Errorf("pending report delivered after Open: %v", f)
	}
}

func TestOpenNilEndpoint(t *testing.T) {
	if _, err := Open(nil, Options{}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open(nil) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestReceiveDecodesReports(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ep.in <- inReport(ReadType16Bit, 0, 0x01, 0x05)
	ep.in <- inReport(ReadType25Bit, 0, 0x01) // ignored
	ep.in <- inReport(ReadTypeInfo, 0, DeviceStatusFrameError)

	f, err := d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if f.Status != dali.StatusFrame || f.Length != 16 || f.Data != 0x0105 {
		t.Errorf("first frame = %v", f)
	}
	if f.Timestamp == 0 {
		t.Error("received frame has no timestamp")
	}

	f, err = d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if f.Status != dali.StatusTiming {
		t.Errorf("second frame = %v, want TIMING", f)
	}
}

func TestTransmitSequenceNumbers(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	for range 3 {
		if err := d.Transmit(context.Background(), dali.NewFrame(16, 0xFF05), false); err != nil {
			t.Fatalf("Transmit() error: %v", err)
		}
	}

	writes := ep.written()
	if len(writes) != 3 {
		t.Fatalf("writes = %d, want 3", len(writes))
	}
	for i, w := range writes {
		if len(w) != ReportSize {
			t.Errorf("write %d length = %d, want %d", i, len(w), ReportSize)
		}
		if w[offSequence] != byte(i+1) {
			t.Errorf("write %d sequence = %d, want %d", i, w[offSequence], i+1)
		}
	}
}

func TestTransmitSequenceWraps(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})
	d.sendSeq = 0xFF

	if err := d.Transmit(context.Background(), dali.NewFrame(8, 1), false); err != nil {
		t.Fatalf("Transmit() error: %v", err)
	}
	writes := ep.written()
	if got := writes[0][offSequence]; got != 0x00 {
		t.Errorf("sequence after 0xFF = 0x%02X, want 0x00", got)
	}
}

func TestTransmitUnsupportedLengthKeepsSequence(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	err := d.Transmit(context.Background(), dali.NewFrame(32, 1), false)
	if !errors.Is(err, ErrUnsupportedLength) {
		t.Fatalf("Transmit() error = %v, want ErrUnsupportedLength", err)
	}
	if len(ep.written()) != 0 {
		t.Error("unsupported frame was written")
	}
	if d.sendSeq != 0 {
		t.Errorf("sendSeq = %d, want 0", d.sendSeq)
	}
}

func TestTransmitShortWrite(t *testing.T) {
	ep := newFakeEndpoint()
	ep.shortWrite = true
	d := openDriver(t, ep, Options{})

	err := d.Transmit(context.Background(), dali.NewFrame(8, 1), false)
	if !errors.Is(err, ErrShortWrite) {
		t.Errorf("Transmit() error = %v, want ErrShortWrite", err)
	}
}

func TestTransmitBlockWaitsForSequence(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	const delay = 50 * time.Millisecond
	ep.setOnWrite(func(report []byte) {
		seq := report[offSequence]
		// The device first reports an older sequence, then catches up.
		ep.in <- inReport(ReadTypeInfo, seq-1, DeviceStatusOK)
		go func() {
			time.Sleep(delay)
			ep.in <- inReport(ReadTypeInfo, seq, DeviceStatusOK)
		}()
	})

	start := time.Now()
	if err := d.Transmit(context.Background(), dali.NewFrame(16, 0xFE80), true); err != nil {
		t.Fatalf("Transmit() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("Transmit returned after %v, before the sequence caught up", elapsed)
	}
}

func TestTransmitBlockNeedsReceive(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{DeferReceive: true})

	err := d.Transmit(context.Background(), dali.NewFrame(8, 1), true)
	if !errors.Is(err, dali.ErrReceiveNotRunning) {
		t.Errorf("Transmit() error = %v, want ErrReceiveNotRunning", err)
	}
	if len(ep.written()) != 0 {
		t.Error("frame written despite usage error")
	}
}

func TestTransmitBlockHonoursContext(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := d.Transmit(ctx, dali.NewFrame(8, 1), true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Transmit() error = %v, want DeadlineExceeded", err)
	}
}

func TestQueryReply(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ep.setOnWrite(func(report []byte) {
		seq := report[offSequence]
		ep.in <- inReport(ReadTypeInfo, seq, DeviceStatusOK)
		ep.in <- inReport(ReadType8Bit, seq, 0xFE)
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFFA0))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Status != dali.StatusFrame || reply.Length != 8 || reply.Data != 0xFE {
		t.Errorf("reply = %v, want FRAME 8:0xFE", reply)
	}
}

func TestQueryReplyFlushesStaleFrames(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ep.in <- inReport(ReadType8Bit, 0, 0x99)
	waitQueued(t, d, 1)

	ep.setOnWrite(func(report []byte) {
		seq := report[offSequence]
		ep.in <- inReport(ReadTypeInfo, seq, DeviceStatusOK)
		ep.in <- inReport(ReadType8Bit, seq, 0x01)
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFFA0))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Data != 0x01 {
		t.Errorf("reply = %v, stale frame not flushed", reply)
	}
}

func TestQueryReplyTimeout(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ep.setOnWrite(func(report []byte) {
		ep.in <- inReport(ReadTypeInfo, report[offSequence], DeviceStatusOK)
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFFA0))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Status != dali.StatusTimeout {
		t.Errorf("reply = %v, want TIMEOUT", reply)
	}
}

func TestPower(t *testing.T) {
	t.Run("with power supply", func(t *testing.T) {
		ep := newFakeEndpoint()
		ep.product = PowerSupplyProduct
		d := openDriver(t, ep, Options{})

		if !d.HasPowerSupply() {
			t.Fatal("HasPowerSupply() = false")
		}
		if err := d.Power(true); err != nil {
			t.Fatalf("Power(true) error: %v", err)
		}
		w := ep.written()
		if len(w) != 1 || w[0][0] != CmdPower || w[0][1] != PowerOn {
			t.Errorf("power report = % X", w)
		}
	})

	t.Run("without power supply", func(t *testing.T) {
		ep := newFakeEndpoint()
		ep.product = "DALI USB"
		d := openDriver(t, ep, Options{})

		if err := d.Power(true); !errors.Is(err, ErrPowerUnsupported) {
			t.Errorf("Power() error = %v, want ErrPowerUnsupported", err)
		}
		if len(ep.written()) != 0 {
			t.Error("power report written on unsupported hardware")
		}
	})
}

func TestReadFailureStopsReceive(t *testing.T) {
	ep := newFakeEndpoint()
	d := openDriver(t, ep, Options{})

	ep.readErr <- errors.New("no such device")

	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	_, err := d.Receive(0)
	if !errors.Is(err, dali.ErrReceiveNotRunning) || !errors.Is(err, dali.ErrTransportFailed) {
		t.Errorf("Receive() error = %v, want ErrReceiveNotRunning wrapping ErrTransportFailed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() after failure: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	ep := newFakeEndpoint()
	d, err := Open(ep, Options{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if ep.closed != 1 {
		t.Errorf("endpoint closed %d times, want 1", ep.closed)
	}
	if err := d.Transmit(context.Background(), dali.NewFrame(8, 1), false); !errors.Is(err, dali.ErrClosed) {
		t.Errorf("Transmit() after Close error = %v, want ErrClosed", err)
	}
}

func waitQueued(t *testing.T, d *Driver, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.Stats().QueueDepth >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth did not reach %d", n)
}
