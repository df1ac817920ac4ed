package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// fakePort is an in-memory firmware. Lines pushed on lines are returned by
// ReadLine; onWrite lets a test answer commands.
type fakePort struct {
	lines   chan string
	readErr chan error

	mu      sync.Mutex
	writes  []string
	onWrite func(cmd string)
	closed  int
}

func newFakePort() *fakePort {
	return &fakePort{
		lines:   make(chan string, 64),
		readErr: make(chan error, 1),
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	hook := p.onWrite
	p.mu.Unlock()
	if hook != nil {
		hook(string(b))
	}
	return len(b), nil
}

func (p *fakePort) ReadLine(timeout time.Duration) (string, error) {
	select {
	case l := <-p.lines:
		return l, nil
	case err := <-p.readErr:
		return "", err
	case <-time.After(timeout):
		return "", nil
	}
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) setOnWrite(hook func(cmd string)) {
	p.mu.Lock()
	p.onWrite = hook
	p.mu.Unlock()
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func openDriver(t *testing.T, p *fakePort, opts Options) *Driver {
	t.Helper()
	d, err := Open(p, opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestTransmitWritesCommand(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	frame := dali.Frame{Length: 16, Data: 0x0105, Priority: 1}
	if err := d.Transmit(context.Background(), frame, false); err != nil {
		t.Fatalf("Transmit() error: %v", err)
	}

	w := p.written()
	if len(w) != 1 || w[0] != "S1 10 105\r" {
		t.Errorf("written = %q, want [\"S1 10 105\\r\"]", w)
	}
}

func TestTransmitRejectsOversizedData(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	err := d.Transmit(context.Background(), dali.NewFrame(8, 0x100), false)
	if !errors.Is(err, dali.ErrInvalidFrame) {
		t.Errorf("Transmit() error = %v, want ErrInvalidFrame", err)
	}
}

func TestTransmitBlockConsumesLoopbacks(t *testing.T) {
	tests := []struct {
		name      string
		frame     dali.Frame
		loopbacks int
	}{
		{"single", dali.NewFrame(16, 0xFF05), 1},
		{"send twice", dali.Frame{Length: 16, Data: 0xFF20, Priority: 2, SendTwice: true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePort()
			d := openDriver(t, p, Options{})

			p.setOnWrite(func(string) {
				for range tt.loopbacks {
					p.lines <- "{00000001>10 0000" + hex16(tt.frame.Data) + "}"
				}
			})

			if err := d.Transmit(context.Background(), tt.frame, true); err != nil {
				t.Fatalf("Transmit() error: %v", err)
			}
			if f, _ := d.Receive(50 * time.Millisecond); f.Status != dali.StatusTimeout {
				t.Errorf("loopback left in queue: %v", f)
			}
			if n := d.LoopbackMismatches(); n != 0 {
				t.Errorf("LoopbackMismatches = %d, want 0", n)
			}
		})
	}
}

func TestTransmitBlockNeedsReceive(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{DeferReceive: true})

	err := d.Transmit(context.Background(), dali.NewFrame(16, 1), true)
	if !errors.Is(err, dali.ErrReceiveNotRunning) {
		t.Errorf("Transmit() error = %v, want ErrReceiveNotRunning", err)
	}
}

func TestQueryReply(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.setOnWrite(func(cmd string) {
		if cmd != "Q2 10 FF90\r" {
			t.Errorf("command = %q", cmd)
		}
		p.lines <- "{00000001>10 0000FF90}"
		p.lines <- "{00000002 08 000000FE}"
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFF90))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Status != dali.StatusFrame || reply.Length != 8 || reply.Data != 0xFE {
		t.Errorf("reply = %v, want FRAME 8:0xFE", reply)
	}
}

func TestQueryReplySendTwice(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.setOnWrite(func(string) {
		p.lines <- "{00000001>10 0000FF90}"
		p.lines <- "{00000002>10 0000FF90}"
		p.lines <- "{00000003 08 00000001}"
	})

	req := dali.Frame{Length: 16, Data: 0xFF90, Priority: 2, SendTwice: true}
	reply, err := d.QueryReply(context.Background(), req)
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Status != dali.StatusFrame || reply.Data != 1 {
		t.Errorf("reply = %v, want FRAME 8:0x01", reply)
	}
}

func TestQueryReplyMismatchReturnsLoopback(t *testing.T) {
	tests := []struct {
		name     string
		loopback string
	}{
		{"wrong data", "{00000001>10 0000FF91}"},
		{"wrong length", "{00000001>18 0000FF90}"},
		{"not a loopback", "{00000001 10 0000FF90}"},
		{"interface error", "{00000001 A3 00000000}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePort()
			d := openDriver(t, p, Options{})

			backframe := "{00000002 08 000000FE}"
			p.setOnWrite(func(string) {
				p.lines <- tt.loopback
				p.lines <- backframe
			})

			reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFF90))
			if err != nil {
				t.Fatalf("QueryReply() error: %v", err)
			}
			if want := Parse(tt.loopback); reply != want {
				t.Errorf("reply = %+v, want unchanged loopback %+v", reply, want)
			}
			if d.LoopbackMismatches() != 1 {
				t.Errorf("LoopbackMismatches = %d, want 1", d.LoopbackMismatches())
			}

			// The backframe was not consumed by a second read.
			f, err := d.Receive(time.Second)
			if err != nil {
				t.Fatalf("Receive() error: %v", err)
			}
			if f != Parse(backframe) {
				t.Errorf("next frame = %v, want backframe still queued", f)
			}
		})
	}
}

func TestQueryReplyFlushesStaleFrames(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.lines <- "{00000000 08 00000099}"
	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().QueueDepth == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	p.setOnWrite(func(string) {
		p.lines <- "{00000001>10 0000FFA0}"
		p.lines <- "{00000002 08 00000001}"
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFFA0))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Data != 1 {
		t.Errorf("reply = %v, stale frame not flushed", reply)
	}
}

func TestQueryReplyNoReply(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.setOnWrite(func(string) {
		p.lines <- "{00000001>10 0000FF90}"
	})

	reply, err := d.QueryReply(context.Background(), dali.NewFrame(16, 0xFF90))
	if err != nil {
		t.Fatalf("QueryReply() error: %v", err)
	}
	if reply.Status != dali.StatusTimeout {
		t.Errorf("reply = %v, want TIMEOUT", reply)
	}
}

func TestTransparentEcho(t *testing.T) {
	p := newFakePort()
	var mu sync.Mutex
	var echo bytes.Buffer
	d := openDriver(t, p, Options{Transparent: writerFunc(func(b []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return echo.Write(b)
	})})

	p.lines <- "{00000000 92 00000000}\r"
	f, err := d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if f.Status != dali.StatusRecover || f.Message != "SYSTEM RECOVER" {
		t.Errorf("frame = %+v, want RECOVER", f)
	}

	mu.Lock()
	defer mu.Unlock()
	if echo.String() != "{00000000 92 00000000}\n" {
		t.Errorf("echo = %q", echo.String())
	}
}

func TestMalformedLineKeepsReceiving(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.lines <- "{zz}"
	p.lines <- "{00000000 08 000000FE}"

	f, _ := d.Receive(time.Second)
	if f.Status != dali.StatusGeneral {
		t.Errorf("first frame = %v, want GENERAL", f)
	}
	f, _ = d.Receive(time.Second)
	if f.Status != dali.StatusFrame || f.Data != 0xFE {
		t.Errorf("second frame = %v, want FRAME", f)
	}
}

func TestPortEOFStopsReceive(t *testing.T) {
	p := newFakePort()
	d := openDriver(t, p, Options{})

	p.readErr <- io.EOF

	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := d.Receive(0); !errors.Is(err, dali.ErrReceiveNotRunning) {
		t.Errorf("Receive() error = %v, want ErrReceiveNotRunning", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := newFakePort()
	d, err := Open(p, Options{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	d.Close()
	d.Close()
	if p.closed != 1 {
		t.Errorf("port closed %d times, want 1", p.closed)
	}
	if err := d.Transmit(context.Background(), dali.NewFrame(16, 1), false); !errors.Is(err, dali.ErrClosed) {
		t.Errorf("Transmit() after Close error = %v, want ErrClosed", err)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

func hex16(v uint32) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[v>>12&0xF], digits[v>>8&0xF], digits[v>>4&0xF], digits[v&0xF]})
}
