package dali

import (
	"context"
	"errors"
	"testing"
)

type fakeExchange struct {
	calls     []string
	sendErr   error
	confirm   Frame
	confirmed bool
	reply     Frame
}

func (x *fakeExchange) Flush() int {
	x.calls = append(x.calls, "flush")
	return 0
}

func (x *fakeExchange) Send(context.Context, Frame) error {
	x.calls = append(x.calls, "send")
	return x.sendErr
}

func (x *fakeExchange) Confirm(context.Context, Frame) (Frame, bool, error) {
	x.calls = append(x.calls, "confirm")
	return x.confirm, x.confirmed, nil
}

func (x *fakeExchange) AwaitReply(context.Context) (Frame, error) {
	x.calls = append(x.calls, "reply")
	return x.reply, nil
}

func TestRunQuery(t *testing.T) {
	reply := Frame{Length: 8, Data: 0xFE, Status: StatusFrame}
	mismatch := Frame{Length: 16, Data: 0x1234, Status: StatusLoopback}

	tests := []struct {
		name      string
		x         *fakeExchange
		wantReply Frame
		wantPhase Phase
		wantCalls []string
		wantErr   bool
	}{
		{
			name:      "confirmed then reply",
			x:         &fakeExchange{confirmed: true, reply: reply},
			wantReply: reply,
			wantPhase: PhaseDone,
			wantCalls: []string{"flush", "send", "confirm", "reply"},
		},
		{
			name:      "reply timeout is data",
			x:         &fakeExchange{confirmed: true, reply: TimeoutFrame("t")},
			wantReply: TimeoutFrame("t"),
			wantPhase: PhaseDone,
			wantCalls: []string{"flush", "send", "confirm", "reply"},
		},
		{
			name:      "mismatch short-circuits",
			x:         &fakeExchange{confirm: mismatch},
			wantReply: mismatch,
			wantPhase: PhaseAwaitConfirm,
			wantCalls: []string{"flush", "send", "confirm"},
		},
		{
			name:      "send error",
			x:         &fakeExchange{sendErr: errors.New("write failed")},
			wantPhase: PhaseSent,
			wantCalls: []string{"flush", "send"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := RunQuery(context.Background(), tt.x, NewFrame(16, 0x1234))

			if (err != nil) != tt.wantErr {
				t.Fatalf("RunQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Reply != tt.wantReply {
				t.Errorf("Reply = %v, want %v", res.Reply, tt.wantReply)
			}
			if res.Phase != tt.wantPhase {
				t.Errorf("Phase = %v, want %v", res.Phase, tt.wantPhase)
			}
			if len(tt.x.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", tt.x.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if tt.x.calls[i] != tt.wantCalls[i] {
					t.Errorf("calls = %v, want %v", tt.x.calls, tt.wantCalls)
					break
				}
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	want := map[Phase]string{
		PhaseSent:         "sent",
		PhaseAwaitConfirm: "await_confirm",
		PhaseAwaitReply:   "await_reply",
		PhaseDone:         "done",
		Phase(99):         "unknown",
	}
	for p, s := range want {
		if p.String() != s {
			t.Errorf("Phase(%d).String() = %q, want %q", p, p.String(), s)
		}
	}
}
