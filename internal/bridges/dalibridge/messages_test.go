package dalibridge

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
)

func TestCommandMessageFrame(t *testing.T) {
	var cmd CommandMessage
	payload := `{"id":"c1","timestamp":"2026-01-15T10:00:00Z","length":16,"data":65424,"priority":4,"send_twice":true}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatal(err)
	}

	f := cmd.Frame()
	want := dali.Frame{Length: 16, Data: 0xFF90, Priority: 4, SendTwice: true, Status: dali.StatusOK, Message: "OK"}
	if f != want {
		t.Errorf("Frame() = %+v, want %+v", f, want)
	}

	cmd.Priority = 0
	if got := cmd.Frame().Priority; got != dali.DefaultPriority {
		t.Errorf("default priority = %d, want %d", got, dali.DefaultPriority)
	}
}

func TestRequestMessageFrameNeverSendsTwice(t *testing.T) {
	req := RequestMessage{Length: 16, Data: 0xFFA0}
	if f := req.Frame(); f.SendTwice || f.Priority != dali.DefaultPriority {
		t.Errorf("Frame() = %+v", f)
	}
}

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   dali.Frame
		wantErr error
	}{
		{"8 bit", dali.NewFrame(8, 0xFF), nil},
		{"25 bit", dali.NewFrame(25, 0x1FFFFFF), nil},
		{"zero length", dali.NewFrame(0, 0), ErrInvalidCommand},
		{"overflow", dali.NewFrame(8, 0x100), dali.ErrInvalidFrame},
		{"too long", dali.NewFrame(33, 1), dali.ErrInvalidFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFrame(tt.frame)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateFrame() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewFrameMessage(t *testing.T) {
	tests := []struct {
		name    string
		frame   dali.Frame
		wantHex string
	}{
		{"8 bit", dali.Frame{Length: 8, Data: 0x0A, Status: dali.StatusFrame}, "0A"},
		{"16 bit", dali.Frame{Length: 16, Data: 0x0105, Status: dali.StatusFrame}, "0105"},
		{"25 bit", dali.Frame{Length: 25, Data: 0x1000001, Status: dali.StatusFrame}, "1000001"},
		{"status only", dali.Frame{Status: dali.StatusFailure, Message: "bus failure"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFrameMessage(testGateway, capture.DirectionIn, tt.frame)
			if m.Hex != tt.wantHex {
				t.Errorf("Hex = %q, want %q", m.Hex, tt.wantHex)
			}
			if m.Gateway != testGateway || m.Direction != "in" {
				t.Errorf("message = %+v", m)
			}
		})
	}
}

func TestFrameMessageJSONUsesStatusNames(t *testing.T) {
	m := NewFrameMessage(testGateway, capture.DirectionOut, dali.Frame{Length: 8, Data: 1, Status: dali.StatusLoopback})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"status":"LOOPBACK"`) || !strings.Contains(string(data), `"direction":"out"`) {
		t.Errorf("json = %s", data)
	}
}
