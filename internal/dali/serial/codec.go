package serial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// DefaultBaudRate is the firmware's fixed line speed.
const DefaultBaudRate = 500000

// Status codes reported in the length field. Codes up to MaxBitLength are
// bit lengths of a real frame.
const (
	MaxBitLength        = 0x20
	CodeTimeout         = 0x81
	CodeBadStartBit     = 0x82
	CodeBadDataBit      = 0x83
	CodeCollisionLoop   = 0x84
	CodeCollisionStatic = 0x85
	CodeCollisionState  = 0x86
	CodeSettlingTime    = 0x87
	CodeSystemIdle      = 0x90
	CodeSystemFailure   = 0x91
	CodeSystemRecovered = 0x92
	CodeNotProcessed    = 0xA0
	CodeBadArgument     = 0xA1
	CodeQueueFull       = 0xA2
	CodeBadCommand      = 0xA3
	CodeBufferOverflow  = 0xA4
)

// Payload field offsets inside the braces.
const (
	fieldTimestampEnd = 8
	fieldLoopback     = 8
	fieldLengthStart  = 9
	fieldLengthEnd    = 11
	fieldDataStart    = 12
	fieldDataEnd      = 20
)

const parseErrorMessage = "value error"

// BuildCommand encodes frame as a command line.
//
// Parameters:
//   - frame: Frame to send
//   - isQuery: Use the query command, which makes the firmware wait for a
//     backward frame
//
// Returns:
//   - string: Command including the trailing carriage return
func BuildCommand(frame dali.Frame, isQuery bool) string {
	if frame.Length == 8 {
		return fmt.Sprintf("Y%X\r", frame.Data)
	}
	cmd := 'S'
	if isQuery {
		cmd = 'Q'
	}
	twice := ' '
	if frame.SendTwice {
		twice = '+'
	}
	return fmt.Sprintf("%c%d %X%c%X\r", cmd, frame.Priority, frame.Length, twice, frame.Data)
}

// Parse decodes one line from the firmware.
//
// It never fails: a line without braces or with bad hex yields a
// StatusGeneral frame carrying no other fields, and a frame whose data does
// not fit its bit length yields a StatusGeneral "malformed frame".
func Parse(line string) dali.Frame {
	start := strings.IndexByte(line, '{')
	end := strings.IndexByte(line, '}')
	if start < 0 || end <= start {
		return parseError()
	}
	payload := line[start+1 : end]
	if len(payload) <= fieldDataStart {
		return parseError()
	}

	millis, err := strconv.ParseUint(payload[:fieldTimestampEnd], 16, 32)
	if err != nil {
		return parseError()
	}
	code, err := strconv.ParseUint(payload[fieldLengthStart:fieldLengthEnd], 16, 8)
	if err != nil {
		return parseError()
	}
	data, err := strconv.ParseUint(payload[fieldDataStart:min(fieldDataEnd, len(payload))], 16, 32)
	if err != nil {
		return parseError()
	}

	length := int(code)
	frame := dali.Frame{
		Timestamp: float64(millis) / 1000.0,
		Length:    length,
		Data:      uint32(data),
		Priority:  dali.DefaultPriority,
	}
	frame.Status, frame.Message = classify(length, frame.Data, payload[fieldLoopback] == '>')

	if length <= MaxBitLength && !frame.Fits() {
		return dali.Frame{
			Timestamp: frame.Timestamp,
			Status:    dali.StatusGeneral,
			Message:   fmt.Sprintf("malformed frame: data 0x%X exceeds %d bits", frame.Data, length),
		}
	}
	return frame
}

// classify maps a length/status code to a Status and diagnostic message.
func classify(code int, data uint32, loopback bool) (dali.Status, string) {
	switch {
	case code <= MaxBitLength:
		if loopback {
			return dali.StatusLoopback, "LOOPBACK FRAME"
		}
		return dali.StatusFrame, "NORMAL FRAME"
	case code < CodeTimeout:
		return dali.StatusOK, "OK"
	}

	switch code {
	case CodeTimeout:
		return dali.StatusTimeout, "TIMEOUT"
	case CodeBadStartBit:
		bit, us := timingDetail(data)
		return dali.StatusTiming, fmt.Sprintf("ERROR TIMING: START - BIT: %d - TIME: %d USEC", bit, us)
	case CodeBadDataBit:
		bit, us := timingDetail(data)
		return dali.StatusTiming, fmt.Sprintf("ERROR TIMING: DATA - BIT: %d - TIME: %d USEC", bit, us)
	case CodeCollisionLoop, CodeCollisionStatic, CodeCollisionState:
		return dali.StatusTiming, "ERROR: COLLISION DETECTED"
	case CodeSystemFailure:
		return dali.StatusFailure, "ERROR: SYSTEM FAILURE"
	case CodeSystemRecovered:
		return dali.StatusRecover, "SYSTEM RECOVER"
	case CodeNotProcessed, CodeBadArgument, CodeQueueFull, CodeBadCommand:
		return dali.StatusInterface, "ERROR: INTERFACE"
	default:
		return dali.StatusUndefined, fmt.Sprintf("ERROR: CODE 0x%02X", code)
	}
}

// timingDetail splits timing error data into bit index and timer microseconds.
func timingDetail(data uint32) (bit, micros uint32) {
	return data & 0xFF, (data >> 8) & 0xFFFFF
}

func parseError() dali.Frame {
	return dali.Frame{Status: dali.StatusGeneral, Message: parseErrorMessage}
}
