package usb

import (
	"fmt"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
)

// ReportSize is the size of every HID report in both directions.
const ReportSize = 64

// USB identification of the Lunatone DALI USB interface.
const (
	VendorID  uint16 = 0x17B5
	ProductID uint16 = 0x0020

	// PowerSupplyProduct is the product string of the variant with an
	// integrated bus power supply.
	PowerSupplyProduct = "DALI USB with PS"
)

// Device commands (report byte 0).
const (
	CmdInit       byte = 0x01
	CmdBootloader byte = 0x02
	CmdSend       byte = 0x12
	CmdSendAnswer byte = 0x15
	CmdSetIOPins  byte = 0x20
	CmdReadIOPins byte = 0x21
	CmdIdentify   byte = 0x22
	CmdPower      byte = 0x40
)

// Control flags (report byte 2).
const (
	CtrlDAPC    byte = 0x04
	CtrlSetDTR  byte = 0x10
	CtrlTwice   byte = 0x20
	CtrlID      byte = 0x40
	CtrlDevType byte = 0x80
)

// Write types (report byte 3).
const (
	WriteTypeNone   byte = 0x01
	WriteType8Bit   byte = 0x02
	WriteType16Bit  byte = 0x03
	WriteType25Bit  byte = 0x04
	WriteTypeDSI    byte = 0x05
	WriteType24Bit  byte = 0x06
	WriteTypeStatus byte = 0x07
	WriteType17Bit  byte = 0x08
)

// Read modes reported by the device.
const (
	ReadModeInfo     byte = 0x01
	ReadModeObserve  byte = 0x11
	ReadModeResponse byte = 0x12
)

// Read types (incoming report byte 1).
const (
	ReadTypeNoFrame byte = 0x71
	ReadType8Bit    byte = 0x72
	ReadType16Bit   byte = 0x73
	ReadType25Bit   byte = 0x74
	ReadTypeDSI     byte = 0x75
	ReadType24Bit   byte = 0x76
	ReadTypeInfo    byte = 0x77
	ReadType17Bit   byte = 0x78
	ReadType32Bit   byte = 0x7E
)

// Device status codes carried by info reports (byte 5).
const (
	DeviceStatusChecksum   byte = 0x01
	DeviceStatusShorted    byte = 0x02
	DeviceStatusFrameError byte = 0x03
	DeviceStatusOK         byte = 0x04
	DeviceStatusDSI        byte = 0x05
	DeviceStatusDALI       byte = 0x06
)

// Power states for CmdPower.
const (
	PowerOff byte = 0x00
	PowerOn  byte = 0x01
)

// Outgoing report offsets. Byte 4 is unused.
const (
	offCommand  = 0
	offSequence = 1
	offControl  = 2
	offType     = 3
	offExt      = 5
	offAddress  = 6
	offOpcode   = 7
)

// Incoming report offsets. The payload is big-endian in bytes 2..5.
const (
	inType     = 1
	inPayload  = 2
	inSequence = 8
	minReport  = inSequence + 1
)

// Report is a decoded incoming report.
type Report struct {
	// ReadType is the raw selector from byte 1.
	ReadType byte

	// Sequence is the number of the last command the device processed.
	Sequence uint8

	// Ignored is true for read types that carry no bus event.
	Ignored bool

	// Frame is the decoded event. Timestamp is left for the caller.
	Frame dali.Frame
}

// EncodeSend builds the report transmitting frame with sequence number seq.
//
// Parameters:
//   - frame: Forward frame of 8, 16 or 24 bits
//   - seq: Rolling sequence number
//
// Returns:
//   - [ReportSize]byte: The report, zero padded
//   - error: ErrUnsupportedLength for other lengths, dali.ErrInvalidFrame if
//     the data does not fit the length
func EncodeSend(frame dali.Frame, seq uint8) ([ReportSize]byte, error) {
	var report [ReportSize]byte

	var writeType byte
	switch frame.Length {
	case 8:
		writeType = WriteType8Bit
	case 16:
		writeType = WriteType16Bit
	case 24:
		writeType = WriteType24Bit
	default:
		return report, fmt.Errorf("%w: %d bits (want 8, 16 or 24)", ErrUnsupportedLength, frame.Length)
	}
	if err := frame.Validate(); err != nil {
		return report, err
	}

	report[offCommand] = CmdSend
	report[offSequence] = seq
	if frame.SendTwice {
		report[offControl] = CtrlTwice
	}
	report[offType] = writeType
	report[offExt] = byte(frame.Data >> 16)
	report[offAddress] = byte(frame.Data >> 8)
	report[offOpcode] = byte(frame.Data)
	return report, nil
}

// EncodePower builds the report switching the integrated power supply.
func EncodePower(on bool) [ReportSize]byte {
	var report [ReportSize]byte
	report[offCommand] = CmdPower
	if on {
		report[1] = PowerOn
	} else {
		report[1] = PowerOff
	}
	return report
}

// DecodeReport decodes an incoming report.
//
// Frame read types become StatusFrame events; "no frame" becomes
// StatusTimeout; info reports become StatusOK, StatusTiming (device frame
// error) or StatusGeneral. Any other read type is marked Ignored.
//
// Returns:
//   - Report: Decoded report
//   - error: dali.ErrMalformedReport if the report is too short
func DecodeReport(report []byte) (Report, error) {
	if len(report) < minReport {
		return Report{}, fmt.Errorf("%w: %d bytes", dali.ErrMalformedReport, len(report))
	}

	r := Report{
		ReadType: report[inType],
		Sequence: report[inSequence],
	}

	payload := func(bits int) uint32 {
		var v uint32
		for i := range bits / 8 {
			v = v<<8 | uint32(report[inPayload+4-bits/8+i])
		}
		return v
	}

	switch r.ReadType {
	case ReadType8Bit:
		r.Frame = frameEvent(8, payload(8))
	case ReadType16Bit:
		r.Frame = frameEvent(16, payload(16))
	case ReadType24Bit:
		r.Frame = frameEvent(24, payload(24))
	case ReadType32Bit:
		r.Frame = frameEvent(32, payload(32))
	case ReadTypeNoFrame:
		r.Frame = dali.Frame{Status: dali.StatusTimeout, Message: "NO FRAME"}
	case ReadTypeInfo:
		r.Frame = infoEvent(report[inPayload+3])
	default:
		r.Ignored = true
	}
	return r, nil
}

func frameEvent(length int, data uint32) dali.Frame {
	return dali.Frame{
		Length:   length,
		Data:     data,
		Priority: dali.DefaultPriority,
		Status:   dali.StatusFrame,
		Message:  "NORMAL FRAME",
	}
}

func infoEvent(status byte) dali.Frame {
	switch status {
	case DeviceStatusOK:
		return dali.Frame{Status: dali.StatusOK, Message: "OK"}
	case DeviceStatusFrameError:
		return dali.Frame{Status: dali.StatusTiming, Message: "ERROR: FRAME"}
	default:
		return dali.Frame{Status: dali.StatusGeneral, Message: fmt.Sprintf("ERROR: STATUS 0x%02X", status)}
	}
}

// sequenceReached reports whether the device sequence has caught up with
// sent. Comparison is modulo 256 so a wrap from 0xFF to 0x00 still counts.
func sequenceReached(device, sent uint8) bool {
	return device-sent < 0x80
}
