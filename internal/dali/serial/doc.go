// Package serial implements the DALI driver for the SevenLab LPC1114
// serial interface firmware.
//
// The firmware speaks an ASCII line protocol. Commands are single lines
// terminated by a carriage return:
//
//	Y<data>            8-bit frame, e.g. "YFF\r"
//	S<prio> <len><t><data>   send, t is '+' for send-twice or ' '
//	Q<prio> <len><t><data>   send and expect a backward frame
//
// Every bus event comes back as a line with a fixed-width hex payload between
// braces:
//
//	{TTTTTTTTxLL DDDDDDDD}
//
// where T is a millisecond timer, x is '>' for a loopback of our own command,
// L is a length or status code and D is the data. Codes up to 0x20 are bit
// lengths; larger codes report status and errors.
//
// References:
//   - https://github.com/SvenHaedrich/dali_usb_lpc1114/blob/main/doc/messages.md
package serial
