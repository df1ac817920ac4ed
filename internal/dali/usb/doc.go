// Package usb implements the DALI driver for the Lunatone DALI USB interface.
//
// The interface is a USB HID device exchanging fixed 64-byte reports. An
// outgoing report carries a command, a rolling sequence number, control
// flags, a write type selected by the frame length and up to three payload
// bytes. Incoming reports carry a read type, the payload and the sequence
// number of the last command the device processed. Transmit with block set
// waits until that sequence number catches up with the one just sent.
//
// Device enumeration is not part of this package: Open takes an Endpoint,
// normally provided by internal/hardware/hidusb.
//
// Example:
//
//	ep, err := hidusb.Open(usb.VendorID, usb.ProductID)
//	if err != nil {
//	    return err
//	}
//	drv, err := usb.Open(ep, usb.Options{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//	reply, err := drv.QueryReply(ctx, dali.NewFrame(16, 0xFF90)) // QUERY STATUS, broadcast
package usb
