package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down. paho keeps reconnecting
	// in the background; callers may retry later.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned by Connect when the broker is not
	// reached within the connect timeout.
	ErrConnectionFailed = errors.New("mqtt: could not reach broker")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
