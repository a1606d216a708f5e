package mqtt

import "errors"

// Use errors.Is to check for these in calling code.
var (
	// ErrNotConnected is returned by Publish while there is no live connection.
	// Nothing is queued for later delivery.
	ErrNotConnected = errors.New("mqtt: client not connected")

	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")
)
