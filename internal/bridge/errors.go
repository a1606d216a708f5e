package bridge

import "errors"

// ErrInvalidPayload is returned by the message handlers when a payload is
// not the JSON object the topic expects. The transport logs and drops it.
var ErrInvalidPayload = errors.New("bridge: invalid payload")
