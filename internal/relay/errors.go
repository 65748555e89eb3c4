package relay

import "errors"

var (
	// ErrMalformedMessage is returned by ParseMessage when the payload is not a
	// JSON object with string messageType/origin fields.
	ErrMalformedMessage = errors.New("malformed message")
	ErrInvalidPayload   = errors.New("invalid signaling payload")

	// ErrNotAttributable is returned when a message type cannot be stored in
	// the queue of the given origin (e.g. an answer claiming origin camera).
	ErrNotAttributable = errors.New("message not attributable to origin")
	ErrQueueFull       = errors.New("message queue full")

	ErrHubClosed = errors.New("hub closed")
)
