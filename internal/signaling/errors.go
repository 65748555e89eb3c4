package signaling

import "errors"

var (
	// ErrSendQueueFull is returned by Send when the peer is not draining its
	// outbound queue.
	ErrSendQueueFull = errors.New("signaling: send queue full")
	// ErrChannelClosed is returned by Send after the connection has closed.
	ErrChannelClosed = errors.New("signaling: channel closed")
)
