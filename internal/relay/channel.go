package relay

// Channel is a connected peer endpoint owned by the transport.
//
// Send must not block: the hub calls it from its event loop. Implementations
// queue the payload and report a full or closed queue as an error.
type Channel interface {
	ID() string
	Send(data []byte) error
}

// BatchSender is implemented by channels that can queue several messages as
// one unit. A poll hands its whole snapshot over this way, so the snapshot
// length is not limited by the channel's send queue.
type BatchSender interface {
	SendBatch(batch [][]byte) error
}

func sameChannel(a, b Channel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
