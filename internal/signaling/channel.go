package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

var _ relay.BatchSender = (*wsChannel)(nil)

// wsChannel adapts one WebSocket connection to relay.Channel.
type wsChannel struct {
	id   string
	conn *websocket.Conn

	// Each entry is written as consecutive text frames. A poll's snapshot is
	// one entry however many messages it holds.
	send chan [][]byte
	done chan struct{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newWSChannel(conn *websocket.Conn, queueSize int) *wsChannel {
	return &wsChannel{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan [][]byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

// Send queues data for the writer goroutine without blocking.
func (c *wsChannel) Send(data []byte) error {
	return c.enqueue([][]byte{data})
}

// SendBatch queues every message in batch as a single send queue entry.
func (c *wsChannel) SendBatch(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}
	return c.enqueue(batch)
}

func (c *wsChannel) enqueue(batch [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- batch:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// closeWith marks the channel closed. The first caller's code and reason are
// written in the close frame.
func (c *wsChannel) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
}

func (c *wsChannel) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// writePump owns all data writes on the connection. It exits once the channel
// is closed, after sending the close frame and closing the socket.
func (c *wsChannel) writePump(pingInterval time.Duration) {
	var pingC <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case batch := <-c.send:
			for _, data := range batch {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					c.closeWith(websocket.CloseAbnormalClosure, "write failed")
					return
				}
			}
		case <-pingC:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeFrame(), time.Now().Add(writeWait))
			return
		}
	}
}
