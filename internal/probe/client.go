// Package probe is a relay client that plays either role. It backs the
// aero-rendezvous-probe CLI and end-to-end tests.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

const (
	writeWait         = 10 * time.Second
	incomingQueueSize = 256
)

var (
	ErrNoServerReady = errors.New("probe: relay did not send serverReady")
	ErrClosed        = errors.New("probe: connection closed")
)

// Inbound is a message received from the relay. Server-originated messages
// carry Type; relayed peer messages carry MessageType and Origin.
type Inbound struct {
	Type        string          `json:"type,omitempty"`
	MessageType string          `json:"messageType,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`

	Raw        []byte    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

type Options struct {
	Logger *slog.Logger
	// AutoPong answers keepalive pings so the role stays bound.
	AutoPong bool
	// HandshakeTimeout bounds the dial and the serverReady wait.
	HandshakeTimeout time.Duration
}

type Client struct {
	conn *websocket.Conn
	role relay.Role
	log  *slog.Logger
	opts Options

	writeMu sync.Mutex

	incoming chan Inbound
	done     chan struct{}

	mu  sync.Mutex
	err error

	pings int
}

// Dial connects to the relay at url as role and waits for serverReady.
func Dial(ctx context.Context, url string, role relay.Role, opts Options) (*Client, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("probe: invalid role %q", role)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: dial %s: %w", url, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("probe: read greeting: %w", err)
	}
	var greeting Inbound
	if err := json.Unmarshal(data, &greeting); err != nil || greeting.Type != "serverReady" {
		_ = conn.Close()
		return nil, ErrNoServerReady
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		role:     role,
		log:      opts.Logger.With("role", role),
		opts:     opts,
		incoming: make(chan Inbound, incomingQueueSize),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Role() relay.Role { return c.role }

// Messages delivers everything except pings that AutoPong answered. It is
// closed when the connection ends.
func (c *Client) Messages() <-chan Inbound { return c.incoming }

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the read loop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pings returns how many keepalive pings were answered.
func (c *Client) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("ignoring non-json message from relay", "bytes", len(data), "err", err)
			continue
		}
		msg.Raw = data
		msg.ReceivedAt = time.Now()

		if msg.Type == "ping" && c.opts.AutoPong {
			c.mu.Lock()
			c.pings++
			c.mu.Unlock()
			if err := c.Pong(); err != nil {
				c.log.Warn("failed to answer keepalive ping", "err", err)
			}
			continue
		}

		select {
		case c.incoming <- msg:
		default:
			c.log.Warn("dropping relay message; consumer is not keeping up", "message_type", msg.MessageType, "type", msg.Type)
		}
	}
}

type envelope struct {
	MessageType relay.MessageType `json:"messageType"`
	Origin      relay.Role        `json:"origin"`
	SDP         any               `json:"sdp,omitempty"`
	Candidate   any               `json:"candidate,omitempty"`
}

// SendRaw writes data as a single text frame.
func (c *Client) SendRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) send(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

func (c *Client) sendType(t relay.MessageType) error {
	return c.send(envelope{MessageType: t, Origin: c.role})
}

func (c *Client) Init() error  { return c.sendType(relay.MessageTypeInit) }
func (c *Client) Pong() error  { return c.sendType(relay.MessageTypePong) }
func (c *Client) Poll() error  { return c.sendType(relay.MessageTypePoll) }
func (c *Client) Clear() error { return c.sendType(relay.MessageTypeClear) }

// Leave sends a close message for this role. The socket stays open.
func (c *Client) Leave() error { return c.sendType(relay.MessageTypeClose) }

// SendDescription sends an offer (camera) or answer (computer).
func (c *Client) SendDescription(desc webrtc.SessionDescription) error {
	var t relay.MessageType
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		t = relay.MessageTypeOffer
	case webrtc.SDPTypeAnswer:
		t = relay.MessageTypeAnswer
	default:
		return fmt.Errorf("probe: unsupported description type %s", desc.Type)
	}
	return c.send(envelope{MessageType: t, Origin: c.role, SDP: desc})
}

func (c *Client) SendCandidate(candidate webrtc.ICECandidateInit) error {
	return c.send(envelope{MessageType: relay.MessageTypeICECandidate, Origin: c.role, Candidate: candidate})
}

// Collect gathers messages until none has arrived for quiet, ctx is done or
// the connection closes.
func (c *Client) Collect(ctx context.Context, quiet time.Duration) []Inbound {
	var out []Inbound
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-c.incoming:
			if !ok {
				return out
			}
			out = append(out, msg)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)
		case <-timer.C:
			return out
		case <-ctx.Done():
			return out
		}
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
