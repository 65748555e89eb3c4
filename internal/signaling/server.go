package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

const (
	writeWait = 10 * time.Second

	DefaultMaxMessageBytes = int64(64 * 1024)
	DefaultSendQueueSize   = 256
)

// Hub is the part of *relay.Hub the transport drives.
type Hub interface {
	Connect(ch relay.Channel) error
	Deliver(ch relay.Channel, data []byte) error
	Disconnect(ch relay.Channel) error
}

type Config struct {
	Hub     Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	OriginPolicy origin.Policy

	// MaxMessageBytes caps a single inbound frame. Larger frames close the
	// connection with 1009.
	MaxMessageBytes int64
	// MaxMessagesPerSecond closes connections that exceed it with 1008.
	// 0 disables the limit.
	MaxMessagesPerSecond int
	// PingInterval sends WebSocket ping frames. 0 disables pings.
	PingInterval time.Duration
	// IdleTimeout closes connections that send no frame (data or pong) for
	// this long. 0 disables it.
	IdleTimeout   time.Duration
	SendQueueSize int

	Clock ratelimit.Clock
}

type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*wsChannel
	shutdown bool
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		conns: make(map[string]*wsChannel),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	normalized, ok := s.cfg.OriginPolicy.Check(r)
	if !ok {
		s.cfg.Metrics.Inc(metrics.OriginRejected)
		s.log.Warn("rejecting websocket origin",
			"origin", r.Header.Get("Origin"),
			"normalized_origin", normalized,
			"host", r.Host,
			"remote_addr", r.RemoteAddr,
		)
	}
	return ok
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	ch := newWSChannel(conn, s.cfg.SendQueueSize)
	log := s.log.With("channel_id", ch.ID(), "remote_addr", r.RemoteAddr)

	if !s.track(ch) {
		ch.closeWith(websocket.CloseGoingAway, "server shutting down")
		ch.writePump(0)
		return
	}
	defer s.untrack(ch)

	if err := s.cfg.Hub.Connect(ch); err != nil {
		log.Warn("hub rejected connection", "err", err)
		ch.closeWith(websocket.CloseGoingAway, "server shutting down")
		ch.writePump(0)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ch.writePump(s.cfg.PingInterval)
	}()

	s.readPump(ch, log)

	if err := s.cfg.Hub.Disconnect(ch); err != nil && !errors.Is(err, relay.ErrHubClosed) {
		log.Warn("failed to report disconnect", "err", err)
	}
	<-writerDone
}

// readPump hands inbound frames to the hub until the connection fails or the
// channel is closed.
func (s *Server) readPump(ch *wsChannel, log *slog.Logger) {
	conn := ch.conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	idle := s.cfg.IdleTimeout
	extend := func() {
		if idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	limiter := ratelimit.NewMessageLimiter(s.cfg.Clock, s.cfg.MaxMessagesPerSecond)

	for {
		// Text and binary frames are both treated as UTF-8 JSON.
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.readFailed(ch, log, err)
			return
		}
		extend()

		if !limiter.Allow() {
			s.cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			log.Warn("closing connection over message rate limit", "limit_per_second", s.cfg.MaxMessagesPerSecond)
			ch.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if err := s.cfg.Hub.Deliver(ch, data); err != nil {
			ch.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) readFailed(ch *wsChannel, log *slog.Logger, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.cfg.Metrics.Inc(metrics.MessageTooLarge)
		log.Warn("closing connection over message size limit", "max_bytes", s.cfg.MaxMessageBytes)
		ch.closeWith(websocket.CloseMessageTooBig, "message too large")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.cfg.Metrics.Inc(metrics.IdleTimeout)
		log.Info("closing idle connection", "idle_timeout", s.cfg.IdleTimeout.String())
		ch.closeWith(websocket.CloseNormalClosure, "idle timeout")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.Debug("connection closed unexpectedly", "err", err)
		ch.closeWith(websocket.CloseNormalClosure, "")
	default:
		ch.closeWith(websocket.CloseNormalClosure, "")
	}
}

func (s *Server) track(ch *wsChannel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[ch.ID()] = ch
	return true
}

func (s *Server) untrack(ch *wsChannel) {
	s.mu.Lock()
	delete(s.conns, ch.ID())
	s.mu.Unlock()
}

// Active returns the number of open connections.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every connection with 1001 and refuses new ones. Hijacked
// connections are not covered by http.Server.Shutdown.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*wsChannel, 0, len(s.conns))
	for _, ch := range s.conns {
		conns = append(conns, ch)
	}
	s.mu.Unlock()

	for _, ch := range conns {
		ch.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
