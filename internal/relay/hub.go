package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
)

// Mode selects how the hub treats inbound messages.
type Mode string

const (
	// ModeRendezvous is the role-based registry/store protocol.
	ModeRendezvous Mode = "rendezvous"
	// ModeBroadcast forwards every inbound message verbatim to all other
	// connected channels.
	ModeBroadcast Mode = "broadcast"
)

const defaultEventQueueSize = 1024

type HubConfig struct {
	Mode              Mode
	KeepaliveInterval time.Duration
	// MaxQueuedMessagesPerRole bounds each store queue. <= 0 means unbounded.
	MaxQueuedMessagesPerRole int
	// Validator, if set, rejects offers/answers/candidates with unparseable
	// payloads.
	Validator Validator

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// NewTicker and Now are overridable for tests.
	NewTicker TickerFunc
	Now       func() time.Time
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
	eventTick
	eventCall
)

type event struct {
	kind eventKind
	ch   Channel
	data []byte
	tick keepaliveTick
	call func()
}

// Hub owns the registry, store and keepalive. Every mutation happens on the
// goroutine running Run; the exported methods only enqueue events, so events
// from one channel are handled in the order they were posted.
type Hub struct {
	mode    Mode
	log     *slog.Logger
	metrics *metrics.Metrics

	events chan event
	done   chan struct{}

	registry   *Registry
	store      *Store
	keepalive  *Keepalive
	dispatcher *Dispatcher

	channels map[string]Channel
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeRendezvous
	}

	h := &Hub{
		mode:     mode,
		log:      logger,
		metrics:  cfg.Metrics,
		events:   make(chan event, defaultEventQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]Channel),
	}
	h.keepalive = newKeepalive(cfg.KeepaliveInterval, cfg.NewTicker, h.postTick)
	h.registry = NewRegistry(h.keepalive, cfg.Now)
	h.store = NewStore(cfg.MaxQueuedMessagesPerRole)
	h.dispatcher = NewDispatcher(h.registry, h.store, cfg.Validator, logger, cfg.Metrics)
	return h
}

func (h *Hub) Mode() Mode { return h.mode }

// Run processes events until ctx is done. Keepalive timers are stopped on
// return and later posts fail with ErrHubClosed.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.keepalive.StopAll()

	h.log.Info("relay hub running", "mode", h.mode, "keepalive_interval", h.keepalive.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// Connect registers a newly accepted channel.
func (h *Hub) Connect(ch Channel) error {
	return h.post(event{kind: eventConnect, ch: ch})
}

// Deliver hands an inbound message from ch to the hub.
func (h *Hub) Deliver(ch Channel, data []byte) error {
	return h.post(event{kind: eventMessage, ch: ch, data: data})
}

// Disconnect reports that ch closed, cleanly or not.
func (h *Hub) Disconnect(ch Channel) error {
	return h.post(event{kind: eventDisconnect, ch: ch})
}

// post refuses events once Run has returned; events is buffered, so without
// the first check a send could still land in a queue nobody drains.
func (h *Hub) post(ev event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) postTick(tick keepaliveTick, cancel <-chan struct{}) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- event{kind: eventTick, tick: tick}:
		return true
	case <-cancel:
		return false
	case <-h.done:
		return false
	}
}

// call runs fn on the hub goroutine and waits for it.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ev := event{kind: eventCall, call: func() {
		fn()
		close(finished)
	}}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.events <- ev:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventConnect:
		h.handleConnect(ev.ch)
	case eventMessage:
		h.handleMessage(ev.ch, ev.data)
	case eventDisconnect:
		h.handleDisconnect(ev.ch)
	case eventTick:
		h.handleTick(ev.tick)
	case eventCall:
		ev.call()
	}
}

func (h *Hub) handleConnect(ch Channel) {
	h.channels[ch.ID()] = ch
	h.metrics.Inc(metrics.WSConnect)
	h.log.Info("client connected", "channel_id", ch.ID(), "connected", len(h.channels))
	h.dispatcher.send(ch, ServerReadyMessage())
}

func (h *Hub) handleMessage(ch Channel, data []byte) {
	h.metrics.Inc(metrics.MessageReceived)

	if h.mode == ModeBroadcast {
		h.broadcast(ch, data)
		return
	}

	msg, err := ParseMessage(data)
	if err != nil {
		h.metrics.Inc(metrics.MessageMalformed)
		h.log.Warn("discarding malformed message", "channel_id", ch.ID(), "bytes", len(data), "err", err)
		return
	}
	h.log.Debug("message received", "channel_id", ch.ID(), "message_type", msg.Type, "origin", msg.Origin, "bytes", len(data))
	h.dispatcher.Dispatch(ch, msg)
}

func (h *Hub) broadcast(from Channel, data []byte) {
	for id, ch := range h.channels {
		if id == from.ID() {
			continue
		}
		if h.dispatcher.send(ch, data) {
			h.metrics.Inc(metrics.BroadcastForwarded)
		}
	}
}

func (h *Hub) handleDisconnect(ch Channel) {
	delete(h.channels, ch.ID())
	h.metrics.Inc(metrics.WSDisconnect)

	roles := h.registry.Unbind(ch)
	for range roles {
		h.metrics.Inc(metrics.Unbind)
	}
	h.log.Info("client disconnected", "channel_id", ch.ID(), "unbound_roles", fmt.Sprint(roles), "connected", len(h.channels))
}

func (h *Hub) handleTick(tick keepaliveTick) {
	if !h.keepalive.current(tick) {
		return
	}
	ch, ok := h.registry.Resolve(tick.role)
	if !ok {
		return
	}
	if h.dispatcher.send(ch, PingMessage()) {
		h.metrics.Inc(metrics.KeepalivePing)
	}
}
