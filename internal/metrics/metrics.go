package metrics

import "sync"

// Relay event names. Every counter is exported under a single Prometheus
// metric with an `event` label.
const (
	WSConnect    = "ws_connect"
	WSDisconnect = "ws_disconnect"

	MessageReceived  = "message_received"
	MessageMalformed = "message_malformed"
	MessageInvalid   = "message_invalid"
	MessageIgnored   = "message_ignored"

	Bind   = "bind"
	Rebind = "rebind"
	Unbind = "unbind"

	Enqueue         = "enqueue"
	EnqueueRejected = "enqueue_rejected"
	QueueFull       = "queue_full"
	Clear           = "clear"
	Poll            = "poll"
	PollDelivered   = "poll_delivered"

	KeepalivePing = "keepalive_ping"
	Pong          = "pong"

	SendFailed         = "send_failed"
	BroadcastForwarded = "broadcast_forwarded"

	DropReasonRateLimited = "rate_limited"
	OriginRejected        = "origin_rejected"
	MessageTooLarge       = "message_too_large"
	IdleTimeout           = "idle_timeout"
)

// Metrics is a minimal, concurrency-safe counter registry. The zero value is
// ready to use.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
