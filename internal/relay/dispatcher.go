package relay

import (
	"errors"
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
)

// rule is one predicate/action step of the dispatch cascade. Rules are
// evaluated in order and more than one may apply to the same message; a
// final rule ends the cascade once it has run.
type rule struct {
	name  string
	match func(msg Message) bool
	apply func(d *Dispatcher, from Channel, msg Message)
	final bool
}

func isType(t MessageType) func(Message) bool {
	return func(msg Message) bool { return msg.Type == t }
}

func fromRole(origin Role, types ...MessageType) func(Message) bool {
	return func(msg Message) bool {
		if msg.Origin != origin {
			return false
		}
		for _, t := range types {
			if msg.Type == t {
				return true
			}
		}
		return false
	}
}

// dispatchRules is the documented precedence order.
var dispatchRules = []rule{
	{name: "clear", match: isType(MessageTypeClear), apply: (*Dispatcher).clear},
	{name: "init", match: isType(MessageTypeInit), apply: (*Dispatcher).bind, final: true},
	{name: "close", match: isType(MessageTypeClose), apply: (*Dispatcher).unbindRole},
	{name: "pong", match: isType(MessageTypePong), apply: (*Dispatcher).refresh, final: true},
	{name: "enqueue_camera", match: fromRole(RoleCamera, MessageTypeOffer, MessageTypeICECandidate), apply: (*Dispatcher).enqueue},
	{name: "enqueue_computer", match: fromRole(RoleComputer, MessageTypeAnswer, MessageTypeICECandidate), apply: (*Dispatcher).enqueue},
	{name: "poll_computer", match: fromRole(RoleComputer, MessageTypePoll), apply: (*Dispatcher).poll},
	{name: "poll_camera", match: fromRole(RoleCamera, MessageTypePoll), apply: (*Dispatcher).poll},
}

// Dispatcher classifies inbound messages and applies them to the registry and
// store. It must only be used from the hub loop.
type Dispatcher struct {
	registry  *Registry
	store     *Store
	validator Validator
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(registry *Registry, store *Store, validator Validator, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		store:     store,
		validator: validator,
		log:       logger,
		metrics:   m,
	}
}

// Dispatch runs msg through the cascade and returns the names of the rules
// that applied. An empty result means the message was ignored.
func (d *Dispatcher) Dispatch(from Channel, msg Message) []string {
	if d.validator != nil {
		if err := d.validator.Validate(msg); err != nil {
			d.metrics.Inc(metrics.MessageInvalid)
			d.log.Warn("discarding invalid signaling message",
				"channel_id", from.ID(),
				"message_type", msg.Type,
				"origin", msg.Origin,
				"err", err,
			)
			return nil
		}
	}

	var applied []string
	for _, r := range dispatchRules {
		if !r.match(msg) {
			continue
		}
		r.apply(d, from, msg)
		applied = append(applied, r.name)
		if r.final {
			break
		}
	}

	if len(applied) == 0 {
		d.metrics.Inc(metrics.MessageIgnored)
		d.log.Debug("ignoring message", "channel_id", from.ID(), "message_type", msg.Type, "origin", msg.Origin)
	}
	return applied
}

func (d *Dispatcher) clear(from Channel, _ Message) {
	d.store.Clear()
	d.metrics.Inc(metrics.Clear)
	d.log.Info("message queues cleared", "channel_id", from.ID())
}

func (d *Dispatcher) bind(from Channel, msg Message) {
	if !msg.Origin.Valid() {
		d.log.Debug("init with unknown origin", "channel_id", from.ID(), "origin", msg.Origin)
		return
	}
	prev, replaced := d.registry.Bind(msg.Origin, from)
	d.metrics.Inc(metrics.Bind)
	attrs := []any{"role", msg.Origin, "channel_id", from.ID()}
	if replaced && !sameChannel(prev, from) {
		attrs = append(attrs, "replaced_channel_id", prev.ID())
	}
	d.log.Info("role bound", attrs...)
}

func (d *Dispatcher) unbindRole(from Channel, msg Message) {
	ch, ok := d.registry.UnbindRole(msg.Origin)
	if !ok {
		return
	}
	d.metrics.Inc(metrics.Unbind)
	d.log.Info("role unbound by close message", "role", msg.Origin, "channel_id", ch.ID(), "sender_channel_id", from.ID())
}

func (d *Dispatcher) refresh(from Channel, msg Message) {
	d.metrics.Inc(metrics.Pong)
	if d.registry.Refresh(msg.Origin, from) {
		d.metrics.Inc(metrics.Rebind)
		d.log.Info("role rebound by pong", "role", msg.Origin, "channel_id", from.ID())
	}
}

func (d *Dispatcher) enqueue(from Channel, msg Message) {
	if err := d.store.Enqueue(msg.Origin, msg); err != nil {
		d.metrics.Inc(metrics.EnqueueRejected)
		if errors.Is(err, ErrQueueFull) {
			d.metrics.Inc(metrics.QueueFull)
		}
		d.log.Warn("message not stored", "channel_id", from.ID(), "message_type", msg.Type, "origin", msg.Origin, "err", err)
		return
	}
	d.metrics.Inc(metrics.Enqueue)
	d.log.Debug("message stored", "channel_id", from.ID(), "message_type", msg.Type, "origin", msg.Origin, "queue_len", d.store.Len(msg.Origin))
}

func (d *Dispatcher) poll(from Channel, msg Message) {
	d.metrics.Inc(metrics.Poll)
	pending := d.store.PendingFor(msg.Origin)
	sent := 0
	if bs, ok := from.(BatchSender); ok {
		if len(pending) > 0 {
			batch := make([][]byte, len(pending))
			for i, m := range pending {
				batch[i] = m.Raw
			}
			if err := bs.SendBatch(batch); err != nil {
				d.metrics.Inc(metrics.SendFailed)
				d.log.Warn("send failed", "channel_id", from.ID(), "messages", len(batch), "err", err)
			} else {
				sent = len(batch)
			}
		}
	} else {
		for _, m := range pending {
			if !d.send(from, m.Raw) {
				break
			}
			sent++
		}
	}
	d.metrics.Add(metrics.PollDelivered, uint64(sent))
	d.log.Debug("poll served", "channel_id", from.ID(), "origin", msg.Origin, "pending", len(pending), "sent", sent)
}

// send writes data to ch. Failures are logged and counted; they never abort
// the caller's state changes.
func (d *Dispatcher) send(ch Channel, data []byte) bool {
	if err := ch.Send(data); err != nil {
		d.metrics.Inc(metrics.SendFailed)
		d.log.Warn("send failed", "channel_id", ch.ID(), "err", err)
		return false
	}
	return true
}
