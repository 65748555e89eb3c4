package relay

import (
	"context"
	"time"
)

type BindingStatus struct {
	Role      Role      `json:"role"`
	ChannelID string    `json:"channelId"`
	BoundAt   time.Time `json:"boundAt"`
	Keepalive bool      `json:"keepalive"`
}

// Status is a point-in-time view of the hub state.
type Status struct {
	Mode      Mode            `json:"mode"`
	Connected int             `json:"connected"`
	Bindings  []BindingStatus `json:"bindings"`
	Queues    map[Role]int    `json:"queues"`
}

// Bound returns the channel ID bound to role, if any.
func (s Status) Bound(role Role) (string, bool) {
	for _, b := range s.Bindings {
		if b.Role == role {
			return b.ChannelID, true
		}
	}
	return "", false
}

// Status collects a snapshot on the hub goroutine.
func (h *Hub) Status(ctx context.Context) (Status, error) {
	var st Status
	err := h.call(ctx, func() {
		st = Status{
			Mode:      h.mode,
			Connected: len(h.channels),
			Bindings:  []BindingStatus{},
			Queues:    make(map[Role]int, len(Roles)),
		}
		for _, b := range h.registry.Bindings() {
			st.Bindings = append(st.Bindings, BindingStatus{
				Role:      b.Role,
				ChannelID: b.Channel.ID(),
				BoundAt:   b.BoundAt,
				Keepalive: h.keepalive.Active(b.Role),
			})
		}
		for _, role := range Roles {
			st.Queues[role] = h.store.Len(role)
		}
	})
	return st, err
}
