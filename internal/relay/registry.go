package relay

import "time"

// Binding is the current association of a role to a channel.
type Binding struct {
	Role    Role
	Channel Channel
	BoundAt time.Time
}

// Registry maps each role to at most one channel. It is owned by the hub loop
// and is not safe for concurrent use.
type Registry struct {
	bindings  map[Role]Binding
	keepalive *Keepalive
	now       func() time.Time
}

// NewRegistry returns an empty registry. Binding a role (re)starts its timer
// on keepalive and unbinding stops it; keepalive may be nil.
func NewRegistry(keepalive *Keepalive, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		bindings:  make(map[Role]Binding),
		keepalive: keepalive,
		now:       now,
	}
}

// Bind unconditionally binds role to ch and returns the channel it replaced,
// if any. Last writer wins.
func (r *Registry) Bind(role Role, ch Channel) (prev Channel, replaced bool) {
	if !role.Valid() || ch == nil {
		return nil, false
	}
	if old, ok := r.bindings[role]; ok {
		prev, replaced = old.Channel, true
	}
	r.bindings[role] = Binding{Role: role, Channel: ch, BoundAt: r.now()}
	r.keepalive.Start(role)
	return prev, replaced
}

// Refresh handles a liveness reply. If role is already bound to ch nothing
// changes and the running timer is kept; otherwise it behaves like Bind.
func (r *Registry) Refresh(role Role, ch Channel) (rebound bool) {
	if !role.Valid() || ch == nil {
		return false
	}
	if cur, ok := r.bindings[role]; ok && sameChannel(cur.Channel, ch) {
		return false
	}
	r.Bind(role, ch)
	return true
}

// Unbind removes every binding that maps to exactly ch. A channel that was
// already superseded is a no-op.
func (r *Registry) Unbind(ch Channel) []Role {
	if ch == nil {
		return nil
	}
	var roles []Role
	for _, role := range Roles {
		if b, ok := r.bindings[role]; ok && sameChannel(b.Channel, ch) {
			r.remove(role)
			roles = append(roles, role)
		}
	}
	return roles
}

// UnbindRole removes the binding for role regardless of which channel holds
// it.
func (r *Registry) UnbindRole(role Role) (Channel, bool) {
	b, ok := r.bindings[role]
	if !ok {
		return nil, false
	}
	r.remove(role)
	return b.Channel, true
}

func (r *Registry) remove(role Role) {
	delete(r.bindings, role)
	r.keepalive.Stop(role)
}

func (r *Registry) Resolve(role Role) (Channel, bool) {
	b, ok := r.bindings[role]
	if !ok {
		return nil, false
	}
	return b.Channel, true
}

// Bindings returns the current bindings in role order.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, 0, len(r.bindings))
	for _, role := range Roles {
		if b, ok := r.bindings[role]; ok {
			out = append(out, b)
		}
	}
	return out
}
