package relay

import "time"

// DefaultKeepaliveInterval is how often a bound role is pinged.
const DefaultKeepaliveInterval = 5 * time.Second

// Ticker is the subset of time.Ticker the keepalive needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

type keepaliveTick struct {
	role Role
	gen  uint64
}

type keepaliveTimer struct {
	gen  uint64
	stop chan struct{}
}

// Keepalive runs one ticker per bound role. Ticks are not acted on directly;
// they are posted to the hub loop, which resolves the role and sends the ping.
//
// Every Start bumps a generation counter so a tick that was already queued by
// a cancelled timer is recognised as stale.
type Keepalive struct {
	interval  time.Duration
	newTicker TickerFunc
	post      func(tick keepaliveTick, cancel <-chan struct{}) bool

	gen    uint64
	timers map[Role]*keepaliveTimer
}

// newKeepalive returns a monitor that delivers ticks through post. post
// must give up when cancel is closed and returns false once the receiver is
// gone, which ends the timer goroutine.
func newKeepalive(interval time.Duration, newTicker TickerFunc, post func(tick keepaliveTick, cancel <-chan struct{}) bool) *Keepalive {
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	return &Keepalive{
		interval:  interval,
		newTicker: newTicker,
		post:      post,
		timers:    make(map[Role]*keepaliveTimer),
	}
}

// Enabled reports whether pings are sent at all. A non-positive interval
// disables the monitor.
func (k *Keepalive) Enabled() bool {
	return k != nil && k.interval > 0
}

// Start (re)starts the timer for role, cancelling any previous one.
func (k *Keepalive) Start(role Role) {
	if !k.Enabled() {
		return
	}
	k.Stop(role)

	k.gen++
	t := &keepaliveTimer{gen: k.gen, stop: make(chan struct{})}
	k.timers[role] = t

	ticker := k.newTicker(k.interval)
	go func(tick keepaliveTick) {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C():
				if !k.post(tick, t.stop) {
					return
				}
			}
		}
	}(keepaliveTick{role: role, gen: t.gen})
}

func (k *Keepalive) Stop(role Role) {
	if k == nil {
		return
	}
	if t, ok := k.timers[role]; ok {
		close(t.stop)
		delete(k.timers, role)
	}
}

func (k *Keepalive) StopAll() {
	if k == nil {
		return
	}
	for role := range k.timers {
		k.Stop(role)
	}
}

// Active reports whether role currently has a running timer.
func (k *Keepalive) Active(role Role) bool {
	if k == nil {
		return false
	}
	_, ok := k.timers[role]
	return ok
}

func (k *Keepalive) current(tick keepaliveTick) bool {
	t, ok := k.timers[tick.role]
	return ok && t.gen == tick.gen
}
