package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/signaling"
)

var errHubStopped = errors.New("relay hub stopped")

// app wires the hub, the signaling transport and the HTTP server.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *metrics.Metrics

	hub  *relay.Hub
	sig  *signaling.Server
	http *httpserver.Server

	hubMu      sync.Mutex
	hubRunning bool
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) *app {
	m := metrics.New()

	hubCfg := relay.HubConfig{
		Mode:                     relayMode(cfg.RelayMode),
		KeepaliveInterval:        cfg.KeepaliveInterval,
		MaxQueuedMessagesPerRole: cfg.MaxQueuedMessagesPerRole,
		Logger:                   logger.With("component", "hub"),
		Metrics:                  m,
	}
	if cfg.ValidateSignaling {
		hubCfg.Validator = relay.PayloadValidator{}
	}
	hub := relay.NewHub(hubCfg)

	sig := signaling.NewServer(signaling.Config{
		Hub:                  hub,
		Logger:               logger.With("component", "signaling"),
		Metrics:              m,
		OriginPolicy:         origin.NewPolicy(cfg.AllowedOrigins),
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		PingInterval:         cfg.SignalingWSPingInterval,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		SendQueueSize:        cfg.SignalingSendQueueSize,
	})

	srv := httpserver.New(cfg, logger, build)
	a := &app{
		cfg:     cfg,
		log:     logger,
		metrics: m,
		hub:     hub,
		sig:     sig,
		http:    srv,
	}

	srv.SetUpgradeHandler(sig)
	srv.SetReadyCheck(a.hubReady)
	srv.HandleCORS("GET /status", http.HandlerFunc(a.handleStatus))
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, a.relayGauges))

	return a
}

func relayMode(mode config.RelayMode) relay.Mode {
	switch mode {
	case config.RelayModeBroadcast:
		return relay.ModeBroadcast
	default:
		// Validated by config.Load.
		return relay.ModeRendezvous
	}
}

func (a *app) hubReady() error {
	a.hubMu.Lock()
	defer a.hubMu.Unlock()
	if !a.hubRunning {
		return errHubStopped
	}
	return nil
}

func (a *app) setHubRunning(running bool) {
	a.hubMu.Lock()
	a.hubRunning = running
	a.hubMu.Unlock()
}

type statusResponse struct {
	relay.Status
	Connections int               `json:"connections"`
	Counters    map[string]uint64 `json:"counters"`
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.hub.Status(r.Context())
	if err != nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, statusResponse{
		Status:      st,
		Connections: a.sig.Active(),
		Counters:    a.metrics.Snapshot(),
	})
}

// relayGauges reports per-role queue depth, binding and keepalive state from a
// hub snapshot, plus the live WebSocket count.
func (a *app) relayGauges(ctx context.Context) ([]metrics.Gauge, error) {
	st, err := a.hub.Status(ctx)
	if err != nil {
		return nil, err
	}

	bound := make(map[relay.Role]relay.BindingStatus, len(st.Bindings))
	for _, b := range st.Bindings {
		bound[b.Role] = b
	}

	gauges := []metrics.Gauge{{
		Name:  "connections",
		Help:  "Open signaling WebSocket connections.",
		Value: float64(a.sig.Active()),
	}}
	for _, role := range relay.Roles {
		labels := map[string]string{"role": string(role)}
		b, ok := bound[role]
		gauges = append(gauges,
			metrics.Gauge{Name: "queue_depth", Help: "Messages queued for the role.", Labels: labels, Value: float64(st.Queues[role])},
			metrics.Gauge{Name: "role_bound", Help: "1 while a connection holds the role.", Labels: labels, Value: boolGauge(ok)},
			metrics.Gauge{Name: "keepalive_active", Help: "1 while the role's keepalive timer runs.", Labels: labels, Value: boolGauge(ok && b.Keepalive)},
		)
	}
	return gauges, nil
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// run serves until ctx is done or the HTTP server fails, then shuts down in
// order: stop accepting, close WebSocket connections, stop the hub.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hubDone := make(chan struct{})
	a.setHubRunning(true)
	go func() {
		defer close(hubDone)
		defer a.setHubRunning(false)
		_ = a.hub.Run(hubCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.http.Serve(ln)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		a.log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.log.Error("http server shutdown failed", "err", err)
		}
		cancel()
		serveErr = <-errCh
	}

	a.sig.Shutdown()
	stopHub()
	<-hubDone

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
