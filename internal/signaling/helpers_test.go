package signaling

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

type testRelay struct {
	hub     *relay.Hub
	srv     *Server
	ts      *httptest.Server
	metrics *metrics.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRelay runs a hub and a signaling server behind httptest. hubCfg and
// cfg are used as-is apart from the wiring fields.
func newTestRelay(t *testing.T, hubCfg relay.HubConfig, cfg Config) *testRelay {
	t.Helper()

	m := metrics.New()
	hubCfg.Logger = discardLogger()
	hubCfg.Metrics = m
	hub := relay.NewHub(hubCfg)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = hub.Run(ctx)
	}()

	cfg.Hub = hub
	cfg.Logger = discardLogger()
	cfg.Metrics = m
	srv := NewServer(cfg)
	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
		cancel()
		wg.Wait()
	})
	return &testRelay{hub: hub, srv: srv, ts: ts, metrics: m}
}

func (r *testRelay) wsURL() string {
	return "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/"
}

// dial connects and consumes the serverReady greeting.
func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(r.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	msg := readJSON(t, c)
	if msg["type"] != "serverReady" {
		t.Fatalf("first message=%v, want serverReady", msg)
	}
	return c
}

func (r *testRelay) status(t *testing.T) relay.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := r.hub.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return st
}

func send(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write %s: %v", raw, err)
	}
}

func readRaw(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	raw := readRaw(t, c)
	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

// readClose reads until the server closes the connection and returns the
// close error.
func readClose(t *testing.T, c *websocket.Conn) *websocket.CloseError {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("read err=%v, want close error", err)
		}
		return ce
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, h)
}
