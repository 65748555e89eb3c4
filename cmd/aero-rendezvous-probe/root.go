package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/probe"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

const defaultRelayURL = "ws://localhost:8080/"

type rootOptions struct {
	url      string
	role     string
	timeout  time.Duration
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "aero-rendezvous-probe",
		Short: "Talk to a WebRTC rendezvous relay as a camera or computer",
		Long: `aero-rendezvous-probe connects to a rendezvous relay over WebSocket and
speaks its signaling protocol.

Examples:
  aero-rendezvous-probe status --url ws://localhost:8080/
  aero-rendezvous-probe send --role camera --type init
  aero-rendezvous-probe poll --role computer
  aero-rendezvous-probe handshake --role camera`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.url, "url", defaultRelayURL, "relay WebSocket URL")
	pf.StringVar(&opts.role, "role", string(relay.RoleCamera), "role to claim (camera|computer)")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall deadline for the command")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newSendCmd(opts),
		newPollCmd(opts),
		newStatusCmd(opts),
		newHandshakeCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", o.logLevel)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func (o *rootOptions) parseRole() (relay.Role, error) {
	role := relay.Role(strings.ToLower(strings.TrimSpace(o.role)))
	if !role.Valid() {
		return "", fmt.Errorf("invalid --role %q (expected camera or computer)", o.role)
	}
	return role, nil
}

// dial connects with the command's deadline and returns the context the rest
// of the command should run under.
func (o *rootOptions) dial(cmd *cobra.Command, autoPong bool) (*probe.Client, context.Context, context.CancelFunc, *slog.Logger, error) {
	log, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	role, err := o.parseRole()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	client, err := probe.Dial(ctx, o.url, role, probe.Options{Logger: log, AutoPong: autoPong})
	if err != nil {
		cancel()
		return nil, nil, nil, nil, err
	}
	log.Debug("connected to relay", "url", o.url, "role", role)
	return client, ctx, cancel, log, nil
}

// statusURL maps the relay WebSocket URL onto its HTTP /status endpoint.
func statusURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid --url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid --url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid --url %q: missing host", raw)
	}
	u.Path = "/status"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
