package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/probe"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/webrtcpeer"
)

func newHandshakeCmd(opts *rootOptions) *cobra.Command {
	var (
		ice            webrtcpeer.ICEServerOptions
		pollInterval   time.Duration
		webrtcLogLevel string
	)

	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Establish a WebRTC peer connection through the relay",
		Long: `Play --role in a full offer/answer exchange. Run one instance as camera and
another as computer against the same relay; each exits once its peer
connection reaches the connected state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			iceServers, err := ice.Servers()
			if err != nil {
				return err
			}
			api, err := webrtcpeer.NewAPI(webrtcpeer.APIOptions{
				LogLevel:  webrtcpeer.ParseLogLevel(webrtcLogLevel),
				LogWriter: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			client, ctx, cancel, log, err := opts.dial(cmd, true)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			peer, err := webrtcpeer.NewPeer(api, webrtcpeer.PeerConfig{
				ICEServers: iceServers,
				OnCandidate: func(c webrtc.ICECandidateInit) {
					if err := client.SendCandidate(c); err != nil {
						log.Warn("failed to relay local candidate", "err", err)
					}
				},
			})
			if err != nil {
				return err
			}
			defer peer.Close()

			res, err := probe.Handshake{
				Client:       client,
				Peer:         peer,
				PollInterval: pollInterval,
				Logger:       log,
			}.Run(ctx)
			if err != nil {
				return fmt.Errorf("handshake as %s: %w", client.Role(), err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderHandshake(res))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&ice.STUNURLs, "stun-url", nil, "STUN server URL (repeatable or comma-separated)")
	f.StringSliceVar(&ice.TURNURLs, "turn-url", nil, "TURN server URL (repeatable or comma-separated)")
	f.StringVar(&ice.TURNUsername, "turn-username", "", "TURN username")
	f.StringVar(&ice.TURNCredential, "turn-credential", "", "TURN credential")
	f.DurationVar(&pollInterval, "poll-interval", probe.DefaultPollInterval, "how often to poll the relay")
	f.StringVar(&webrtcLogLevel, "webrtc-log-level", "error", "pion log level (disabled|error|warn|info|debug|trace)")
	return cmd
}

func renderHandshake(res probe.HandshakeResult) string {
	return renderTable([]string{"Metric", "Value"}, [][]string{
		{"Role", string(res.Role)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
		{"Polls", strconv.Itoa(res.Polls)},
		{"Duplicates", strconv.Itoa(res.Duplicates)},
		{"Remote candidates", strconv.Itoa(res.Candidates)},
	})
}
