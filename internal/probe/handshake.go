package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/webrtcpeer"
)

const DefaultPollInterval = 500 * time.Millisecond

var ErrHandshakeTimeout = errors.New("probe: peer connection not established in time")

// Peer is the slice of *webrtcpeer.Peer the handshake drives.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(answer webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
	HasRemoteDescription() bool
	Connected() <-chan struct{}
	Failed() <-chan struct{}
}

type HandshakeResult struct {
	Role       relay.Role
	Duration   time.Duration
	Polls      int
	Duplicates int
	Candidates int
}

type Handshake struct {
	Client *Client
	Peer   Peer
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Run binds the role, exchanges descriptions and candidates through the relay
// and returns once the peer connection is up. The camera clears stale queue
// contents and offers; the computer answers.
//
// Polls return the full opposite queue each time, so messages are
// de-duplicated by content.
func (h Handshake) Run(ctx context.Context) (HandshakeResult, error) {
	c := h.Client
	log := h.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := h.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	res := HandshakeResult{Role: c.Role()}
	start := time.Now()

	if err := c.Init(); err != nil {
		return res, err
	}
	if c.Role() == relay.RoleCamera {
		if err := c.Clear(); err != nil {
			return res, err
		}
		offer, err := h.Peer.CreateOffer()
		if err != nil {
			return res, fmt.Errorf("create offer: %w", err)
		}
		if err := c.SendDescription(offer); err != nil {
			return res, err
		}
		log.Info("offer sent", "sdp_bytes", len(offer.SDP))
	}

	seen := map[string]struct{}{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ErrHandshakeTimeout
		case <-h.Peer.Connected():
			res.Duration = time.Since(start)
			return res, nil
		case <-h.Peer.Failed():
			return res, webrtcpeer.ErrPeerFailed
		case <-c.Done():
			if err := c.Err(); err != nil {
				return res, err
			}
			return res, ErrClosed
		case <-ticker.C:
			if err := c.Poll(); err != nil {
				return res, err
			}
			res.Polls++
		case msg, ok := <-c.Messages():
			if !ok {
				<-c.Done()
				if err := c.Err(); err != nil {
					return res, err
				}
				return res, ErrClosed
			}
			key := string(msg.Raw)
			if _, dup := seen[key]; dup {
				res.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			if err := h.apply(msg, &res, log); err != nil {
				return res, err
			}
		}
	}
}

func (h Handshake) apply(msg Inbound, res *HandshakeResult, log *slog.Logger) error {
	c := h.Client
	switch relay.MessageType(msg.MessageType) {
	case relay.MessageTypeOffer:
		if c.Role() != relay.RoleComputer || h.Peer.HasRemoteDescription() {
			return nil
		}
		sdp, err := relay.SDPBody(msg.SDP)
		if err != nil {
			return err
		}
		answer, err := h.Peer.AcceptOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
		if err != nil {
			return fmt.Errorf("accept offer: %w", err)
		}
		log.Info("offer accepted; answer sent", "sdp_bytes", len(answer.SDP))
		return c.SendDescription(answer)
	case relay.MessageTypeAnswer:
		if c.Role() != relay.RoleCamera || h.Peer.HasRemoteDescription() {
			return nil
		}
		sdp, err := relay.SDPBody(msg.SDP)
		if err != nil {
			return err
		}
		log.Info("answer received", "sdp_bytes", len(sdp))
		return h.Peer.AcceptAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	case relay.MessageTypeICECandidate:
		init, err := relay.CandidateInit(msg.Candidate)
		if err != nil {
			return err
		}
		res.Candidates++
		return h.Peer.AddCandidate(init)
	default:
		return nil
	}
}
