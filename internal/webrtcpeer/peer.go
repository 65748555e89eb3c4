package webrtcpeer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannelLabelProbe is opened by the offering side so the offer carries an
// application m-line.
const DataChannelLabelProbe = "rendezvous-probe"

var ErrPeerFailed = errors.New("peer connection failed")

type PeerConfig struct {
	ICEServers []webrtc.ICEServer
	// OnCandidate receives each locally gathered candidate. It is called from
	// pion's goroutines.
	OnCandidate func(webrtc.ICECandidateInit)
}

// Peer wraps a PeerConnection with candidate buffering: candidates that arrive
// before the remote description are applied once it is set.
type Peer struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	connected     chan struct{}
	connectedOnce sync.Once
	failed        chan struct{}
	failedOnce    sync.Once
}

func NewPeer(api *webrtc.API, cfg PeerConfig) (*Peer, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:        pc,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || cfg.OnCandidate == nil {
			return
		}
		cfg.OnCandidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.connectedOnce.Do(func() { close(p.connected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.failedOnce.Do(func() { close(p.failed) })
		}
	})

	return p, nil
}

// CreateOffer opens the probe DataChannel, creates an offer and sets it as the
// local description.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	if _, err := p.pc.CreateDataChannel(DataChannelLabelProbe, nil); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// AcceptOffer applies a remote offer and returns the local answer.
func (p *Peer) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (p *Peer) AcceptAnswer(answer webrtc.SessionDescription) error {
	return p.setRemote(answer)
}

func (p *Peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

// AddCandidate applies a remote candidate, buffering it until the remote
// description is known. An empty candidate is ignored.
func (p *Peer) AddCandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(c)
}

// HasRemoteDescription reports whether an offer or answer has been applied.
func (p *Peer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteSet
}

func (p *Peer) Connected() <-chan struct{} { return p.connected }

func (p *Peer) Failed() <-chan struct{} { return p.failed }

func (p *Peer) State() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
