package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// Validator checks the payload of signaling messages before they are stored.
type Validator interface {
	Validate(msg Message) error
}

// PayloadValidator parses SDP bodies and ICE candidates with pion. Messages
// that carry no signaling payload always pass.
type PayloadValidator struct{}

func (PayloadValidator) Validate(msg Message) error {
	switch msg.Type {
	case MessageTypeOffer, MessageTypeAnswer:
		return validateSDP(msg)
	case MessageTypeICECandidate:
		return validateCandidate(msg)
	default:
		return nil
	}
}

type signalingPayload struct {
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

func decodePayload(msg Message) (signalingPayload, error) {
	var p signalingPayload
	if err := json.Unmarshal(msg.Raw, &p); err != nil {
		return signalingPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

func validateSDP(msg Message) error {
	p, err := decodePayload(msg)
	if err != nil {
		return err
	}
	body, err := SDPBody(p.SDP)
	if err != nil {
		return err
	}

	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(string(msg.Type)), SDP: body}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: %s sdp: %v", ErrInvalidPayload, msg.Type, err)
	}
	return nil
}

func validateCandidate(msg Message) error {
	p, err := decodePayload(msg)
	if err != nil {
		return err
	}
	init, err := CandidateInit(p.Candidate)
	if err != nil {
		return err
	}
	// An empty candidate signals end-of-candidates.
	if init.Candidate == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrInvalidPayload, err)
	}
	return nil
}

// SDPBody accepts either a bare SDP string or an RTCSessionDescription-shaped
// object and returns the SDP text.
func SDPBody(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing sdp", ErrInvalidPayload)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("%w: empty sdp", ErrInvalidPayload)
		}
		return s, nil
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil || desc.SDP == "" {
		return "", fmt.Errorf("%w: sdp must be a string or session description", ErrInvalidPayload)
	}
	return desc.SDP, nil
}

// CandidateInit accepts either a bare candidate string or an
// RTCIceCandidateInit-shaped object.
func CandidateInit(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	if len(raw) == 0 {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: missing candidate", ErrInvalidPayload)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return webrtc.ICECandidateInit{Candidate: s}, nil
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: candidate must be a string or candidate init", ErrInvalidPayload)
	}
	return init, nil
}
