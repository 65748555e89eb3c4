package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType is the `messageType` tag of an inbound signaling message.
type MessageType string

const (
	MessageTypeInit         MessageType = "init"
	MessageTypeClose        MessageType = "close"
	MessageTypePong         MessageType = "pong"
	MessageTypeClear        MessageType = "clear"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"
	MessageTypePoll         MessageType = "poll"
)

// Outbound messages use the `type` key, not `messageType`.
const (
	outboundTypePing        = "ping"
	outboundTypeServerReady = "serverReady"

	serverReadyText = "Connected to signaling server"
)

// Message is an inbound signaling message. Raw holds the bytes exactly as
// received so stored messages are forwarded verbatim on poll.
type Message struct {
	Type   MessageType
	Origin Role
	Raw    []byte
}

// ParseMessage decodes the envelope of an inbound message. Unknown message
// types and unknown origins are not errors; the dispatcher ignores them.
func ParseMessage(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return Message{}, fmt.Errorf("%w: expected JSON object", ErrMalformedMessage)
	}

	msgType, err := optionalString(fields, "messageType")
	if err != nil {
		return Message{}, err
	}
	origin, err := optionalString(fields, "origin")
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:   MessageType(msgType),
		Origin: Role(origin),
		Raw:    bytes.Clone(data),
	}, nil
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedMessage, key)
	}
	return s, nil
}

type outboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// PingMessage is the application keepalive probe.
func PingMessage() []byte {
	return mustMarshal(outboundMessage{Type: outboundTypePing})
}

// ServerReadyMessage is sent to every channel as soon as it connects.
func ServerReadyMessage() []byte {
	return mustMarshal(outboundMessage{Type: outboundTypeServerReady, Message: serverReadyText})
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
