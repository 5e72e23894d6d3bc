// Package codec maps signaling and caption messages to and from their JSON
// wire form.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/VoiceCaptions/internal/domain"
)

type SignalType string

const (
	SignalJoin   SignalType = "join"
	SignalOffer  SignalType = "offer"
	SignalAnswer SignalType = "answer"
	SignalICE    SignalType = "ice"
)

var ErrMalformedSignal = errors.New("malformed signal")

// SignalMessage is one negotiation message carried over the group channel.
// SDP and Candidate are forwarded verbatim to the peer connection.
type SignalMessage struct {
	Type      SignalType      `json:"type"`
	SenderID  domain.Identity `json:"senderId"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func Join(sender domain.Identity) SignalMessage {
	return SignalMessage{Type: SignalJoin, SenderID: sender}
}

func Offer(sender domain.Identity, sdp json.RawMessage) SignalMessage {
	return SignalMessage{Type: SignalOffer, SenderID: sender, SDP: sdp}
}

func Answer(sender domain.Identity, sdp json.RawMessage) SignalMessage {
	return SignalMessage{Type: SignalAnswer, SenderID: sender, SDP: sdp}
}

func ICE(sender domain.Identity, candidate json.RawMessage) SignalMessage {
	return SignalMessage{Type: SignalICE, SenderID: sender, Candidate: candidate}
}

func EncodeSignal(msg SignalMessage) ([]byte, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func DecodeSignal(data []byte) (SignalMessage, error) {
	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SignalMessage{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if err := msg.validate(); err != nil {
		return SignalMessage{}, err
	}
	return msg, nil
}

func (m SignalMessage) validate() error {
	if m.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", ErrMalformedSignal)
	}
	switch m.Type {
	case SignalJoin:
	case SignalOffer, SignalAnswer:
		if isEmptyRaw(m.SDP) {
			return fmt.Errorf("%w: %s without sdp", ErrMalformedSignal, m.Type)
		}
	case SignalICE:
		if isEmptyRaw(m.Candidate) {
			return fmt.Errorf("%w: ice without candidate", ErrMalformedSignal)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedSignal, m.Type)
	}
	return nil
}

func isEmptyRaw(r json.RawMessage) bool {
	return len(r) == 0 || string(r) == "null"
}
