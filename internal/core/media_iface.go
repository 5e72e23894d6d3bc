package core

import (
	"context"
	"encoding/json"

	"github.com/pion/rtp"
)

// Payload is an opaque negotiation value (session description or ICE
// candidate). The core forwards it verbatim and never looks inside.
type Payload = json.RawMessage

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// DataChannel is an ordered, bidirectional message channel layered on an
// established PeerConnection.
type DataChannel interface {
	Label() string
	IsOpen() bool
	SendText(text string) error
	OnMessage(func(data []byte))
	Close() error
}

type RemoteTrack interface {
	ID() string
	Kind() MediaKind
	ReadRTP() (*rtp.Packet, error)
}

type LocalTrack interface {
	ID() string
	Kind() MediaKind
	WriteRTP(*rtp.Packet) error
}

// PeerConnection is the media/ICE capability the negotiation engine drives.
type PeerConnection interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer(ctx context.Context) (Payload, error)
	// AcceptOffer applies a remote offer, then creates and applies the answer.
	AcceptOffer(ctx context.Context, offer Payload) (Payload, error)
	ApplyAnswer(ctx context.Context, answer Payload) error
	AddICECandidate(candidate Payload) error

	OnICECandidate(func(candidate Payload))
	OnStateChange(func(TransportState))
	OnTrack(func(track RemoteTrack))
	OnDataChannel(func(dc DataChannel))

	CreateDataChannel(label string) (DataChannel, error)
	AddLocalTrack(kind MediaKind, streamID string) (LocalTrack, error)
	Close() error
}

type PeerConnectionFactory func(ctx context.Context) (PeerConnection, error)

// MediaSource is the local capture side of a call.
type MediaSource interface {
	// Attach adds the local tracks to pc and starts feeding them.
	Attach(ctx context.Context, pc PeerConnection) error
	// AudioTap yields local audio payloads for recognition.
	AudioTap() <-chan []byte
	Close() error
}
