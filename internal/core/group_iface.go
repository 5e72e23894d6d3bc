package core

import (
	"context"

	"github.com/dkeye/VoiceCaptions/internal/domain"
)

// GroupMessage is one payload received from a broadcast group. From is the
// channel's own notion of the sender and may be empty when the transport
// does not expose it.
type GroupMessage struct {
	Group domain.GroupName
	From  domain.Identity
	Data  []byte
}

// GroupChannel is a publish/subscribe group where every member, the sender
// included, receives every broadcast.
type GroupChannel interface {
	// Connect establishes the transport and assigns Identity.
	Connect(ctx context.Context) error
	Identity() domain.Identity
	Join(ctx context.Context, group domain.GroupName) error
	Leave(ctx context.Context, group domain.GroupName) error
	Broadcast(ctx context.Context, group domain.GroupName, text []byte) error
	// Messages is closed once the channel is closed.
	Messages() <-chan GroupMessage
	Close() error
}
