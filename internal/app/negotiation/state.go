// Package negotiation drives one two-party peer connection over a broadcast
// group channel.
package negotiation

import (
	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

// Session is the negotiation state of one call.
type Session struct {
	LocalID       domain.Identity
	PeerID        domain.Identity
	PeerHasJoined bool
	Role          domain.Role
	State         domain.ConnectionState

	// OfferOutstanding is set while a local offer awaits its answer.
	OfferOutstanding bool
	// Answered is set once a remote offer has been accepted.
	Answered bool
}

type EventKind int

const (
	EventStart EventKind = iota
	EventJoined
	EventSignal
	EventLocalCandidate
	EventTransport
	EventStop
)

type Event struct {
	Kind      EventKind
	LocalID   domain.Identity
	Signal    codec.SignalMessage
	Payload   core.Payload
	Transport core.TransportState
}

type ActionKind int

const (
	ActionBroadcastJoin ActionKind = iota
	ActionCreateOffer
	ActionAcceptOffer
	ActionApplyAnswer
	ActionAddCandidate
	ActionBroadcastCandidate
	ActionRelease
)

func (k ActionKind) String() string {
	switch k {
	case ActionBroadcastJoin:
		return "broadcast_join"
	case ActionCreateOffer:
		return "create_offer"
	case ActionAcceptOffer:
		return "accept_offer"
	case ActionApplyAnswer:
		return "apply_answer"
	case ActionAddCandidate:
		return "add_candidate"
	case ActionBroadcastCandidate:
		return "broadcast_candidate"
	case ActionRelease:
		return "release"
	default:
		return "unknown"
	}
}

type Action struct {
	Kind    ActionKind
	Payload core.Payload
}

// Transition is the negotiation state machine. It has no side effects; the
// returned actions are carried out by the Engine.
func Transition(s Session, ev Event) (Session, []Action) {
	if s.State == domain.StateClosed {
		return s, nil
	}
	switch ev.Kind {
	case EventStart:
		if s.State == domain.StateIdle {
			s.State = domain.StateJoining
		}
	case EventJoined:
		if s.State != domain.StateJoining || ev.LocalID == "" {
			return s, nil
		}
		s.LocalID = ev.LocalID
		s.State = domain.StateAwaitingPeer
		return s, []Action{{Kind: ActionBroadcastJoin}}
	case EventSignal:
		return onSignal(s, ev.Signal)
	case EventLocalCandidate:
		if s.LocalID == "" {
			return s, nil
		}
		return s, []Action{{Kind: ActionBroadcastCandidate, Payload: ev.Payload}}
	case EventTransport:
		switch ev.Transport {
		case core.TransportConnected:
			s.State = domain.StateConnected
		case core.TransportFailed, core.TransportClosed:
			s.State = domain.StateClosed
			return s, []Action{{Kind: ActionRelease}}
		}
	case EventStop:
		s.State = domain.StateClosed
		return s, []Action{{Kind: ActionRelease}}
	}
	return s, nil
}

func onSignal(s Session, msg codec.SignalMessage) (Session, []Action) {
	// Our own broadcasts come back to us.
	if s.LocalID == "" || msg.SenderID == s.LocalID {
		return s, nil
	}
	if msg.Type != codec.SignalJoin && s.PeerID != "" && msg.SenderID != s.PeerID {
		return s, nil
	}

	switch msg.Type {
	case codec.SignalJoin:
		if s.PeerHasJoined {
			return s, nil
		}
		s.PeerHasJoined = true
		s.PeerID = msg.SenderID
		s.Role = domain.ArbitrateRole(s.LocalID, msg.SenderID)
		if s.Role == domain.RoleOfferer {
			s.State = negotiating(s.State)
			s.OfferOutstanding = true
			return s, []Action{{Kind: ActionCreateOffer}}
		}
		// A peer that joined before us never saw our join. Announce again
		// so it can take the offerer role.
		return s, []Action{{Kind: ActionBroadcastJoin}}

	case codec.SignalOffer:
		if s.OfferOutstanding || s.Answered || s.Role == domain.RoleOfferer {
			return s, nil
		}
		s.PeerHasJoined = true
		s.PeerID = msg.SenderID
		s.Role = domain.RoleAnswerer
		s.Answered = true
		s.State = negotiating(s.State)
		return s, []Action{{Kind: ActionAcceptOffer, Payload: msg.SDP}}

	case codec.SignalAnswer:
		if s.Role != domain.RoleOfferer || !s.OfferOutstanding {
			return s, nil
		}
		s.OfferOutstanding = false
		return s, []Action{{Kind: ActionApplyAnswer, Payload: msg.SDP}}

	case codec.SignalICE:
		return s, []Action{{Kind: ActionAddCandidate, Payload: msg.Candidate}}
	}
	return s, nil
}

func negotiating(st domain.ConnectionState) domain.ConnectionState {
	if st == domain.StateJoining || st == domain.StateAwaitingPeer {
		return domain.StateNegotiating
	}
	return st
}
