package domain

// Identity is the member identity assigned by the group channel when it
// connects. It is empty until then.
type Identity string

type Role int

const (
	RoleUndetermined Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "undetermined"
	}
}

// ArbitrateRole decides which side of a two-party call creates the offer.
// The side whose identity compares greater becomes the offerer. Both sides
// evaluate the same pair of identities, so exactly one of them initiates.
func ArbitrateRole(local, remote Identity) Role {
	if local > remote {
		return RoleOfferer
	}
	return RoleAnswerer
}

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateJoining
	StateAwaitingPeer
	StateNegotiating
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
