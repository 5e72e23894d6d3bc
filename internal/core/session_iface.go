package core

import "github.com/dkeye/VoiceCaptions/internal/domain"

type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a group stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
