package core

import (
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ConnectionID domain.Identity `json:"connectionId"`
	UserID       domain.UserID   `json:"userId"`
	Username     string          `json:"username"`
}

// GroupService is the core-facing API of a broadcast group.
// It owns the membership set but never touches transport resources.
type GroupService interface {
	Group() *domain.Group
	MemberCount() int
	MembersSnapshot() []MemberDTO
	HasMember(sid SessionID) bool

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	// Broadcast delivers data to every member, the sender included.
	Broadcast(from SessionID, data Frame) PublishResult
}

type GroupInfo struct {
	Name        domain.GroupName `json:"name"`
	MemberCount int              `json:"member_count"`
}

type GroupManager interface {
	GetOrCreate(name domain.GroupName) GroupService
	Get(name domain.GroupName) (GroupService, bool)
	List() []GroupInfo
	StopGroup(name domain.GroupName)
}
