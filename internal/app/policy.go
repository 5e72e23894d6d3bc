package app

import "github.com/dkeye/VoiceCaptions/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(group core.GroupService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks any member whose send queue is full.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(group core.GroupService, member core.MemberSession) BackpressureAction {
	return KickMember
}
