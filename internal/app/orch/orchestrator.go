package orch

import (
	"errors"

	"github.com/dkeye/VoiceCaptions/internal/app"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInGroup   = errors.New("not in group")
	ErrUnknownConn  = errors.New("unknown connection")
	ErrInvalidGroup = errors.New("invalid group name")
)

const MaxGroupNameLen = 128

type Orchestrator struct {
	Registry *app.Registry
	Groups   core.GroupManager
	Policy   app.Policy
}

func New(reg *app.Registry, groups core.GroupManager, policy app.Policy) *Orchestrator {
	return &Orchestrator{Registry: reg, Groups: groups, Policy: policy}
}

// SendToGroup fans frame out to every member of g, the sender included.
func (o *Orchestrator) SendToGroup(sid core.SessionID, g domain.GroupName, frame core.Frame) (core.PublishResult, error) {
	if !o.Registry.InGroup(sid, g) {
		return core.PublishResult{}, ErrNotInGroup
	}
	group, ok := o.Groups.Get(g)
	if !ok {
		return core.PublishResult{}, ErrNotInGroup
	}

	res := group.Broadcast(sid, frame)
	if o.Policy == nil {
		return res, nil
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(group, slow) {
		case app.KickMember:
			if slowSID, ok := o.Registry.SIDOf(slow); ok {
				log.Warn().Str("module", "orch").Str("sid", string(slowSID)).Str("group", string(g)).Msg("kick slow member")
				o.KickBySID(slowSID)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res, nil
}
