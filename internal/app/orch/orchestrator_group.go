package orch

import (
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog/log"
)

func ValidGroupName(g domain.GroupName) bool {
	return g != "" && len(g) <= MaxGroupNameLen
}

// JoinGroup adds sid to g. Joining a group twice is a no-op.
func (o *Orchestrator) JoinGroup(sid core.SessionID, g domain.GroupName) error {
	if !ValidGroupName(g) {
		return ErrInvalidGroup
	}
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownConn
	}
	if o.Registry.InGroup(sid, g) {
		return nil
	}
	group := o.Groups.GetOrCreate(g)
	group.AddMember(sid, session)
	o.Registry.AddGroup(sid, g)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("group", string(g)).Msg("joined group")
	return nil
}

// LeaveGroup removes sid from g. Leaving a group sid is not in is a no-op.
func (o *Orchestrator) LeaveGroup(sid core.SessionID, g domain.GroupName) error {
	if !ValidGroupName(g) {
		return ErrInvalidGroup
	}
	if !o.Registry.RemoveGroup(sid, g) {
		return nil
	}
	o.removeMember(sid, g)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("group", string(g)).Msg("left group")
	return nil
}

func (o *Orchestrator) removeMember(sid core.SessionID, g domain.GroupName) {
	group, ok := o.Groups.Get(g)
	if !ok {
		return
	}
	group.RemoveMember(sid)
}

// Disconnect drops sid from every group and forgets it.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	for _, g := range o.Registry.Unbind(sid) {
		o.removeMember(sid, g)
	}
}

// KickBySID cancels the connection; its read loop runs Disconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	if !o.Registry.Cancel(sid) {
		o.Disconnect(sid)
	}
}

func (o *Orchestrator) EvictGroup(g domain.GroupName) {
	group, ok := o.Groups.Get(g)
	if !ok {
		return
	}
	for _, m := range group.MembersSnapshot() {
		sid := core.SessionID(m.ConnectionID)
		if o.Registry.RemoveGroup(sid, g) {
			group.RemoveMember(sid)
		}
	}
	o.Groups.StopGroup(g)
}
