package core

import (
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog/log"
)

// groupImpl is a threadsafe in-memory broadcast group.
// It never closes adapter-owned resources.
type groupImpl struct {
	group *domain.Group
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
}

func NewGroupService(group *domain.Group) GroupService {
	return &groupImpl{
		group: group,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (g *groupImpl) Group() *domain.Group { return g.group }

func (g *groupImpl) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.bySID)
}

func (g *groupImpl) HasMember(sid SessionID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.bySID[sid]
	return ok
}

func (g *groupImpl) AddMember(sid SessionID, ms MemberSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bySID[sid] = ms
	log.Info().Str("module", "core.group").Str("group", string(g.group.Name)).Str("sid", string(sid)).Msg("member added")
}

func (g *groupImpl) RemoveMember(sid SessionID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bySID[sid]; !ok {
		return
	}
	delete(g.bySID, sid)
	log.Info().Str("module", "core.group").Str("group", string(g.group.Name)).Str("sid", string(sid)).Msg("member removed")
}

func (g *groupImpl) Broadcast(from SessionID, data Frame) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for _, m := range g.bySID {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.group").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (g *groupImpl) MembersSnapshot() []MemberDTO {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MemberDTO, 0, len(g.bySID))
	for _, ms := range g.bySID {
		meta := ms.Meta()
		dto := MemberDTO{ConnectionID: meta.ConnectionID}
		if meta.User != nil {
			dto.UserID = meta.User.ID
			dto.Username = meta.User.Username
		}
		out = append(out, dto)
	}
	return out
}
