package app

import (
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

type GroupManagerImpl struct {
	mu     sync.RWMutex
	groups map[domain.GroupName]core.GroupService
}

func NewGroupManager() core.GroupManager {
	return &GroupManagerImpl{groups: make(map[domain.GroupName]core.GroupService)}
}

func (f *GroupManagerImpl) GetOrCreate(name domain.GroupName) core.GroupService {
	f.mu.RLock()
	g, ok := f.groups[name]
	f.mu.RUnlock()
	if ok {
		return g
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok = f.groups[name]; ok {
		return g
	}
	g = core.NewGroupService(&domain.Group{Name: name})
	f.groups[name] = g
	return g
}

func (f *GroupManagerImpl) Get(name domain.GroupName) (core.GroupService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.groups[name]
	return g, ok
}

func (f *GroupManagerImpl) List() []core.GroupInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.GroupInfo, 0, len(f.groups))
	for name, g := range f.groups {
		out = append(out, core.GroupInfo{Name: name, MemberCount: g.MemberCount()})
	}
	return out
}

func (f *GroupManagerImpl) StopGroup(name domain.GroupName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, name)
}
