package app

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Groups  map[domain.GroupName]struct{}
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks live hub connections and the groups each one joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[domain.UserID]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[domain.UserID]*domain.User),
	}
}

// GetOrCreateUser returns the user for uid. A non-empty name replaces the
// stored username.
func (r *Registry) GetOrCreateUser(uid domain.UserID, name string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[uid]; ok {
		if name != "" {
			u.Username = name
		}
		return u
	}
	if name == "" {
		name = domain.DefaultUsername
	}
	u := &domain.User{ID: uid, Username: name}
	r.users[uid] = u
	log.Info().Str("module", "app.registry").Str("uid", string(uid)).Msg("created new user")
	return u
}

func (r *Registry) Bind(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Groups:  make(map[domain.GroupName]struct{}),
		Session: sess,
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind forgets sid and returns the groups it was still in.
func (r *Registry) Unbind(sid core.SessionID) []domain.GroupName {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	delete(r.sessions, sid)
	out := make([]domain.GroupName, 0, len(e.Groups))
	for g := range e.Groups {
		out = append(out, g)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return out
}

func (r *Registry) AddGroup(sid core.SessionID, g domain.GroupName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Groups[g] = struct{}{}
	return true
}

func (r *Registry) RemoveGroup(sid core.SessionID, g domain.GroupName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, in := e.Groups[g]; !in {
		return false
	}
	delete(e.Groups, g)
	return true
}

func (r *Registry) InGroup(sid core.SessionID, g domain.GroupName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	_, in := e.Groups[g]
	return in
}

// SIDOf finds the connection that owns sess.
func (r *Registry) SIDOf(sess core.MemberSession) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, e := range r.sessions {
		if e.Session == sess {
			return sid, true
		}
	}
	return "", false
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
