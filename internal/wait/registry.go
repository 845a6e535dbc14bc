package wait

import (
	"sort"
	"sync"

	"github.com/opcoord/opcoord/internal/core"
)

// registry holds the open wait sessions. All methods are short critical
// sections; no external calls happen while the lock is held.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byKey    map[string][]*Session
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[string]*Session),
		byKey:    make(map[string][]*Session),
	}
}

func (r *registry) add(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	r.byKey[session.CorrelationKey] = append(r.byKey[session.CorrelationKey], session)
}

func (r *registry) byID(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// matchOldest returns the oldest open session for a correlation key. An
// inbound event resolves exactly one session, not all of them.
func (r *registry) matchOldest(correlationKey string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	open := r.byKey[correlationKey]
	if len(open) == 0 {
		return nil, false
	}
	oldest := open[0]
	for _, s := range open[1:] {
		if s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	return oldest, true
}

// resolve atomically transitions the session out of waiting and removes it
// from the open set. Reports false if the session had already resolved.
func (r *registry) resolve(session *Session, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !core.IsValidTransition(session.status, status) {
		return false
	}
	session.status = status

	delete(r.sessions, session.ID)
	open := r.byKey[session.CorrelationKey]
	for i, s := range open {
		if s.ID == session.ID {
			r.byKey[session.CorrelationKey] = append(open[:i], open[i+1:]...)
			break
		}
	}
	if len(r.byKey[session.CorrelationKey]) == 0 {
		delete(r.byKey, session.CorrelationKey)
	}
	return true
}

func (r *registry) list() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
