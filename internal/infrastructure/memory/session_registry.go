package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SessionRegistry is the in-process TTL registry of live chat sessions,
// used when no Redis is configured.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]map[string]time.Time
	now      func() time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]map[string]time.Time),
		now:      time.Now,
	}
}

func (r *SessionRegistry) Touch(ctx context.Context, recipientID, sessionID string, ttl time.Duration) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.sessions[recipientID]
	if !ok {
		byID = make(map[string]time.Time)
		r.sessions[recipientID] = byID
	}
	byID[sessionID] = r.now().Add(ttl)
	return nil
}

// Active returns unexpired sessions and drops the expired ones.
func (r *SessionRegistry) Active(ctx context.Context, recipientID string) ([]string, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	byID := r.sessions[recipientID]
	out := make([]string, 0, len(byID))
	for id, exp := range byID {
		if !now.Before(exp) {
			delete(byID, id)
			continue
		}
		out = append(out, id)
	}
	if len(byID) == 0 {
		delete(r.sessions, recipientID)
	}
	sort.Strings(out)
	return out, nil
}
