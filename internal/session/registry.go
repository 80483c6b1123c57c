package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/pricedash/pricedash/internal/apiclient"
)

// Registry keeps the render-scoped State of every browser session, keyed by
// an opaque id carried in a session cookie. States idle for longer than the
// TTL are evicted.
type Registry struct {
	mu      sync.Mutex
	states  map[string]*State
	ttl     time.Duration
	listTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry. Each State gets a list cache with
// entries living listTTL.
func NewRegistry(ttl, listTTL time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		states:  make(map[string]*State),
		ttl:     ttl,
		listTTL: listTTL,
		now:     time.Now,
		logger:  logger.With().Str("component", "session_registry").Logger(),
	}
}

// Acquire returns the State for id, creating one under a fresh id when id is
// empty or unknown. created reports whether a new State was made.
func (r *Registry) Acquire(id string) (st *State, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if st, ok := r.states[id]; ok && id != "" {
		st.lastSeen = now
		return st, false
	}

	st = NewState(ulid.Make().String())
	st.lists = apiclient.NewListCache(r.listTTL)
	st.lastSeen = now
	r.states[st.ID] = st
	r.logger.Debug().Str("session_id", st.ID).Msg("Session state created")
	return st, true
}

// Len returns the number of live states
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Sweep evicts idle states and returns how many were removed
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, st := range r.states {
		if st.lastSeen.Before(cutoff) {
			delete(r.states, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug().Int("removed", removed).Int("remaining", len(r.states)).Msg("Evicted idle session states")
	}
	return removed
}
