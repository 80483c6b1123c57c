package session

import (
	"sync"
	"time"

	"github.com/pricedash/pricedash/internal/apiclient"
)

// Phase is where a browser session stands in the authentication flow
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAwaitingCredentials
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingCredentials:
		return "awaiting_credentials"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Event is a discrete input that moves a session between phases
type Event int

const (
	PageLoad Event = iota
	CredentialsSubmitted
	ServerRejected
	LogoutClicked
)

func (e Event) String() string {
	switch e {
	case CredentialsSubmitted:
		return "credentials_submitted"
	case ServerRejected:
		return "server_rejected"
	case LogoutClicked:
		return "logout_clicked"
	default:
		return "page_load"
	}
}

// transition returns the phase reached from p on e. hasToken reports whether
// a render-scoped token exists once the event has been handled.
func transition(p Phase, e Event, hasToken bool) Phase {
	switch e {
	case ServerRejected, LogoutClicked:
		return PhaseUnauthenticated
	case PageLoad, CredentialsSubmitted:
		if hasToken {
			return PhaseAuthenticated
		}
		return PhaseAwaitingCredentials
	}
	return p
}

// State is the render-scoped memory of one browser session. It outlives a
// single render but not the process. Renders of the same session are
// serialized with Lock/Unlock; fields must only be touched while holding it.
type State struct {
	ID string

	mu     sync.Mutex
	tokens *apiclient.TokenState
	lists  *apiclient.ListCache

	token            string
	remember         *bool
	restoreAttempted bool
	legacyCleaned    bool
	notice           string
	phase            Phase
	visits           int

	lastSeen time.Time
}

// NewState returns an empty state with its own session context
func NewState(id string) *State {
	return &State{
		ID:       id,
		tokens:   apiclient.NewTokenState(""),
		lastSeen: time.Now(),
	}
}

// Lock starts a render
func (s *State) Lock() { s.mu.Lock() }

// Unlock ends a render
func (s *State) Unlock() { s.mu.Unlock() }

// Tokens returns the session context shared with this session's API client
func (s *State) Tokens() *apiclient.TokenState {
	return s.tokens
}

// Lists returns the list cache of this session. It is nil outside a Registry
// and a nil cache always fetches.
func (s *State) Lists() *apiclient.ListCache {
	return s.lists
}

// Token returns the render-scoped token
func (s *State) Token() string {
	return s.token
}

// Phase returns the last phase the session reached
func (s *State) Phase() Phase {
	return s.phase
}

// Remember reports the remember preference; unset counts as true.
func (s *State) Remember() bool {
	return s.remember == nil || *s.remember
}

// Visit bumps and returns the page-visit counter
func (s *State) Visit() int {
	s.visits++
	return s.visits
}

// Visits returns the page-visit counter
func (s *State) Visits() int {
	return s.visits
}

func (s *State) setToken(token string) {
	if token != s.token {
		s.lists.Clear()
	}
	s.token = token
	if token == "" {
		s.restoreAttempted = false
	}
}

func (s *State) setRemember(v bool) {
	s.remember = &v
}

func (s *State) takeNotice() string {
	n := s.notice
	s.notice = ""
	return n
}
