package apiclient

import (
	"strings"
	"sync"
)

// TokenState is the session context shared by the API client and the session
// manager: the in-memory bearer token plus the reauth flag raised when the
// backend rejects that token. It is never persisted.
type TokenState struct {
	mu     sync.Mutex
	token  string
	reauth bool
}

// NewTokenState returns a TokenState seeded with an optional initial token.
func NewTokenState(initial string) *TokenState {
	return &TokenState{token: strings.TrimSpace(initial)}
}

// SetToken replaces the bearer token. An empty value clears it.
func (s *TokenState) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Token returns the current bearer token, or "" when none is known.
func (s *TokenState) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Reject clears the token and raises the reauth flag.
func (s *TokenState) Reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.reauth = true
}

// ConsumeReauth clears the reauth flag and reports whether it was set.
func (s *TokenState) ConsumeReauth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raised := s.reauth
	s.reauth = false
	return raised
}
