// Package session decides, once per render, which bearer token is
// authoritative for a browser session. It reconciles the render-scoped
// State, the durable cookie and the API client's token, and halts the render
// with a login prompt when no token can be established.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/cookie"
)

const (
	// LegacyCookieName was used by earlier releases and is removed on first sight.
	LegacyCookieName = "app_jwt"

	msgMissingFields = "Email and password are required."
	msgSignedOut     = "Signed out. You can close the tab or sign in again below."
	msgSessionEnded  = "Your session has expired. Please sign in again."
)

// ErrHalted is matched by every HaltError
var ErrHalted = errors.New("render halted")

// CookieStore is the best-effort durable store for one render.
// *cookie.Store satisfies it.
type CookieStore interface {
	Get(name string) (string, bool)
	Set(name, value string, opts cookie.Options)
	Remove(name, path string)
}

// Credentials is a submitted login form
type Credentials struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
	Remember bool
}

// Interaction is what the user did to trigger this render
type Interaction struct {
	Credentials *Credentials
	Logout      bool
}

// Render is the input of one render cycle
type Render struct {
	State       *State
	Cookies     CookieStore
	Interaction Interaction
}

// Options tune EnsureAuthenticated
type Options struct {
	ShowControls bool
	Debug        bool
}

// Prompt is the login form to show in place of the page
type Prompt struct {
	Error           string
	Notice          string
	Email           string
	RememberDefault bool
}

// HaltError stops the current render. With Rerun set the caller should start
// a fresh render instead of showing Prompt.
type HaltError struct {
	Prompt *Prompt
	Rerun  bool
}

func (e *HaltError) Error() string {
	if e.Rerun {
		return "render halted: rerun requested"
	}
	return "render halted: login required"
}

func (e *HaltError) Is(target error) bool {
	return target == ErrHalted
}

// AsHalt extracts the HaltError from err
func AsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

// Authenticated is the result of a render that may proceed
type Authenticated struct {
	Token      string
	ShowLogout bool
	Debug      *DebugInfo
}

// DebugInfo exposes the token sources for troubleshooting
type DebugInfo struct {
	CookieToken  string
	SessionToken string
	Remember     string
	Phase        string
	Subject      string
	ExpiresAt    *time.Time
	ClaimsError  string
}

// Manager runs the authentication flow for every render
type Manager struct {
	client      *apiclient.Client
	cookie      config.CookieConfig
	legacyNames []string
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewManager creates a Manager. client is the base API client; each render
// binds it to the State's own session context.
func NewManager(client *apiclient.Client, cfg config.CookieConfig, logger zerolog.Logger) *Manager {
	if cfg.Name == "" {
		cfg.Name = config.DefaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultCookiePath
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = config.DefaultCookieMaxAge
	}

	return &Manager{
		client:      client,
		cookie:      cfg,
		legacyNames: []string{LegacyCookieName},
		validate:    validator.New(),
		logger:      logger.With().Str("component", "session").Logger(),
	}
}

// CookieName returns the durable cookie name
func (m *Manager) CookieName() string {
	return m.cookie.Name
}

// Client returns the API client bound to st's session context
func (m *Manager) Client(st *State) *apiclient.Client {
	return m.client.ForSession(st.Tokens())
}

// EnsureAuthenticated returns the authoritative token for this render, or a
// *HaltError when the render must not continue. The caller must hold the
// State's lock.
func (m *Manager) EnsureAuthenticated(ctx context.Context, r *Render, opts Options) (*Authenticated, error) {
	st := r.State
	m.cleanupLegacy(r)

	skipRestore := false
	if st.tokens.ConsumeReauth() {
		m.logger.Info().Str("session_id", st.ID).Msg("Backend rejected token, forcing sign-in")
		m.clear(r)
		st.notice = msgSessionEnded
		m.fire(st, ServerRejected)
		skipRestore = true
	}

	if !skipRestore {
		m.Restore(r)
	}

	if st.token == "" {
		if err := m.gate(ctx, r); err != nil {
			return nil, err
		}
	} else {
		m.fire(st, PageLoad)
	}

	m.syncCookie(r)
	m.syncClient(st)

	if opts.ShowControls && r.Interaction.Logout {
		m.Logout(r)
		return nil, &HaltError{Rerun: true}
	}

	auth := &Authenticated{Token: st.token, ShowLogout: opts.ShowControls}
	if opts.Debug {
		auth.Debug = m.debugInfo(r)
	}
	return auth, nil
}

// Restore adopts the durable cookie when no render-scoped token exists. It
// reads the cookie at most once until the token is cleared again.
func (m *Manager) Restore(r *Render) {
	st := r.State
	if st.token != "" || st.restoreAttempted {
		return
	}
	st.restoreAttempted = true

	token, ok := r.Cookies.Get(m.cookie.Name)
	if !ok {
		return
	}

	st.setToken(token)
	st.tokens.SetToken(token)
	if st.remember == nil {
		st.setRemember(true)
	}
	m.logger.Debug().Str("session_id", st.ID).Msg("Session restored from cookie")
}

// Logout drops the session's token everywhere and queues a notice for the
// next prompt.
func (m *Manager) Logout(r *Render) {
	m.clear(r)
	r.State.notice = msgSignedOut
	m.fire(r.State, LogoutClicked)
	m.logger.Info().Str("session_id", r.State.ID).Msg("User signed out")
}

func (m *Manager) clear(r *Render) {
	r.State.setToken("")
	r.State.tokens.SetToken("")
	r.Cookies.Remove(m.cookie.Name, m.cookie.Path)
}

func (m *Manager) cleanupLegacy(r *Render) {
	if r.State.legacyCleaned {
		return
	}
	r.State.legacyCleaned = true
	for _, name := range m.legacyNames {
		if _, ok := r.Cookies.Get(name); ok {
			r.Cookies.Remove(name, m.cookie.Path)
		}
	}
}

// gate runs the login prompt. A nil return means a token was obtained.
func (m *Manager) gate(ctx context.Context, r *Render) error {
	st := r.State
	prompt := &Prompt{
		Notice:          st.takeNotice(),
		RememberDefault: st.Remember(),
	}

	creds := r.Interaction.Credentials
	if creds == nil {
		m.fire(st, PageLoad)
		return &HaltError{Prompt: prompt}
	}

	prompt.Email = creds.Email
	if err := m.validate.Struct(creds); err != nil {
		prompt.Error = msgMissingFields
		m.fire(st, PageLoad)
		return &HaltError{Prompt: prompt}
	}

	token, err := m.Client(st).Login(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		prompt.Error = loginMessage(err)
		m.logger.Warn().Err(err).Str("session_id", st.ID).Msg("Login failed")
		m.fire(st, PageLoad)
		return &HaltError{Prompt: prompt}
	}

	st.setToken(token)
	st.tokens.SetToken(token)
	st.setRemember(creds.Remember)
	m.fire(st, CredentialsSubmitted)
	m.logger.Info().Str("session_id", st.ID).Bool("remember", creds.Remember).Msg("User signed in")
	return nil
}

func loginMessage(err error) string {
	var le *apiclient.LoginError
	if errors.As(err, &le) {
		return le.UserMessage()
	}
	return fmt.Sprintf("Login failed: %v", err)
}

func (m *Manager) syncCookie(r *Render) {
	current, ok := r.Cookies.Get(m.cookie.Name)
	if r.State.Remember() {
		if !ok || current != r.State.token {
			r.Cookies.Set(m.cookie.Name, r.State.token, cookie.Options{
				MaxAge: m.cookie.MaxAge,
				Path:   m.cookie.Path,
			})
		}
		return
	}
	if ok {
		r.Cookies.Remove(m.cookie.Name, m.cookie.Path)
	}
}

func (m *Manager) syncClient(st *State) {
	if st.tokens.Token() != st.token {
		st.tokens.SetToken(st.token)
	}
}

func (m *Manager) fire(st *State, e Event) {
	next := transition(st.phase, e, st.token != "")
	if next != st.phase {
		m.logger.Debug().
			Str("session_id", st.ID).
			Str("event", e.String()).
			Str("from", st.phase.String()).
			Str("to", next.String()).
			Msg("Session phase changed")
	}
	st.phase = next
}

func (m *Manager) debugInfo(r *Render) *DebugInfo {
	st := r.State
	info := &DebugInfo{
		SessionToken: st.token,
		Remember:     "unset",
		Phase:        st.phase.String(),
	}
	if v, ok := r.Cookies.Get(m.cookie.Name); ok {
		info.CookieToken = v
	}
	if st.remember != nil {
		info.Remember = fmt.Sprintf("%t", *st.remember)
	}

	subject, expires, err := UnverifiedClaims(st.token)
	if err != nil {
		info.ClaimsError = err.Error()
		return info
	}
	info.Subject = subject
	info.ExpiresAt = expires
	return info
}

// UnverifiedClaims decodes subject and expiry from a JWT without checking
// its signature. Tokens that are not JWTs return an error.
func UnverifiedClaims(token string) (subject string, expiresAt *time.Time, err error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode token: %w", err)
	}

	subject, _ = parsed.Claims.GetSubject()
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		expiresAt = &t
	}
	return subject, expiresAt, nil
}
