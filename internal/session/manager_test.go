package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/cookie"
)

// mockBackend answers /auth/login with loginStatus/loginBody and
// /catalogo/skus with skusStatus.
type mockBackend struct {
	srv *httptest.Server

	loginStatus int
	loginBody   string
	skusStatus  int

	logins   atomic.Int32
	requests atomic.Int32
	lastAuth atomic.Value
}

func newMockBackend(t *testing.T) *mockBackend {
	t.Helper()

	b := &mockBackend{
		loginStatus: http.StatusOK,
		loginBody:   `{"access_token":"T1"}`,
		skusStatus:  http.StatusOK,
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.lastAuth.Store(r.Header.Get("Authorization"))

		switch r.URL.Path {
		case apiclient.LoginPath:
			b.logins.Add(1)
			var req apiclient.LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(b.loginStatus)
			_, _ = w.Write([]byte(b.loginBody))
		case "/catalogo/skus":
			w.WriteHeader(b.skusStatus)
			_, _ = w.Write([]byte(`[{"id":1,"sku":"A-1"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func newTestManager(t *testing.T, baseURL string) *Manager {
	t.Helper()

	client := apiclient.New(config.APIConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retries: 0,
	}, nil, zerolog.Nop())

	return NewManager(client, config.CookieConfig{
		Name:   "jwt",
		Path:   "/",
		MaxAge: 30 * 24 * time.Hour,
	}, zerolog.Nop())
}

func newRender(st *State, jar *cookie.MemoryJar) *Render {
	return &Render{State: st, Cookies: cookie.NewStore(jar, zerolog.Nop())}
}

func requirePrompt(t *testing.T, err error) *Prompt {
	t.Helper()

	require.ErrorIs(t, err, ErrHalted)
	halt, ok := AsHalt(err)
	require.True(t, ok)
	require.False(t, halt.Rerun)
	require.NotNil(t, halt.Prompt)
	return halt.Prompt
}

func TestEnsureAuthenticated_LoginFlow(t *testing.T) {
	backend := newMockBackend(t)
	m := newTestManager(t, backend.srv.URL)
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	ctx := context.Background()

	// First render: nothing to restore, the prompt is shown
	auth, err := m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
	require.Nil(t, auth)
	prompt := requirePrompt(t, err)
	require.Empty(t, prompt.Error)
	require.True(t, prompt.RememberDefault)
	require.Equal(t, PhaseAwaitingCredentials, st.Phase())
	require.Zero(t, backend.requests.Load())

	// Second render: credentials submitted with remember checked
	r := newRender(st, jar)
	r.Interaction.Credentials = &Credentials{Email: "a@b.com", Password: "x", Remember: true}
	auth, err = m.EnsureAuthenticated(ctx, r, Options{})
	require.NoError(t, err)
	require.Equal(t, "T1", auth.Token)

	stored, ok := jar.Peek("jwt")
	require.True(t, ok)
	require.Equal(t, "T1", stored)
	require.Equal(t, 30*24*time.Hour, jar.OptionsFor("jwt").MaxAge)
	require.Equal(t, "/", jar.OptionsFor("jwt").Path)

	require.Equal(t, "T1", st.Token())
	require.Equal(t, "T1", st.Tokens().Token())
	require.Equal(t, PhaseAuthenticated, st.Phase())
	require.Equal(t, int32(1), backend.logins.Load())
	require.Empty(t, backend.lastAuth.Load(), "login must not send a bearer token")
}

func TestEnsureAuthenticated_RestoresFromCookie(t *testing.T) {
	backend := newMockBackend(t)
	m := newTestManager(t, backend.srv.URL)
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	require.NoError(t, jar.Set("jwt", "T2", cookie.Options{Path: "/"}))

	auth, err := m.EnsureAuthenticated(context.Background(), newRender(st, jar), Options{ShowControls: true})
	require.NoError(t, err)
	require.Equal(t, "T2", auth.Token)
	require.True(t, auth.ShowLogout)
	require.True(t, st.Remember())
	require.Equal(t, "T2", st.Tokens().Token())
	require.Zero(t, backend.requests.Load(), "restoring must not contact the backend")
}

func TestRestore_Idempotent(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1")

	t.Run("existing token never reads the cookie", func(t *testing.T) {
		st := NewState("s1")
		st.setToken("T")
		jar := cookie.NewMemoryJar()
		require.NoError(t, jar.Set("jwt", "C", cookie.Options{}))
		jar.ResetCounts()

		r := newRender(st, jar)
		m.Restore(r)
		m.Restore(r)

		require.Zero(t, jar.Gets)
		require.Equal(t, "T", st.Token())
	})

	t.Run("missing cookie is read once per cleared token", func(t *testing.T) {
		st := NewState("s1")
		jar := cookie.NewMemoryJar()
		r := newRender(st, jar)

		m.Restore(r)
		m.Restore(r)
		require.Equal(t, 1, jar.Gets)

		st.setToken("T")
		st.setToken("")
		m.Restore(r)
		require.Equal(t, 2, jar.Gets)
	})
}

func TestEnsureAuthenticated_RememberFidelity(t *testing.T) {
	tests := []struct {
		name      string
		remember  bool
		preloaded string
		wantSet   bool
	}{
		{name: "remember writes token", remember: true, wantSet: true},
		{name: "remember overwrites stale cookie", remember: true, preloaded: "old", wantSet: true},
		{name: "forget leaves nothing", remember: false},
		{name: "forget deletes existing cookie", remember: false, preloaded: "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, "http://127.0.0.1:1")
			st := NewState("s1")
			st.setToken("T")
			st.setRemember(tt.remember)
			jar := cookie.NewMemoryJar()
			if tt.preloaded != "" {
				require.NoError(t, jar.Set("jwt", tt.preloaded, cookie.Options{}))
			}

			_, err := m.EnsureAuthenticated(context.Background(), newRender(st, jar), Options{})
			require.NoError(t, err)

			got, ok := jar.Peek("jwt")
			require.Equal(t, tt.wantSet, ok)
			if tt.wantSet {
				require.Equal(t, "T", got)
			}
		})
	}
}

func TestEnsureAuthenticated_NoRedundantCookieWrites(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1")
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	require.NoError(t, jar.Set("jwt", "T2", cookie.Options{}))
	ctx := context.Background()

	_, err := m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
	require.NoError(t, err)

	jar.ResetCounts()
	for range 3 {
		_, err := m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
		require.NoError(t, err)
	}
	require.Zero(t, jar.Sets)
	require.Zero(t, jar.Removes)
}

func TestEnsureAuthenticated_ReauthAfterRejection(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			backend := newMockBackend(t)
			backend.skusStatus = status
			m := newTestManager(t, backend.srv.URL)
			st := NewState("s1")
			jar := cookie.NewMemoryJar()
			require.NoError(t, jar.Set("jwt", "T2", cookie.Options{}))
			ctx := context.Background()

			_, err := m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
			require.NoError(t, err)

			_, err = m.Client(st).ListSKUs(ctx, 10)
			require.ErrorIs(t, err, apiclient.ErrAuthRequired)
			require.Equal(t, "Bearer T2", backend.lastAuth.Load())
			require.Empty(t, st.Tokens().Token(), "rejection clears the shared token")

			auth, err := m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
			require.Nil(t, auth)
			prompt := requirePrompt(t, err)
			require.Equal(t, msgSessionEnded, prompt.Notice)

			require.Empty(t, st.Token())
			require.Empty(t, st.Tokens().Token())
			require.False(t, st.Tokens().ConsumeReauth())
			_, ok := jar.Peek("jwt")
			require.False(t, ok, "cookie must be deleted after rejection")

			// The flag is consumed once; the following render is a plain prompt
			_, err = m.EnsureAuthenticated(ctx, newRender(st, jar), Options{})
			prompt = requirePrompt(t, err)
			require.Empty(t, prompt.Notice)
		})
	}
}

func TestEnsureAuthenticated_LoginFailures(t *testing.T) {
	tests := []struct {
		name        string
		creds       Credentials
		loginStatus int
		loginBody   string
		closed      bool
		wantError   string
		wantLogins  int32
	}{
		{
			name:      "missing password",
			creds:     Credentials{Email: "a@b.com"},
			wantError: msgMissingFields,
		},
		{
			name:      "missing email",
			creds:     Credentials{Password: "x"},
			wantError: msgMissingFields,
		},
		{
			name:        "rejected credentials",
			creds:       Credentials{Email: "a@b.com", Password: "bad"},
			loginStatus: http.StatusUnauthorized,
			loginBody:   `{"detail":"invalid credentials"}`,
			wantError:   `Login failed (401): {"detail":"invalid credentials"}`,
			wantLogins:  1,
		},
		{
			name:        "unparsable body",
			creds:       Credentials{Email: "a@b.com", Password: "x"},
			loginStatus: http.StatusOK,
			loginBody:   `not json`,
			wantError:   "Invalid response from server.",
			wantLogins:  1,
		},
		{
			name:        "no token in body",
			creds:       Credentials{Email: "a@b.com", Password: "x"},
			loginStatus: http.StatusOK,
			loginBody:   `{"user":"a"}`,
			wantError:   "No token found in the response.",
			wantLogins:  1,
		},
		{
			name:      "backend unreachable",
			creds:     Credentials{Email: "a@b.com", Password: "x"},
			closed:    true,
			wantError: "Connection error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMockBackend(t)
			if tt.loginStatus != 0 {
				backend.loginStatus = tt.loginStatus
				backend.loginBody = tt.loginBody
			}
			baseURL := backend.srv.URL
			if tt.closed {
				backend.srv.Close()
			}

			m := newTestManager(t, baseURL)
			st := NewState("s1")
			jar := cookie.NewMemoryJar()

			r := newRender(st, jar)
			creds := tt.creds
			r.Interaction.Credentials = &creds
			_, err := m.EnsureAuthenticated(context.Background(), r, Options{})

			prompt := requirePrompt(t, err)
			require.Contains(t, prompt.Error, tt.wantError)
			require.Equal(t, tt.creds.Email, prompt.Email)
			require.Equal(t, tt.wantLogins, backend.logins.Load())
			require.Empty(t, st.Token())
			require.False(t, st.Tokens().ConsumeReauth(), "a failed login never raises reauth")
			require.Equal(t, PhaseAwaitingCredentials, st.Phase())
		})
	}
}

func TestEnsureAuthenticated_Logout(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1")
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	require.NoError(t, jar.Set("jwt", "T2", cookie.Options{}))
	ctx := context.Background()

	// Without controls a logout click is ignored
	r := newRender(st, jar)
	r.Interaction.Logout = true
	auth, err := m.EnsureAuthenticated(ctx, r, Options{})
	require.NoError(t, err)
	require.Equal(t, "T2", auth.Token)

	r = newRender(st, jar)
	r.Interaction.Logout = true
	_, err = m.EnsureAuthenticated(ctx, r, Options{ShowControls: true})
	require.ErrorIs(t, err, ErrHalted)
	halt, ok := AsHalt(err)
	require.True(t, ok)
	require.True(t, halt.Rerun)

	require.Empty(t, st.Token())
	require.Empty(t, st.Tokens().Token())
	require.Equal(t, PhaseUnauthenticated, st.Phase())
	_, ok = jar.Peek("jwt")
	require.False(t, ok)

	_, err = m.EnsureAuthenticated(ctx, newRender(st, jar), Options{ShowControls: true})
	prompt := requirePrompt(t, err)
	require.Equal(t, msgSignedOut, prompt.Notice)
}

func TestEnsureAuthenticated_SyncsClientToken(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1")
	st := NewState("s1")
	st.setToken("T")
	st.Tokens().SetToken("stale")

	auth, err := m.EnsureAuthenticated(context.Background(), newRender(st, cookie.NewMemoryJar()), Options{})
	require.NoError(t, err)
	require.Equal(t, "T", auth.Token)
	require.Equal(t, "T", st.Tokens().Token())
}

func TestEnsureAuthenticated_RemovesLegacyCookieOnce(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1")
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	require.NoError(t, jar.Set(LegacyCookieName, "old", cookie.Options{}))
	require.NoError(t, jar.Set("jwt", "T2", cookie.Options{}))

	_, err := m.EnsureAuthenticated(context.Background(), newRender(st, jar), Options{})
	require.NoError(t, err)
	_, ok := jar.Peek(LegacyCookieName)
	require.False(t, ok)

	require.NoError(t, jar.Set(LegacyCookieName, "again", cookie.Options{}))
	_, err = m.EnsureAuthenticated(context.Background(), newRender(st, jar), Options{})
	require.NoError(t, err)
	_, ok = jar.Peek(LegacyCookieName)
	require.True(t, ok, "legacy cleanup runs once per session")
}

func TestEnsureAuthenticated_CookieFailuresAreIgnored(t *testing.T) {
	backend := newMockBackend(t)
	m := newTestManager(t, backend.srv.URL)
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	jar.Fail = errors.New("storage offline")

	r := newRender(st, jar)
	r.Interaction.Credentials = &Credentials{Email: "a@b.com", Password: "x", Remember: true}
	auth, err := m.EnsureAuthenticated(context.Background(), r, Options{})
	require.NoError(t, err)
	require.Equal(t, "T1", auth.Token)
}

func TestEnsureAuthenticated_Debug(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	m := newTestManager(t, "http://127.0.0.1:1")
	st := NewState("s1")
	jar := cookie.NewMemoryJar()
	require.NoError(t, jar.Set("jwt", token, cookie.Options{}))

	auth, err := m.EnsureAuthenticated(context.Background(), newRender(st, jar), Options{Debug: true})
	require.NoError(t, err)
	require.NotNil(t, auth.Debug)
	require.Equal(t, token, auth.Debug.CookieToken)
	require.Equal(t, token, auth.Debug.SessionToken)
	require.Equal(t, "true", auth.Debug.Remember)
	require.Equal(t, "authenticated", auth.Debug.Phase)
	require.Equal(t, "user-1", auth.Debug.Subject)
	require.NotNil(t, auth.Debug.ExpiresAt)
	require.True(t, expires.Equal(*auth.Debug.ExpiresAt))

	_, _, err = UnverifiedClaims("opaque-token")
	require.Error(t, err)
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from     Phase
		event    Event
		hasToken bool
		want     Phase
	}{
		{PhaseUnauthenticated, PageLoad, false, PhaseAwaitingCredentials},
		{PhaseUnauthenticated, PageLoad, true, PhaseAuthenticated},
		{PhaseAwaitingCredentials, CredentialsSubmitted, true, PhaseAuthenticated},
		{PhaseAwaitingCredentials, CredentialsSubmitted, false, PhaseAwaitingCredentials},
		{PhaseAuthenticated, PageLoad, true, PhaseAuthenticated},
		{PhaseAuthenticated, ServerRejected, false, PhaseUnauthenticated},
		{PhaseAuthenticated, LogoutClicked, false, PhaseUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			require.Equal(t, tt.want, transition(tt.from, tt.event, tt.hasToken))
		})
	}
}
