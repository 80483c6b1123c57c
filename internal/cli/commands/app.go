package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/cookie"
	"github.com/pricedash/pricedash/internal/session"
)

// ErrNotSignedIn is matched by every error caused by a missing session
var ErrNotSignedIn = errors.New("not signed in")

// App carries what the commands share. One render-scoped State lives for the
// whole process; the durable token lives in Jar.
type App struct {
	Config *config.Config
	Jar    cookie.Jar
	Out    io.Writer
	Logger zerolog.Logger

	// ReadPassword prompts for a password without echo
	ReadPassword func(prompt string) (string, error)

	once    sync.Once
	manager *session.Manager
	state   *session.State
}

// NewApp returns an App writing to out and storing tokens in jar
func NewApp(cfg *config.Config, jar cookie.Jar, out io.Writer, logger zerolog.Logger) *App {
	return &App{
		Config:       cfg,
		Jar:          jar,
		Out:          out,
		Logger:       logger,
		ReadPassword: readPasswordFromTerminal,
	}
}

// JarFor picks where the durable token lives. A token from API_TOKEN is
// served from memory for this process and the OS keyring is left alone;
// otherwise the keyring is used.
func JarFor(cfg *config.Config) cookie.Jar {
	token := strings.TrimSpace(cfg.API.Token)
	if token == "" {
		return cookie.NewKeyringJar(cookie.KeyringService)
	}

	name := cfg.Cookie.Name
	if name == "" {
		name = config.DefaultCookieName
	}
	jar := cookie.NewMemoryJar()
	_ = jar.Set(name, token, cookie.Options{Path: cfg.Cookie.Path})
	return jar
}

func (a *App) init() {
	a.once.Do(func() {
		client := apiclient.New(a.Config.API, nil, a.Logger)
		a.manager = session.NewManager(client, a.Config.Cookie, a.Logger)
		a.state = session.NewState("cli")
	})
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// run performs one render: the session manager decides the token, then fn
// talks to the backend. A token the backend rejects is dropped by a second
// pass through the manager, which then reports the expired session.
func (a *App) run(ctx context.Context, in session.Interaction, opts session.Options, fn func(*session.Authenticated, *apiclient.Client) error) error {
	a.init()
	a.state.Lock()
	defer a.state.Unlock()

	for attempt := 0; ; attempt++ {
		r := &session.Render{
			State:       a.state,
			Cookies:     cookie.NewStore(a.Jar, a.Logger),
			Interaction: in,
		}

		auth, err := a.manager.EnsureAuthenticated(ctx, r, opts)
		if err != nil {
			return promptFailure(err)
		}
		if fn == nil {
			return nil
		}

		err = fn(auth, a.manager.Client(a.state))
		if !apiclient.IsAuthRequired(err) || attempt > 0 {
			return err
		}
		in = session.Interaction{}
	}
}

// signOut drops any stored token before a fresh sign-in
func (a *App) signOut() {
	a.init()
	a.state.Lock()
	defer a.state.Unlock()

	a.manager.Logout(&session.Render{
		State:   a.state,
		Cookies: cookie.NewStore(a.Jar, a.Logger),
	})
}

// promptError is a login prompt the CLI cannot show
type promptError struct {
	prompt *session.Prompt
}

func (e *promptError) Error() string {
	switch {
	case e.prompt.Error != "":
		return e.prompt.Error
	case e.prompt.Notice != "":
		return e.prompt.Notice + " Run 'pricedash login'."
	default:
		return "Not signed in. Run 'pricedash login'."
	}
}

func (e *promptError) Is(target error) bool {
	return target == ErrNotSignedIn
}

func promptFailure(err error) error {
	if halt, ok := session.AsHalt(err); ok && halt.Prompt != nil {
		return &promptError{prompt: halt.Prompt}
	}
	return err
}

func readPasswordFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password is required (use --password flag or PRICEDASH_PASSWORD env var)")
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}
