package dashboard

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/cookie"
	"github.com/pricedash/pricedash/internal/session"
)

const (
	// SessionCookieName carries the render-state id; it is not the auth token
	SessionCookieName = "pricedash_sid"

	stateKey = "render_state"
)

// sessionMiddleware attaches the browser session's State and holds its lock
// for the whole request.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookieName)
		st, created := s.registry.Acquire(id)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookieName, st.ID, 0, "/", "", s.config.Server.SecureCookie, true)
		}

		st.Lock()
		defer st.Unlock()

		c.Set(stateKey, st)
		c.Next()
	}
}

func stateFrom(c *gin.Context) *session.State {
	return c.MustGet(stateKey).(*session.State)
}

// render is what a page handler gets once the session manager let it through
type render struct {
	state  *session.State
	auth   *session.Authenticated
	client *apiclient.Client
}

// authenticate runs the session manager for this request. When it returns
// false the response has been written and the handler must stop.
func (s *Server) authenticate(c *gin.Context) (*render, bool) {
	st := stateFrom(c)
	jar := cookie.NewHTTPJar(c.Writer, c.Request, s.config.Server.SecureCookie)

	r := &session.Render{
		State:       st,
		Cookies:     cookie.NewStore(jar, s.logger),
		Interaction: interactionFrom(c),
	}

	auth, err := s.manager.EnsureAuthenticated(c.Request.Context(), r, session.Options{
		ShowControls: true,
		Debug:        s.config.Server.Debug,
	})
	if err != nil {
		halt, ok := session.AsHalt(err)
		if !ok {
			s.logger.Error().Err(err).Msg("Session check failed")
			c.AbortWithStatus(http.StatusInternalServerError)
			return nil, false
		}
		if halt.Rerun {
			s.rerun(c)
			return nil, false
		}
		c.HTML(http.StatusOK, "login.html", pageData{
			Title:  "Sign in",
			Path:   c.Request.URL.RequestURI(),
			Prompt: halt.Prompt,
		})
		c.Abort()
		return nil, false
	}

	return &render{state: st, auth: auth, client: s.manager.Client(st)}, true
}

// rerun restarts the render cycle with a fresh GET of the same page
func (s *Server) rerun(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, c.Request.URL.RequestURI())
	c.Abort()
}

func interactionFrom(c *gin.Context) session.Interaction {
	if c.Request.Method != http.MethodPost {
		return session.Interaction{}
	}

	switch c.PostForm("_action") {
	case "login":
		return session.Interaction{Credentials: &session.Credentials{
			Email:    c.PostForm("email"),
			Password: c.PostForm("password"),
			Remember: c.PostForm("remember") != "",
		}}
	case "logout":
		return session.Interaction{Logout: true}
	}
	return session.Interaction{}
}

// fetchFailed turns a backend error into an inline message. A rejected token
// restarts the render so the session manager can show the prompt; in that
// case it returns false and the handler must stop.
func (s *Server) fetchFailed(c *gin.Context, err error) (string, bool) {
	if apiclient.IsAuthRequired(err) {
		s.rerun(c)
		return "", false
	}
	return describe(err), true
}

func describe(err error) string {
	var transport *apiclient.TransportError
	var status *apiclient.StatusError
	switch {
	case errors.As(err, &transport):
		return fmt.Sprintf("Backend unreachable after %d attempt(s): %v", transport.Attempts, transport.Err)
	case errors.As(err, &status):
		if status.StatusCode == http.StatusNotFound {
			return "Not found."
		}
		if status.Body != "" {
			return fmt.Sprintf("Backend returned %d: %s", status.StatusCode, status.Body)
		}
		return fmt.Sprintf("Backend returned %d.", status.StatusCode)
	default:
		return err.Error()
	}
}
