package cookie

import (
	"errors"
	"net/http"
	"time"
)

// ErrHeadersSent is returned when a write arrives after the response
// headers were flushed.
var ErrHeadersSent = errors.New("response headers already sent")

// HTTPJar reads cookies from the incoming request and queues writes as
// Set-Cookie headers on the response. Reads consult the queued writes first,
// so a Get after Set or Remove in the same request sees the new state.
type HTTPJar struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

// NewHTTPJar binds a jar to one request/response pair
func NewHTTPJar(w http.ResponseWriter, r *http.Request, secure bool) *HTTPJar {
	return &HTTPJar{w: w, r: r, secure: secure}
}

func (j *HTTPJar) Get(name string) (string, error) {
	if c, ok := j.pending(name); ok {
		if c.MaxAge < 0 || c.Value == "" {
			return "", ErrNotFound
		}
		return c.Value, nil
	}

	c, err := j.r.Cookie(name)
	if err != nil {
		return "", ErrNotFound
	}
	return c.Value, nil
}

func (j *HTTPJar) Set(name, value string, opts Options) error {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge / time.Second)
		c.Expires = time.Now().Add(opts.MaxAge)
	}
	return j.write(c)
}

func (j *HTTPJar) Remove(name, path string) error {
	return j.write(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *HTTPJar) write(c *http.Cookie) error {
	if err := c.Valid(); err != nil {
		return err
	}
	if w, ok := j.w.(interface{ Written() bool }); ok && w.Written() {
		return ErrHeadersSent
	}

	// Only the last write for a name/path survives
	header := j.w.Header()
	var kept []string
	for _, line := range header.Values("Set-Cookie") {
		if pc, err := http.ParseSetCookie(line); err == nil && pc.Name == c.Name && pc.Path == c.Path {
			continue
		}
		kept = append(kept, line)
	}
	header.Del("Set-Cookie")
	for _, line := range kept {
		header.Add("Set-Cookie", line)
	}

	http.SetCookie(j.w, c)
	return nil
}

// pending returns the last Set-Cookie queued for name on this response.
func (j *HTTPJar) pending(name string) (*http.Cookie, bool) {
	var found *http.Cookie
	for _, line := range j.w.Header().Values("Set-Cookie") {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == name {
			found = c
		}
	}
	return found, found != nil
}
