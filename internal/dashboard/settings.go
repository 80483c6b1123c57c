package dashboard

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pricedash/pricedash/internal/apiclient"
)

const maxPageRetries = 3

// settingsForm holds the per-page backend knobs. Pointers tell "not given"
// apart from zero retries.
type settingsForm struct {
	Timeout *float64 `form:"timeout" binding:"omitempty,min=1,max=60"`
	Retries *int     `form:"retries" binding:"omitempty,min=0,max=3"`
}

// requestSettings is what a page uses for its backend calls
type requestSettings struct {
	Timeout float64 // seconds
	Retries int
}

func (rs requestSettings) options() []apiclient.RequestOption {
	return []apiclient.RequestOption{
		apiclient.WithTimeout(time.Duration(rs.Timeout * float64(time.Second))),
		apiclient.WithRetries(rs.Retries),
	}
}

// bindSettings fills data.Settings from the query string on top of the
// configured defaults.
func (s *Server) bindSettings(c *gin.Context, data *pageData) {
	data.Settings = requestSettings{
		Timeout: s.config.API.Timeout.Seconds(),
		Retries: min(s.config.API.Retries, maxPageRetries),
	}

	var form settingsForm
	if err := c.ShouldBindQuery(&form); err != nil {
		data.Error = "Timeout must be 1-60 seconds and retries 0-3, using defaults."
		return
	}
	if form.Timeout != nil {
		data.Settings.Timeout = *form.Timeout
	}
	if form.Retries != nil {
		data.Settings.Retries = *form.Retries
	}
}

// settingsQuery re-encodes the knobs given on this request for a redirect
func settingsQuery(c *gin.Context) string {
	v := url.Values{}
	for _, key := range []string{"timeout", "retries"} {
		if value := c.Query(key); value != "" {
			v.Set(key, value)
		}
	}
	return v.Encode()
}

// refreshed handles the "Refresh" button of list pages: the session's cached
// lists are dropped and the page reloads. It reports whether the response
// has been written.
func (s *Server) refreshed(c *gin.Context, r *render) bool {
	if c.Request.Method != http.MethodPost || c.PostForm("_action") != "refresh" {
		return false
	}
	r.state.Lists().Clear()
	s.rerun(c)
	return true
}

// listRows fetches a list through the session cache. Entries are keyed by
// page, filters and request settings.
func (s *Server) listRows(c *gin.Context, r *render, data *pageData, fetch func(...apiclient.RequestOption) (apiclient.Records, error)) (apiclient.Records, error) {
	key := fmt.Sprintf("%s|%+v|%+v", c.Request.URL.Path, data.Query, data.Settings)
	rows, hit, err := r.state.Lists().Fetch(key, func() (apiclient.Records, error) {
		return fetch(data.Settings.options()...)
	})
	if hit {
		s.logger.Debug().Str("session_id", r.state.ID).Str("key", key).Msg("List served from cache")
	}
	return rows, err
}
