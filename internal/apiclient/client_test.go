package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricedash/pricedash/internal/config"
)

// flakyTransport fails the first `failures` round trips with a connection
// error, then answers every request with a 200 `{}`.
type flakyTransport struct {
	failures int
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := int(f.calls.Add(1))
	if n <= f.failures {
		return nil, fmt.Errorf("dial tcp %s: connect: connection refused", req.URL.Host)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Request:    req,
	}, nil
}

func newTestClient(t *testing.T, baseURL string, retries int) (*Client, *[]time.Duration) {
	t.Helper()

	c := New(config.APIConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retries: retries,
		Backoff: 500 * time.Millisecond,
	}, nil, zerolog.Nop())

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestRequest_RetryBound(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		retries      int
		wantAttempts int
		wantDelays   []time.Duration
		wantErr      bool
	}{
		{
			name:         "no failures",
			failures:     0,
			retries:      2,
			wantAttempts: 1,
		},
		{
			name:         "recovers on last attempt",
			failures:     2,
			retries:      2,
			wantAttempts: 3,
			wantDelays:   []time.Duration{500 * time.Millisecond, time.Second},
		},
		{
			name:         "exhausts retries",
			failures:     5,
			retries:      2,
			wantAttempts: 3,
			wantDelays:   []time.Duration{500 * time.Millisecond, time.Second},
			wantErr:      true,
		},
		{
			name:         "zero retries",
			failures:     1,
			retries:      0,
			wantAttempts: 1,
			wantErr:      true,
		},
		{
			name:         "three retries",
			failures:     10,
			retries:      3,
			wantAttempts: 4,
			wantDelays:   []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, delays := newTestClient(t, "http://backend.invalid", tt.retries)
			transport := &flakyTransport{failures: tt.failures}
			c.SetHTTPClient(&http.Client{Transport: transport})

			resp, err := c.Get(context.Background(), "/catalogo/skus")

			assert.Equal(t, tt.wantAttempts, int(transport.calls.Load()))
			assert.Equal(t, tt.wantDelays, *delays)

			if tt.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrTransport)

				var terr *TransportError
				require.ErrorAs(t, err, &terr)
				require.Equal(t, tt.wantAttempts, terr.Attempts)
				require.False(t, IsAuthRequired(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestRequest_PerRequestRetrySettings(t *testing.T) {
	c, delays := newTestClient(t, "http://backend.invalid", 0)
	transport := &flakyTransport{failures: 10}
	c.SetHTTPClient(&http.Client{Transport: transport})

	_, err := c.Get(context.Background(), "/catalogo/proveedores",
		WithRetries(2),
		WithBackoff(100*time.Millisecond),
	)
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, int32(3), transport.calls.Load())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{base: 500 * time.Millisecond, attempt: 0, want: 500 * time.Millisecond},
		{base: 500 * time.Millisecond, attempt: 2, want: 2 * time.Second},
		{base: 500 * time.Millisecond, attempt: 6, want: 32 * time.Second},
		{base: 500 * time.Millisecond, attempt: 7, want: time.Minute},
		{base: 500 * time.Millisecond, attempt: 40, want: time.Minute},
		{base: 500 * time.Millisecond, attempt: 200, want: time.Minute},
		{base: 2 * time.Hour, attempt: 0, want: time.Minute},
		{base: 0, attempt: 5, want: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s x %d", tt.base, tt.attempt), func(t *testing.T) {
			require.Equal(t, tt.want, backoffDelay(tt.base, tt.attempt))
		})
	}
}

func TestRequest_NoRetryOnHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL, 3)

	resp, err := c.Get(context.Background(), "/catalogo/skus")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, *delays)

	var serr *StatusError
	require.ErrorAs(t, resp.Err(), &serr)
	require.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
}

func TestRequest_AuthFailureRaisesReauth(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
			}))
			defer srv.Close()

			c, delays := newTestClient(t, srv.URL, 3)
			c.SetToken("stale")

			_, err := c.Get(context.Background(), "/catalogo/skus")
			require.Error(t, err)
			require.True(t, IsAuthRequired(err))
			require.False(t, errors.Is(err, ErrTransport))

			var aerr *AuthError
			require.ErrorAs(t, err, &aerr)
			require.Equal(t, status, aerr.StatusCode)

			require.Equal(t, int32(1), calls.Load(), "auth failures are never retried")
			require.Empty(t, *delays)
			require.Empty(t, c.Token(), "token is cleared")
			require.True(t, c.Tokens().ConsumeReauth())
			require.False(t, c.Tokens().ConsumeReauth(), "flag is consumed once")
		})
	}
}

func TestRequest_Headers(t *testing.T) {
	var got http.Header
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL+"/", 0)

	_, err := c.Get(context.Background(), "catalogo/skus")
	require.NoError(t, err)
	require.Equal(t, "application/json", got.Get("Accept"))
	require.Empty(t, got.Get("Authorization"))
	require.Equal(t, "/catalogo/skus", gotURL)

	c.SetToken("T1")
	_, err = c.ListSKUs(context.Background(), 25)
	require.NoError(t, err)
	require.Equal(t, "Bearer T1", got.Get("Authorization"))
	require.Equal(t, "/catalogo/skus?limit=25", gotURL)

	_, err = c.Get(context.Background(), "/public", Anonymous())
	require.NoError(t, err)
	require.Empty(t, got.Get("Authorization"))
}

func TestRequest_PerAttemptTimeoutIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL, 1)

	resp, err := c.Get(context.Background(), "/slow", WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []time.Duration{500 * time.Millisecond}, *delays)
}

func TestRequest_CancelledContextStopsRetrying(t *testing.T) {
	c, delays := newTestClient(t, "http://backend.invalid", 5)
	transport := &flakyTransport{failures: 10}
	c.SetHTTPClient(&http.Client{Transport: transport})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/catalogo/skus")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, *delays)
}

func TestTokenState(t *testing.T) {
	ts := NewTokenState("  initial \n")
	require.Equal(t, "initial", ts.Token())

	ts.SetToken("")
	require.Empty(t, ts.Token())
	require.False(t, ts.ConsumeReauth())

	ts.SetToken("T")
	ts.Reject()
	require.Empty(t, ts.Token())
	require.True(t, ts.ConsumeReauth())
	require.False(t, ts.ConsumeReauth())
}

func TestForSession_IsolatesTokens(t *testing.T) {
	base, _ := newTestClient(t, "http://backend.invalid", 0)
	a := base.ForSession(NewTokenState("A"))
	b := base.ForSession(NewTokenState("B"))

	a.SetToken("A2")
	require.Equal(t, "A2", a.Token())
	require.Equal(t, "B", b.Token())
	require.Equal(t, base.BaseURL(), a.BaseURL())
}
