// Package cookie holds the durable session token store. A Jar does the raw
// I/O against one backend (browser cookies, OS keyring, memory); Store wraps
// a Jar so that no failure ever reaches the caller.
package cookie

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by a Jar when the named entry does not exist
var ErrNotFound = errors.New("cookie not found")

// Options control how a value is persisted
type Options struct {
	// MaxAge bounds the entry's lifetime; 0 means session-scoped.
	MaxAge time.Duration
	Path   string
}

// Jar is a raw, error-reporting cookie backend
type Jar interface {
	Get(name string) (string, error)
	Set(name, value string, opts Options) error
	Remove(name, path string) error
}

// Store is the best-effort adapter over a Jar. Reads that fail are "absent",
// writes that fail are no-ops. Every call goes to the jar; nothing is cached.
type Store struct {
	jar    Jar
	logger zerolog.Logger
}

// NewStore wraps jar
func NewStore(jar Jar, logger zerolog.Logger) *Store {
	return &Store{
		jar:    jar,
		logger: logger.With().Str("component", "cookie").Logger(),
	}
}

// Get returns the value of name and whether it is present and non-empty.
func (s *Store) Get(name string) (value string, ok bool) {
	err := guard(func() error {
		var err error
		value, err = s.jar.Get(name)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug().Err(err).Str("name", name).Msg("Cookie read failed, treating as absent")
		}
		return "", false
	}
	return value, value != ""
}

// Set writes name=value
func (s *Store) Set(name, value string, opts Options) {
	if err := guard(func() error { return s.jar.Set(name, value, opts) }); err != nil {
		s.logger.Debug().Err(err).Str("name", name).Msg("Cookie write failed, ignoring")
	}
}

// Remove deletes name
func (s *Store) Remove(name, path string) {
	if err := guard(func() error { return s.jar.Remove(name, path) }); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug().Err(err).Str("name", name).Msg("Cookie delete failed, ignoring")
	}
}

// guard turns a panicking backend into an ordinary error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cookie backend panic: %v", r)
		}
	}()
	return fn()
}
