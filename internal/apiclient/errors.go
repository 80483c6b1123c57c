package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRequired is matched by every AuthError.
	ErrAuthRequired = errors.New("authentication required")

	// ErrTransport is matched by every TransportError.
	ErrTransport = errors.New("transport failure")

	// ErrLoginFailed is matched by every LoginError.
	ErrLoginFailed = errors.New("login failed")
)

// AuthError is returned when the backend answers 401 or 403 to an
// authenticated request. It is never retried.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication required (%d)", e.StatusCode)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuthRequired
}

// TransportError is returned once every attempt failed before a response
// was received (connection refused, timeout, reset).
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// StatusError reports a non-2xx response for callers that want one.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// LoginFailure classifies why a credential exchange did not yield a token.
type LoginFailure int

const (
	LoginConnection LoginFailure = iota + 1
	LoginRejected
	LoginInvalidBody
	LoginMissingToken
)

// LoginError describes a failed credential exchange.
type LoginError struct {
	Failure    LoginFailure
	StatusCode int
	Body       string
	Err        error
}

func (e *LoginError) Error() string {
	switch e.Failure {
	case LoginConnection:
		return fmt.Sprintf("login: connection error: %v", e.Err)
	case LoginRejected:
		return fmt.Sprintf("login: status %d: %s", e.StatusCode, e.Body)
	case LoginInvalidBody:
		return fmt.Sprintf("login: invalid response body: %v", e.Err)
	case LoginMissingToken:
		return "login: no token in response"
	default:
		return "login failed"
	}
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

func (e *LoginError) Is(target error) bool {
	return target == ErrLoginFailed
}

// UserMessage is the text shown in the login prompt.
func (e *LoginError) UserMessage() string {
	switch e.Failure {
	case LoginConnection:
		return fmt.Sprintf("Connection error: %v", e.Err)
	case LoginRejected:
		return fmt.Sprintf("Login failed (%d): %s", e.StatusCode, e.Body)
	case LoginInvalidBody:
		return "Invalid response from server."
	case LoginMissingToken:
		return "No token found in the response."
	default:
		return "Login failed."
	}
}
