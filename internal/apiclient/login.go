package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// LoginPath is the credential exchange endpoint
const LoginPath = "/auth/login"

// TokenFields lists the response fields a token may be returned under, in
// lookup order.
var TokenFields = []string{"access_token", "token", "jwt"}

var errNotObject = errors.New("response is not a JSON object")

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. It never retries, never
// sends the current token and never raises the reauth flag; every failure is
// a *LoginError. The session context is left untouched.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.Post(ctx, LoginPath,
		WithJSON(LoginRequest{Email: email, Password: password}),
		WithRetries(0),
		Anonymous(),
	)
	if err != nil {
		return "", &LoginError{Failure: LoginConnection, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &LoginError{
			Failure:    LoginRejected,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(resp.Text()),
		}
	}

	token, err := ExtractToken(resp.Body)
	if err != nil {
		return "", err
	}

	c.logger.Info().Str("email", email).Msg("Login exchange succeeded")
	return token, nil
}

// ExtractToken pulls the bearer token out of a login response body.
func ExtractToken(body []byte) (string, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", &LoginError{Failure: LoginInvalidBody, Err: err}
	}

	fields, ok := raw.(map[string]any)
	if !ok {
		return "", &LoginError{Failure: LoginInvalidBody, Err: errNotObject}
	}

	for _, name := range TokenFields {
		if token, ok := fields[name].(string); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}

	return "", &LoginError{Failure: LoginMissingToken}
}
