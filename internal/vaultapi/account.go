package vaultapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// Salt returns the account salt for email. The salt is public; it lets the
// client derive the login hash and the account key.
func (c *Client) Salt(ctx context.Context, email string) ([]byte, error) {
	r, err := jsonRequest(http.MethodPost, "/api/salt", map[string]string{"email": email})
	if err != nil {
		return nil, err
	}

	r.retry = true

	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("vaultapi: fetching salt: %w", err)
	}

	var out struct {
		Salt string `json:"salt"`
	}

	if err := decodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: fetching salt: %w", err)
	}

	if out.Salt == "" {
		return nil, fmt.Errorf("vaultapi: fetching salt: %w: empty salt", ErrInvalidResult)
	}

	return []byte(out.Salt), nil
}

// Login exchanges the derived password hash for a token pair.
func (c *Client) Login(ctx context.Context, email, passwordHash string) (*LoginResult, error) {
	r, err := jsonRequest(http.MethodPost, "/api/login", map[string]string{
		"email":        email,
		"passwordHash": passwordHash,
	})
	if err != nil {
		return nil, err
	}

	var out tokenPairResponse
	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: login: %w", err)
	}

	tok, err := out.pair()
	if err != nil {
		return nil, fmt.Errorf("vaultapi: login: %w", err)
	}

	res := &LoginResult{Token: tok}
	if out.User != nil {
		res.User = *out.User
	}

	c.logger.Info("logged in", slog.String("email", email))

	return res, nil
}

// Register creates an account and returns its first token pair and the
// server's session key export.
func (c *Client) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	r, err := jsonRequest(http.MethodPost, "/api/opaque/register", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var out tokenPairResponse
	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: register: %w", err)
	}

	tok, err := out.pair()
	if err != nil {
		return nil, fmt.Errorf("vaultapi: register: %w", err)
	}

	if len(out.SessionKey) == 0 {
		return nil, fmt.Errorf("vaultapi: register: %w: missing session key", ErrInvalidResult)
	}

	return &RegisterResult{Token: tok, SessionKey: out.SessionKey}, nil
}

// Refresh rotates the token pair. The old refresh token is consumed by the
// server, so a given refresh token must be sent at most once.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	r, err := jsonRequest(http.MethodPost, "/api/refresh", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	var out tokenPairResponse
	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: refresh: %w", err)
	}

	tok, err := out.pair()
	if err != nil {
		return nil, fmt.Errorf("vaultapi: refresh: %w", err)
	}

	return tok, nil
}

// Logout revokes one refresh token.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	r, err := jsonRequest(http.MethodPost, "/api/logout", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return fmt.Errorf("vaultapi: logout: %w", err)
	}

	drain(resp)

	return nil
}

// RevokeAll revokes every session of the account. Authenticated with the
// current access token.
func (c *Client) RevokeAll(ctx context.Context) error {
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/api/revoke-all", bearer: true})
	if err != nil {
		return fmt.Errorf("vaultapi: revoke all: %w", err)
	}

	drain(resp)

	return nil
}

// Health fetches the server readiness report. An unhealthy server answers
// 503, which surfaces as an *APIError.
func (c *Client) Health(ctx context.Context) (*ServerHealth, error) {
	var out ServerHealth
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/opaque/health"}, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: health: %w", err)
	}

	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, r request, v any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}

	return decodeJSON(resp, v)
}
