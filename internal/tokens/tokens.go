// Package tokens owns the access/refresh token pair: it hands out the bearer
// token, rotates the pair when the server rejects it, and clears it on logout
// or revocation. The pair is always replaced as a whole, in memory and on
// disk, so no caller ever sees one token without the other.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/arkvault/internal/tokenfile"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Store persists the pair. Implemented by *tokenfile.Store.
type Store interface {
	Load() (*oauth2.Token, map[string]string, error)
	Save(tok *oauth2.Token, meta map[string]string) error
	Clear() error
}

// API is the subset of the server API the manager calls.
type API interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context) error
}

// SessionClearer drops the in-memory account session. Implemented by
// *session.Manager.
type SessionClearer interface {
	Clear()
}

// Manager is safe for concurrent use.
type Manager struct {
	api      API
	store    Store
	sessions SessionClearer
	logger   *slog.Logger

	current  atomic.Pointer[oauth2.Token]
	identity atomic.Pointer[string]

	// mu serializes writes so memory and disk change in the same order.
	mu      sync.Mutex
	refresh singleflight.Group
}

// New creates a Manager. sessions may be nil when no account session exists
// in this process.
func New(api API, store Store, sessions SessionClearer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		api:      api,
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// Load restores a previously saved pair. A half-written or unreadable pair
// is discarded so the invariant holds: both tokens or neither.
func (m *Manager) Load() error {
	tok, meta, err := m.store.Load()
	if err != nil {
		if errors.Is(err, tokenfile.ErrIncompletePair) {
			m.logger.Warn("discarding incomplete token pair", slog.String("error", err.Error()))

			return m.Clear()
		}

		return fmt.Errorf("tokens: loading: %w", err)
	}

	if tok == nil {
		return nil
	}

	m.current.Store(tok)

	if id := meta[tokenfile.MetaIdentity]; id != "" {
		m.identity.Store(&id)
	}

	return nil
}

// SetTokens replaces both tokens at once, keeping the current identity.
func (m *Manager) SetTokens(access, refresh string) error {
	return m.SetAccountTokens(m.Identity(), access, refresh)
}

// SetAccountTokens replaces both tokens and records which account they
// belong to.
func (m *Manager) SetAccountTokens(identity, access, refresh string) error {
	if access == "" || refresh == "" {
		return vaulterr.Newf(vaulterr.ErrValidation, "tokens: set", "access and refresh token are both required")
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.replaceLocked(identity, tok)
}

// replaceLocked swaps the pair in memory first, then on disk. A failed write
// still leaves the new pair usable for this process.
func (m *Manager) replaceLocked(identity string, tok *oauth2.Token) error {
	m.current.Store(tok)
	m.identity.Store(&identity)

	meta := map[string]string{}
	if identity != "" {
		meta[tokenfile.MetaIdentity] = identity
	}

	if err := m.store.Save(tok, meta); err != nil {
		return fmt.Errorf("tokens: saving pair: %w", err)
	}

	return nil
}

// AccessToken returns the current access token and whether one is present.
func (m *Manager) AccessToken() (string, bool) {
	tok := m.current.Load()
	if tok == nil || tok.AccessToken == "" {
		return "", false
	}

	return tok.AccessToken, true
}

// HasRefreshToken reports whether a refresh is possible.
func (m *Manager) HasRefreshToken() bool {
	tok := m.current.Load()

	return tok != nil && tok.RefreshToken != ""
}

// Identity returns the account email the pair belongs to, or "".
func (m *Manager) Identity() string {
	if id := m.identity.Load(); id != nil {
		return *id
	}

	return ""
}

// Token implements the bearer source for the API client.
func (m *Manager) Token() (string, error) {
	if tok, ok := m.AccessToken(); ok {
		return tok, nil
	}

	return "", vaulterr.Newf(vaulterr.ErrAuthenticationRequired, "tokens", "not logged in")
}

// Refresh rotates the pair. Concurrent callers share one server call, so a
// single-use refresh token is sent once. Without a refresh token, or when the
// server rejects it, the pair is cleared and ErrAuthenticationRequired is
// returned. A caller whose ctx ends stops waiting, but the server call
// completes and its outcome is applied.
func (m *Manager) Refresh(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)

	ch := m.refresh.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(shared)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("tokens: refresh: %w", ctx.Err())
	}
}

func (m *Manager) doRefresh(ctx context.Context) error {
	const op = "tokens: refresh"

	cur := m.current.Load()
	if cur == nil || cur.RefreshToken == "" {
		if err := m.Clear(); err != nil {
			m.logger.Warn("clearing tokens failed", slog.String("error", err.Error()))
		}

		return vaulterr.Newf(vaulterr.ErrAuthenticationRequired, op, "no refresh token")
	}

	tok, err := m.api.Refresh(ctx, cur.RefreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	// The server call ran unlocked. Its outcome only applies to the pair it
	// started from; a logout or new login in the meantime wins.
	if now := m.current.Load(); now != cur {
		m.logger.Debug("token pair changed during refresh, dropping result")

		if now == nil {
			return vaulterr.Newf(vaulterr.ErrAuthenticationRequired, op, "logged out during refresh")
		}

		return nil
	}

	if err != nil {
		m.logger.Warn("token refresh rejected, clearing tokens", slog.String("error", err.Error()))

		if clearErr := m.clearLocked(); clearErr != nil {
			m.logger.Warn("clearing tokens failed", slog.String("error", clearErr.Error()))
		}

		return vaulterr.New(vaulterr.ErrAuthenticationRequired, op, err)
	}

	if err := m.replaceLocked(m.Identity(), tok); err != nil {
		m.logger.Warn("refreshed tokens not persisted", slog.String("error", err.Error()))
	}

	m.logger.Debug("token pair rotated")

	return nil
}

// RevokeAll ends every session of the account on the server. Only on
// success are the local pair and the account session cleared.
func (m *Manager) RevokeAll(ctx context.Context) error {
	if err := m.api.RevokeAll(ctx); err != nil {
		return fmt.Errorf("tokens: revoke all: %w", err)
	}

	m.clearSession()

	if err := m.Clear(); err != nil {
		return err
	}

	m.logger.Info("all sessions revoked")

	return nil
}

// Logout revokes the refresh token on a best-effort basis and always clears
// local state. A server failure is logged, not returned.
func (m *Manager) Logout(ctx context.Context) error {
	if tok := m.current.Load(); tok != nil && tok.RefreshToken != "" {
		if err := m.api.Logout(ctx, tok.RefreshToken); err != nil {
			m.logger.Warn("server logout failed, clearing local state anyway",
				slog.String("error", err.Error()),
			)
		}
	}

	m.clearSession()

	return m.Clear()
}

// Clear drops the pair from memory and disk.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.clearLocked()
}

func (m *Manager) clearLocked() error {
	m.current.Store(nil)

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("tokens: clearing: %w", err)
	}

	return nil
}

func (m *Manager) clearSession() {
	if m.sessions != nil {
		m.sessions.Clear()
	}
}
