// Package session holds the account session: the Gate handle for the
// account key, who it belongs to, and when it stops being usable. Nothing
// here is persisted; a new process starts without a session.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Defaults.
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
)

// Gate is the subset of *cryptogate.Gate the manager needs.
type Gate interface {
	DeriveKey(ctx context.Context, s cryptogate.Secret, identity string) (cryptogate.KeyHandle, error)
	ReleaseKey(h cryptogate.KeyHandle)
}

// Session is one live account session. Fields are read-only once created.
type Session struct {
	handle    cryptogate.KeyHandle
	Identity  string
	DerivedAt time.Time
	ExpiresAt time.Time
}

// Handle returns the Gate handle for the account key.
func (s *Session) Handle() cryptogate.KeyHandle { return s.handle }

// Remaining returns how long the session stays valid from now.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Manager holds at most one session. Safe for concurrent use.
type Manager struct {
	gate          Gate
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	current       atomic.Pointer[Session]

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long a session lives after creation.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithSweepInterval sets how often Run checks for expiry.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// NewManager creates a Manager with no session.
func NewManager(gate Gate, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		gate:          gate,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		logger:        logger,
		nowFunc:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create derives the account key and installs a new session that expires
// TTL from now. A previous session is replaced and its key released. Gate
// errors are returned unchanged.
func (m *Manager) Create(ctx context.Context, secret cryptogate.Secret, identity string) (*Session, error) {
	h, err := m.gate.DeriveKey(ctx, secret, identity)
	if err != nil {
		return nil, err
	}

	now := m.nowFunc()
	s := &Session{
		handle:    h,
		Identity:  identity,
		DerivedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if prev := m.current.Swap(s); prev != nil {
		m.gate.ReleaseKey(prev.handle)
	}

	m.logger.Info("account session created",
		slog.String("identity", identity),
		slog.Time("expires_at", s.ExpiresAt),
	)

	return s, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	s := m.current.Load()
	if s == nil || m.expired(s) {
		return nil
	}

	return s
}

// IsValid reports whether a session exists and has not expired.
func (m *Manager) IsValid() bool {
	return m.Current() != nil
}

// Identity returns the identity of the live session, or "".
func (m *Manager) Identity() string {
	if s := m.Current(); s != nil {
		return s.Identity
	}

	return ""
}

// HandleForTransfer returns the account key handle for an account-mode
// transfer. An expired session is cleared on the spot.
func (m *Manager) HandleForTransfer() (cryptogate.KeyHandle, error) {
	const op = "session"

	s := m.current.Load()
	if s == nil {
		return cryptogate.KeyHandle{}, vaulterr.Newf(vaulterr.ErrSessionExpired, op, "no account session")
	}

	if m.expired(s) {
		m.clearIf(s, "expired")

		return cryptogate.KeyHandle{}, vaulterr.Newf(vaulterr.ErrSessionExpired, op, "account session expired")
	}

	return s.handle, nil
}

// Clear drops the session and releases its key. Idempotent.
func (m *Manager) Clear() {
	if s := m.current.Swap(nil); s != nil {
		m.gate.ReleaseKey(s.handle)
		m.logger.Info("account session cleared", slog.String("identity", s.Identity))
	}
}

// Sweep clears the session if it has expired. Returns true if it did.
func (m *Manager) Sweep() bool {
	s := m.current.Load()
	if s == nil || !m.expired(s) {
		return false
	}

	return m.clearIf(s, "expired")
}

// Run sweeps on a ticker until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// expired reports now > ExpiresAt; a session is still usable at the instant
// it expires.
func (m *Manager) expired(s *Session) bool {
	return m.nowFunc().After(s.ExpiresAt)
}

// clearIf clears s only if it is still the current session, so a sweep
// racing with Create never drops the new session.
func (m *Manager) clearIf(s *Session, reason string) bool {
	if !m.current.CompareAndSwap(s, nil) {
		return false
	}

	m.gate.ReleaseKey(s.handle)
	m.logger.Info("account session cleared",
		slog.String("identity", s.Identity),
		slog.String("reason", reason),
	)

	return true
}
