// Package auth runs the account flows that produce a token pair and an
// account session: login, registration, and unlocking the account key in a
// process that already holds tokens.
//
// The account key is always derived from the account password and the
// server's per-account salt, so every flow yields the same key for the same
// account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/session"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Gate is the subset of *cryptogate.Gate the flows use.
type Gate interface {
	Ready(ctx context.Context) error
	HashPassword(ctx context.Context, password string, salt []byte) (string, error)
}

// API is the subset of *vaultapi.Client the flows call.
type API interface {
	Salt(ctx context.Context, email string) ([]byte, error)
	Login(ctx context.Context, email, passwordHash string) (*vaultapi.LoginResult, error)
	Register(ctx context.Context, email, password string) (*vaultapi.RegisterResult, error)
}

// Tokens stores the pair a flow obtains. Implemented by *tokens.Manager.
type Tokens interface {
	SetAccountTokens(identity, access, refresh string) error
	Identity() string
	HasRefreshToken() bool
	Clear() error
}

// Sessions installs the account session. Implemented by *session.Manager.
type Sessions interface {
	Create(ctx context.Context, secret cryptogate.Secret, identity string) (*session.Session, error)
	Clear()
}

// Policy vets new passwords. Implemented by *policy.Validator.
type Policy interface {
	Require(ctx context.Context, password string) error
	RequireConfirmed(ctx context.Context, password, confirm string) error
}

// Deps bundles the collaborators.
type Deps struct {
	Gate     Gate
	API      API
	Tokens   Tokens
	Sessions Sessions
	Policy   Policy
}

// Service runs the account flows.
type Service struct {
	gate     Gate
	api      API
	tokens   Tokens
	sessions Sessions
	policy   Policy
	logger   *slog.Logger
}

// Result is what a successful login or registration leaves behind.
type Result struct {
	Session *session.Session
	User    vaultapi.User // zero after Register and Unlock
}

// New creates a Service.
func New(d Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		gate:     d.Gate,
		api:      d.API,
		tokens:   d.Tokens,
		sessions: d.Sessions,
		policy:   d.Policy,
		logger:   logger,
	}
}

// Login authenticates email with password, stores the new token pair and
// opens an account session.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	const op = "auth: login"

	email, err := normalizeEmail(op, email)
	if err != nil {
		return nil, err
	}

	if password == "" {
		return nil, vaulterr.Newf(vaulterr.ErrValidation, op, "password must not be empty")
	}

	if err := s.gate.Ready(ctx); err != nil {
		return nil, err
	}

	salt, err := s.api.Salt(ctx, email)
	if err != nil {
		return nil, classify(op, err)
	}

	hash, err := s.gate.HashPassword(ctx, password, salt)
	if err != nil {
		return nil, err
	}

	res, err := s.api.Login(ctx, email, hash)
	if err != nil {
		return nil, classify(op, err)
	}

	sess, err := s.sessions.Create(ctx, cryptogate.PasswordSecret(password, salt), email)
	if err != nil {
		return nil, err
	}

	if err := s.storeTokens(op, email, res.Token); err != nil {
		return nil, err
	}

	s.logger.Info("login complete", slog.String("email", email), slog.Bool("admin", res.User.IsAdmin))

	return &Result{Session: sess, User: res.User}, nil
}

// Register creates an account. The password must meet policy and match
// confirm. On success the account is logged in.
func (s *Service) Register(ctx context.Context, email, password, confirm string) (*Result, error) {
	const op = "auth: register"

	email, err := normalizeEmail(op, email)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Ready(ctx); err != nil {
		return nil, err
	}

	if err := s.policy.Require(ctx, password); err != nil {
		return nil, err
	}

	if err := s.policy.RequireConfirmed(ctx, password, confirm); err != nil {
		return nil, err
	}

	res, err := s.api.Register(ctx, email, password)
	if err != nil {
		return nil, classify(op, err)
	}

	// The handshake export is per-login and cannot be recomputed by Unlock.
	clear(res.SessionKey)

	sess, err := s.openSession(ctx, op, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.storeTokens(op, email, res.Token); err != nil {
		return nil, err
	}

	s.logger.Info("registration complete", slog.String("email", email))

	return &Result{Session: sess}, nil
}

// Unlock opens the account session for the identity the stored tokens belong
// to, without a new login.
func (s *Service) Unlock(ctx context.Context, password string) (*Result, error) {
	const op = "auth: unlock"

	email := s.tokens.Identity()
	if email == "" || !s.tokens.HasRefreshToken() {
		return nil, vaulterr.Newf(vaulterr.ErrAuthenticationRequired, op, "not logged in")
	}

	if password == "" {
		return nil, vaulterr.Newf(vaulterr.ErrValidation, op, "password must not be empty")
	}

	if err := s.gate.Ready(ctx); err != nil {
		return nil, err
	}

	sess, err := s.openSession(ctx, op, email, password)
	if err != nil {
		return nil, err
	}

	return &Result{Session: sess}, nil
}

// storeTokens saves the pair after the session exists. A login leaves both
// or neither behind, so a failed save drops the session and any pair that
// reached memory.
func (s *Service) storeTokens(op, email string, tok *oauth2.Token) error {
	err := s.tokens.SetAccountTokens(email, tok.AccessToken, tok.RefreshToken)
	if err == nil {
		return nil
	}

	s.sessions.Clear()

	if clearErr := s.tokens.Clear(); clearErr != nil {
		s.logger.Warn("clearing unsaved tokens failed", slog.String("error", clearErr.Error()))
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) openSession(ctx context.Context, op, email, password string) (*session.Session, error) {
	salt, err := s.api.Salt(ctx, email)
	if err != nil {
		return nil, classify(op, err)
	}

	return s.sessions.Create(ctx, cryptogate.PasswordSecret(password, salt), email)
}

// normalizeEmail trims and lower-cases email and rejects anything that is not
// a bare address.
func normalizeEmail(op, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", vaulterr.Newf(vaulterr.ErrInvalidEmail, op, "%q is not a valid email address", email)
	}

	return email, nil
}

// classify maps server failures onto the error taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, vaultapi.ErrUnauthorized):
		return vaulterr.New(vaulterr.ErrAuthenticationRequired, op, err)
	case errors.Is(err, vaultapi.ErrForbidden):
		return &vaulterr.Error{
			Kind: vaulterr.ErrAuthenticationRequired, Op: op, Msg: "account not approved", Err: err,
		}
	case errors.Is(err, vaultapi.ErrConflict):
		return &vaulterr.Error{Kind: vaulterr.ErrValidation, Op: op, Msg: "account already exists", Err: err}
	case errors.Is(err, vaultapi.ErrTransport):
		return vaulterr.New(vaulterr.ErrNetwork, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
