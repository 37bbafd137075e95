// Package engine is the default in-process crypto engine: key derivation,
// authenticated encryption of file payloads, integrity digests, password
// hashing, password rules and TOTP. It is stateless apart from its tuning
// parameters and knows nothing about sessions, tokens or transport. Callers
// reach it only through cryptogate, which owns readiness and failure handling.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Envelope format constants.
const (
	formatVersion  byte = 0x02
	keyTypeCustom  byte = 0x00
	keyTypeAccount byte = 0x01
	saltLen             = 16
	keyLen              = 32
	headerLen           = 2 + saltLen
)

// Defaults for the tunable work factors.
const (
	DefaultKDFIterations = 10000
	defaultArgonTime     = 1
	defaultArgonMemory   = 64 * 1024 // KiB
	defaultArgonThreads  = 4
	minPasswordLength    = 12
)

// Sentinel errors returned by the engine.
var (
	ErrInvalidKey       = errors.New("engine: invalid key")
	ErrMalformed        = errors.New("engine: malformed envelope")
	ErrUnsupported      = errors.New("engine: unsupported envelope version")
	ErrWrongKeyType     = errors.New("engine: envelope key type does not match credential")
	ErrAuthentication   = errors.New("engine: message authentication failed")
	ErrEmptyPassword    = errors.New("engine: password must not be empty")
	ErrSelfTestMismatch = errors.New("engine: self-test round trip mismatch")
)

// Engine implements the crypto primitives. The zero value is not usable; call New.
type Engine struct {
	kdfIterations int
	argonTime     uint32
	argonMemory   uint32
	argonThreads  uint8
	issuer        string
	nowFunc       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithKDFIterations sets the SHAKE-256 stretching rounds used for custom
// passwords. Lower values are only sensible in tests.
func WithKDFIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.kdfIterations = n
		}
	}
}

// WithArgon2 sets the Argon2id parameters used for login password hashing.
func WithArgon2(time, memoryKiB uint32, threads uint8) Option {
	return func(e *Engine) {
		e.argonTime = time
		e.argonMemory = memoryKiB
		e.argonThreads = threads
	}
}

// WithTOTPIssuer sets the issuer shown in authenticator apps.
func WithTOTPIssuer(issuer string) Option {
	return func(e *Engine) {
		e.issuer = issuer
	}
}

// New returns an Engine with default parameters.
func New(opts ...Option) *Engine {
	e := &Engine{
		kdfIterations: DefaultKDFIterations,
		argonTime:     defaultArgonTime,
		argonMemory:   defaultArgonMemory,
		argonThreads:  defaultArgonThreads,
		issuer:        "arkvault",
		nowFunc:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load builds an Engine and runs a self-test round trip before handing it
// out, so a broken build fails at load time instead of on first upload.
func Load(ctx context.Context, opts ...Option) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := New(opts...)
	if err := e.selfTest(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) selfTest() error {
	key := make([]byte, keyLen)
	probe := []byte("arkvault self-test")

	sealed, err := e.EncryptWithKey(probe, key)
	if err != nil {
		return fmt.Errorf("engine: self-test encrypt: %w", err)
	}

	opened, err := e.DecryptWithKey(sealed, key)
	if err != nil {
		return fmt.Errorf("engine: self-test decrypt: %w", err)
	}

	if string(opened) != string(probe) {
		return ErrSelfTestMismatch
	}

	return nil
}

// Digest returns the lowercase hex SHA-256 of data.
func (e *Engine) Digest(data []byte) (string, error) {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// Health reports engine readiness.
type Health struct {
	Ready     bool
	Timestamp time.Time
}

// Health always reports ready once the engine has loaded.
func (e *Engine) Health() Health {
	return Health{Ready: true, Timestamp: e.nowFunc()}
}
