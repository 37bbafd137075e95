// Package cryptogate is the single doorway to the crypto engine. It loads the
// engine exactly once per process, makes every caller wait for that load, and
// turns every engine failure (error or panic) into a classified result so no
// raw engine failure reaches orchestration code.
//
// Key material derived for the account session never leaves the Gate: callers
// receive a KeyHandle, an opaque capability that only this package can
// resolve back into bytes. Releasing a handle zeroes the bytes, and any later
// use of the handle fails with vaulterr.ErrSessionExpired.
package cryptogate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/arkvault/internal/engine"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Engine is the set of primitives the Gate forwards to. Satisfied by
// *engine.Engine; tests substitute fakes.
type Engine interface {
	DeriveSessionKey(password string, salt []byte) ([]byte, error)
	ImportSessionKey(export []byte) ([]byte, error)
	EncryptWithKey(data, key []byte) ([]byte, error)
	DecryptWithKey(envelope, key []byte) ([]byte, error)
	EncryptWithPassword(data []byte, password string) ([]byte, error)
	DecryptWithPassword(envelope []byte, password string) ([]byte, error)
	Digest(data []byte) (string, error)
	HashPassword(password string, salt []byte) (string, error)
	GenerateSalt() ([]byte, error)
	ValidatePasswordComplexity(password string) (engine.Complexity, error)
	ValidatePasswordConfirmation(password, confirm string) (engine.Confirmation, error)
	GenerateTOTPSetup(identity string) (engine.TOTPSetup, error)
	ValidateTOTPCode(code, secret string) (bool, error)
	Health() engine.Health
}

// Loader produces the Engine. It is called at most once per Gate.
type Loader func(ctx context.Context) (Engine, error)

// initCall is the in-flight (or finished) engine load shared by all waiters.
type initCall struct {
	done chan struct{}
	eng  Engine
	err  error
}

// Gate owns engine readiness and the account key table. Create one per
// process with New and pass it to every dependent.
type Gate struct {
	load   Loader
	logger *slog.Logger

	mu      sync.Mutex
	ready   bool
	pending *initCall
	eng     Engine

	keysMu sync.Mutex
	keys   map[string]*keyEntry
}

// New creates a Gate. The engine is not loaded until the first call to Ready
// (directly or through any operation).
func New(load Loader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		load:   load,
		logger: logger,
		keys:   make(map[string]*keyEntry),
	}
}

// DefaultLoader loads the in-process engine with the given options.
func DefaultLoader(opts ...engine.Option) Loader {
	return func(ctx context.Context) (Engine, error) {
		return engine.Load(ctx, opts...)
	}
}

// Ready blocks until the engine is loaded. The first caller starts the load;
// concurrent callers wait for the same outcome. A failed load is permanent
// for this Gate. If ctx ends first the caller stops waiting, but the load
// keeps running so later callers still see its result.
func (g *Gate) Ready(ctx context.Context) error {
	_, err := g.engine(ctx)

	return err
}

// IsReady reports whether the engine has finished loading successfully.
func (g *Gate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.ready
}

func (g *Gate) engine(ctx context.Context) (Engine, error) {
	g.mu.Lock()

	if g.ready {
		eng := g.eng
		g.mu.Unlock()

		return eng, nil
	}

	call := g.pending
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		g.pending = call

		go g.runLoad(call)
	}

	g.mu.Unlock()

	select {
	case <-call.done:
		if call.err != nil {
			return nil, call.err
		}

		return call.eng, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("cryptogate: waiting for engine: %w", ctx.Err())
	}
}

// runLoad performs the single engine load. It runs detached from any caller's
// context so an impatient first caller cannot poison the outcome for others.
func (g *Gate) runLoad(call *initCall) {
	g.logger.Debug("loading crypto engine")

	eng, err := g.safeLoad()
	if err == nil && eng == nil {
		err = fmt.Errorf("loader returned no engine")
	}

	if err != nil {
		call.err = vaulterr.New(vaulterr.ErrCryptoInit, "cryptogate", err)
		g.logger.Error("crypto engine failed to load", slog.String("error", err.Error()))
	} else {
		call.eng = eng
		g.logger.Info("crypto engine ready")
	}

	g.mu.Lock()
	if call.err == nil {
		g.ready = true
		g.eng = eng
	}
	g.mu.Unlock()

	close(call.done)
}

func (g *Gate) safeLoad() (eng Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()

	return g.load(context.Background())
}

// guard runs fn against the engine, converting errors and panics into a
// classified *vaulterr.Error of the given kind.
func guard[T any](ctx context.Context, g *Gate, op string, kind error, fn func(Engine) (T, error)) (T, error) {
	var zero T

	eng, err := g.engine(ctx)
	if err != nil {
		return zero, err
	}

	res, err := call(eng, fn)
	if err != nil {
		g.logger.Warn("crypto operation failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return zero, vaulterr.New(kind, op, err)
	}

	return res, nil
}

// call invokes fn, recovering a panic into an error.
func call[T any](eng Engine, fn func(Engine) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	return fn(eng)
}
