package cryptogate

import (
	"context"
	"log/slog"
	"time"

	"github.com/tonimelisma/arkvault/internal/engine"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// totpCodeLen is the number of digits in an authenticator code.
const totpCodeLen = 6

// ComplexityResult reports how a password measures against the policy.
type ComplexityResult struct {
	Valid        bool
	Score        int
	Message      string
	Requirements []string
	Missing      []string
}

// ConfirmationResult reports whether a password and its confirmation agree.
type ConfirmationResult struct {
	Match   bool
	Message string
	Status  string
}

// TOTPSetup is what an authenticator app needs to enrol.
type TOTPSetup = engine.TOTPSetup

// HealthResult reports engine readiness.
type HealthResult struct {
	Ready     bool
	Timestamp time.Time
	Message   string
}

// EncryptWithKey seals data under the account key behind h.
func (g *Gate) EncryptWithKey(ctx context.Context, data []byte, h KeyHandle) ([]byte, error) {
	const op = "cryptogate: encrypt with key"

	if err := g.Ready(ctx); err != nil {
		return nil, err
	}

	key, err := g.lookupKey(op, h)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	return guard(ctx, g, op, vaulterr.ErrEncryptionFailed, func(e Engine) ([]byte, error) {
		return e.EncryptWithKey(data, key)
	})
}

// DecryptWithKey opens an envelope sealed under the account key behind h.
func (g *Gate) DecryptWithKey(ctx context.Context, envelope []byte, h KeyHandle) ([]byte, error) {
	const op = "cryptogate: decrypt with key"

	if err := g.Ready(ctx); err != nil {
		return nil, err
	}

	key, err := g.lookupKey(op, h)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	return guard(ctx, g, op, vaulterr.ErrDecryptionFailed, func(e Engine) ([]byte, error) {
		return e.DecryptWithKey(envelope, key)
	})
}

// EncryptWithPassword seals data under a key stretched from password.
func (g *Gate) EncryptWithPassword(ctx context.Context, data []byte, password string) ([]byte, error) {
	return guard(ctx, g, "cryptogate: encrypt with password", vaulterr.ErrEncryptionFailed,
		func(e Engine) ([]byte, error) {
			return e.EncryptWithPassword(data, password)
		})
}

// DecryptWithPassword opens a custom-password envelope.
func (g *Gate) DecryptWithPassword(ctx context.Context, envelope []byte, password string) ([]byte, error) {
	return guard(ctx, g, "cryptogate: decrypt with password", vaulterr.ErrDecryptionFailed,
		func(e Engine) ([]byte, error) {
			return e.DecryptWithPassword(envelope, password)
		})
}

// Digest returns the lowercase hex SHA-256 of data.
func (g *Gate) Digest(ctx context.Context, data []byte) (string, error) {
	return guard(ctx, g, "cryptogate: digest", vaulterr.ErrEncryptionFailed,
		func(e Engine) (string, error) {
			return e.Digest(data)
		})
}

// HashPassword derives the login credential from password and the account salt.
func (g *Gate) HashPassword(ctx context.Context, password string, salt []byte) (string, error) {
	return guard(ctx, g, "cryptogate: hash password", vaulterr.ErrValidation,
		func(e Engine) (string, error) {
			return e.HashPassword(password, salt)
		})
}

// GenerateSalt returns fresh random salt bytes.
func (g *Gate) GenerateSalt(ctx context.Context) ([]byte, error) {
	return guard(ctx, g, "cryptogate: generate salt", vaulterr.ErrEncryptionFailed,
		func(e Engine) ([]byte, error) {
			return e.GenerateSalt()
		})
}

// ValidatePasswordComplexity never fails: an engine problem yields an invalid
// result whose Message says why.
func (g *Gate) ValidatePasswordComplexity(ctx context.Context, password string) ComplexityResult {
	res, err := guard(ctx, g, "cryptogate: validate complexity", vaulterr.ErrValidation,
		func(e Engine) (engine.Complexity, error) {
			return e.ValidatePasswordComplexity(password)
		})
	if err != nil {
		return ComplexityResult{
			Message:      "Password validation unavailable: " + err.Error(),
			Requirements: append([]string(nil), engine.Requirements...),
			Missing:      append([]string(nil), engine.Requirements...),
		}
	}

	return ComplexityResult(res)
}

// ValidatePasswordConfirmation never fails: an engine problem yields Match=false.
func (g *Gate) ValidatePasswordConfirmation(ctx context.Context, password, confirm string) ConfirmationResult {
	res, err := guard(ctx, g, "cryptogate: validate confirmation", vaulterr.ErrValidation,
		func(e Engine) (engine.Confirmation, error) {
			return e.ValidatePasswordConfirmation(password, confirm)
		})
	if err != nil {
		return ConfirmationResult{
			Message: "Password confirmation unavailable: " + err.Error(),
			Status:  "mismatch",
		}
	}

	return ConfirmationResult(res)
}

// GenerateTOTPSetup creates enrolment material for identity.
func (g *Gate) GenerateTOTPSetup(ctx context.Context, identity string) (TOTPSetup, error) {
	return guard(ctx, g, "cryptogate: generate TOTP setup", vaulterr.ErrValidation,
		func(e Engine) (engine.TOTPSetup, error) {
			return e.GenerateTOTPSetup(identity)
		})
}

// ValidateTOTPCode reports whether code is currently valid for secret. Any
// failure counts as invalid.
func (g *Gate) ValidateTOTPCode(ctx context.Context, code, secret string) bool {
	ok, err := guard(ctx, g, "cryptogate: validate TOTP code", vaulterr.ErrValidation,
		func(e Engine) (bool, error) {
			return e.ValidateTOTPCode(code, secret)
		})

	return err == nil && ok
}

// VerifyTOTPSetup checks the first code a user types after enrolling. The
// code must be exactly six digits before the engine is consulted.
func (g *Gate) VerifyTOTPSetup(ctx context.Context, code, secret string) bool {
	if len(code) != totpCodeLen {
		return false
	}

	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}

	return g.ValidateTOTPCode(ctx, code, secret)
}

// Health reports engine readiness without failing. An engine that failed to
// load reports Ready=false with the reason.
func (g *Gate) Health(ctx context.Context) HealthResult {
	eng, err := g.engine(ctx)
	if err != nil {
		return HealthResult{Timestamp: time.Now(), Message: err.Error()}
	}

	h, err := call(eng, func(e Engine) (engine.Health, error) {
		return e.Health(), nil
	})
	if err != nil {
		g.logger.Warn("crypto health check failed", slog.String("error", err.Error()))

		return HealthResult{Timestamp: time.Now(), Message: err.Error()}
	}

	msg := "crypto engine ready"
	if !h.Ready {
		msg = "crypto engine not ready"
	}

	return HealthResult{Ready: h.Ready, Timestamp: h.Timestamp, Message: msg}
}
