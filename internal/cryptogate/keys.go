package cryptogate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// errHandleMarshal is returned when something tries to serialize a KeyHandle.
var errHandleMarshal = errors.New("cryptogate: key handle cannot be serialized")

// KeyHandle is an opaque reference to account key material held by a Gate.
// The zero value refers to nothing.
type KeyHandle struct {
	id string
}

// IsZero reports whether h refers to nothing.
func (h KeyHandle) IsZero() bool { return h.id == "" }

// String never reveals anything about the key.
func (h KeyHandle) String() string { return "[redacted]" }

// LogValue keeps handles out of structured logs.
func (h KeyHandle) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// MarshalJSON refuses to serialize the handle so it cannot be persisted.
func (h KeyHandle) MarshalJSON() ([]byte, error) { return nil, errHandleMarshal }

// MarshalText refuses to serialize the handle so it cannot be persisted.
func (h KeyHandle) MarshalText() ([]byte, error) { return nil, errHandleMarshal }

type keyEntry struct {
	key      []byte
	identity string
}

// Secret is the input the Gate turns into account key material. Build one
// with ExportedSecret or PasswordSecret.
type Secret struct {
	export   []byte
	password string
	salt     []byte
}

// ExportedSecret wraps a session key exported by the server at registration.
func ExportedSecret(export []byte) Secret {
	return Secret{export: append([]byte(nil), export...)}
}

// PasswordSecret derives the account key from the account password and the
// account salt.
func PasswordSecret(password string, salt []byte) Secret {
	return Secret{password: password, salt: append([]byte(nil), salt...)}
}

func (s Secret) isZero() bool {
	return len(s.export) == 0 && s.password == ""
}

// DeriveKey turns s into account key material and stores it under a new
// handle. The raw key never leaves the Gate.
func (g *Gate) DeriveKey(ctx context.Context, s Secret, identity string) (KeyHandle, error) {
	const op = "cryptogate: derive key"

	if s.isZero() {
		return KeyHandle{}, vaulterr.Newf(vaulterr.ErrValidation, op, "empty secret")
	}

	key, err := guard(ctx, g, op, vaulterr.ErrEncryptionFailed, func(e Engine) ([]byte, error) {
		if len(s.export) > 0 {
			return e.ImportSessionKey(s.export)
		}

		return e.DeriveSessionKey(s.password, s.salt)
	})
	if err != nil {
		return KeyHandle{}, err
	}

	h := KeyHandle{id: uuid.NewString()}

	g.keysMu.Lock()
	g.keys[h.id] = &keyEntry{key: key, identity: identity}
	g.keysMu.Unlock()

	g.logger.Debug("account key derived", slog.String("identity", identity))

	return h, nil
}

// ReleaseKey zeroes and forgets the key behind h. Safe to call more than once.
func (g *Gate) ReleaseKey(h KeyHandle) {
	if h.IsZero() {
		return
	}

	g.keysMu.Lock()
	entry, ok := g.keys[h.id]
	delete(g.keys, h.id)
	g.keysMu.Unlock()

	if !ok {
		return
	}

	clear(entry.key)
	g.logger.Debug("account key released", slog.String("identity", entry.identity))
}

// lookupKey returns a copy of the key behind h so a concurrent release cannot
// zero it mid-operation.
func (g *Gate) lookupKey(op string, h KeyHandle) ([]byte, error) {
	g.keysMu.Lock()
	defer g.keysMu.Unlock()

	entry, ok := g.keys[h.id]
	if h.IsZero() || !ok {
		return nil, vaulterr.New(vaulterr.ErrSessionExpired, op, fmt.Errorf("unknown or released key handle"))
	}

	return append([]byte(nil), entry.key...), nil
}
