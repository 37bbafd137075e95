package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// stretchBufLen is the SHAKE-256 working buffer size (512 bits).
const stretchBufLen = 64

// GenerateSalt returns a fresh random 16-byte salt.
func (e *Engine) GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("engine: generating salt: %w", err)
	}

	return salt, nil
}

// DeriveSessionKey derives the 32-byte account key from the account password
// and the account salt. Deterministic, so the same account always gets the
// same key.
func (e *Engine) DeriveSessionKey(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	out := make([]byte, keyLen)
	d := sha3.NewShake256()
	d.Write([]byte(password))
	d.Write(salt)
	d.Write([]byte("sessionkey"))
	d.Read(out)

	return out, nil
}

// ImportSessionKey turns a server-issued session export into a 32-byte key.
func (e *Engine) ImportSessionKey(export []byte) ([]byte, error) {
	if len(export) == 0 {
		return nil, fmt.Errorf("%w: empty session export", ErrInvalidKey)
	}

	out := make([]byte, keyLen)
	d := sha3.NewShake256()
	d.Write(export)
	d.Write([]byte("sessionkey-import"))
	d.Read(out)

	return out, nil
}

// stretchKey derives a file key from a custom password with iterated SHAKE-256.
func (e *Engine) stretchKey(password, salt []byte) []byte {
	buf := make([]byte, stretchBufLen)

	d := sha3.NewShake256()
	d.Write(password)
	d.Write(salt)
	d.Read(buf)

	for i := range e.kdfIterations {
		counter := []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}

		d.Reset()
		d.Write(buf)
		d.Write(counter)
		d.Read(buf)
	}

	out := make([]byte, keyLen)
	d.Reset()
	d.Write(buf)
	d.Write([]byte("key"))
	d.Read(out)

	return out
}

// EncryptWithKey seals data under a 32-byte account key.
func (e *Engine) EncryptWithKey(data, key []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, keyLen, len(key))
	}

	salt, err := e.GenerateSalt()
	if err != nil {
		return nil, err
	}

	return seal(data, key, keyTypeAccount, salt)
}

// EncryptWithPassword seals data under a key stretched from password.
func (e *Engine) EncryptWithPassword(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	salt, err := e.GenerateSalt()
	if err != nil {
		return nil, err
	}

	return seal(data, e.stretchKey([]byte(password), salt), keyTypeCustom, salt)
}

// DecryptWithKey opens an account-key envelope.
func (e *Engine) DecryptWithKey(envelope, key []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, keyLen, len(key))
	}

	keyType, _, body, err := parseHeader(envelope)
	if err != nil {
		return nil, err
	}

	if keyType != keyTypeAccount {
		return nil, ErrWrongKeyType
	}

	return open(body, key)
}

// DecryptWithPassword opens a custom-password envelope.
func (e *Engine) DecryptWithPassword(envelope []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	keyType, salt, body, err := parseHeader(envelope)
	if err != nil {
		return nil, err
	}

	if keyType != keyTypeCustom {
		return nil, ErrWrongKeyType
	}

	return open(body, e.stretchKey([]byte(password), salt))
}

// seal produces version | keyType | salt | nonce | ciphertext+tag.
func seal(data, key []byte, keyType byte, salt []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("engine: generating nonce: %w", err)
	}

	header := make([]byte, 0, headerLen)
	header = append(header, formatVersion, keyType)
	header = append(header, salt...)

	out := make([]byte, 0, headerLen+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)

	return gcm.Seal(out, nonce, data, header), nil
}

func parseHeader(envelope []byte) (keyType byte, salt, body []byte, err error) {
	if len(envelope) < headerLen {
		return 0, nil, nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(envelope))
	}

	if envelope[0] != formatVersion {
		return 0, nil, nil, fmt.Errorf("%w: 0x%02x", ErrUnsupported, envelope[0])
	}

	// The whole header is bound into the tag as associated data, so a flipped
	// key type or salt byte fails authentication.
	return envelope[1], envelope[2:headerLen], envelope, nil
}

func open(envelope, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	rest := envelope[headerLen:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrMalformed)
	}

	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, envelope[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("engine: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("engine: creating GCM: %w", err)
	}

	return gcm, nil
}
