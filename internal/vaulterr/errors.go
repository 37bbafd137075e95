// Package vaulterr defines the error taxonomy shared by the session and
// transfer layers. Every component boundary returns errors that match one of
// these kinds via errors.Is, so the CLI can decide between "fix your input",
// "log in again" and "try again later" without string matching.
package vaulterr

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is(err, vaulterr.ErrSessionExpired) to check.
var (
	// ErrCryptoInit means the crypto engine failed to load. Fatal for the process.
	ErrCryptoInit = errors.New("crypto engine initialization failed")

	// ErrValidation covers recoverable input problems (password policy, confirmation).
	ErrValidation = errors.New("validation failed")

	// ErrSessionExpired means the account key is gone: expired, cleared or never created.
	ErrSessionExpired = errors.New("secure session expired")

	// ErrAuthenticationRequired means the token pair is unusable and the user must log in.
	ErrAuthenticationRequired = errors.New("authentication required")

	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	ErrNetwork        = errors.New("network error")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// Validation sub-kinds. Both match ErrValidation as well.
var (
	ErrWeakPassword     = fmt.Errorf("%w: password does not meet policy", ErrValidation)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email address", ErrValidation)
)

// Error is a classified failure. Kind is one of the sentinels above; Err is
// the underlying cause (an HTTP error, an engine error, ...). Unwrap exposes
// both so callers can match on either.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = e.Msg
	}

	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// New builds a classified error.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error with a human-readable message.
func Newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsReauth reports whether err means the user has to authenticate again.
func IsReauth(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired) || errors.Is(err, ErrSessionExpired)
}

// IsRecoverable reports whether the user can fix err in place (e.g. a weak
// or wrong custom password) without re-authenticating.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDecryptionFailed)
}
