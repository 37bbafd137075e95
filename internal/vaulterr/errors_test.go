package vaulterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(ErrNetwork, "upload", cause)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, "upload: network error: connection reset", err.Error())
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("put report.pdf: %w", New(ErrDecryptionFailed, "download", nil))

	assert.ErrorIs(t, err, ErrDecryptionFailed)

	var ve *Error
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "download", ve.Op)
}

func TestNewf_UsesMessage(t *testing.T) {
	err := Newf(ErrWeakPassword, "policy", "missing %s", "uppercase letter")

	assert.Equal(t, "policy: missing uppercase letter", err.Error())
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidationSubKinds(t *testing.T) {
	assert.ErrorIs(t, ErrWeakPassword, ErrValidation)
	assert.ErrorIs(t, ErrPasswordMismatch, ErrValidation)
	assert.ErrorIs(t, ErrInvalidEmail, ErrValidation)
}

func TestIsReauth(t *testing.T) {
	assert.True(t, IsReauth(New(ErrSessionExpired, "upload", nil)))
	assert.True(t, IsReauth(New(ErrAuthenticationRequired, "refresh", nil)))
	assert.False(t, IsReauth(New(ErrUploadFailed, "upload", nil)))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(ErrWeakPassword))
	assert.True(t, IsRecoverable(New(ErrDecryptionFailed, "download", nil)))
	assert.False(t, IsRecoverable(New(ErrIntegrityCheckFailed, "download", nil)))
}
