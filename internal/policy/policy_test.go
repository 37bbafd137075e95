package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/engine"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()

	g := cryptogate.New(func(context.Context) (cryptogate.Engine, error) {
		return engine.New(engine.WithKDFIterations(1)), nil
	}, nil)

	return New(g)
}

func TestStrengthFromMet(t *testing.T) {
	tests := []struct {
		met  int
		want Strength
	}{
		{0, VeryWeak},
		{1, VeryWeak},
		{2, Weak},
		{3, Moderate},
		{4, Strong},
		{5, VeryStrong},
		{9, VeryStrong},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StrengthFromMet(tt.met), "met=%d", tt.met)
	}
}

func TestStrength_String(t *testing.T) {
	assert.Equal(t, "Very Weak", VeryWeak.String())
	assert.Equal(t, "Moderate", Moderate.String())
	assert.Equal(t, "Very Strong", VeryStrong.String())
	assert.Equal(t, "Unknown", Strength(42).String())
}

func TestCheckComplexity(t *testing.T) {
	v := newTestValidator(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		password string
		want     Strength
		valid    bool
	}{
		{"empty", "", VeryWeak, false},
		{"one class", "abc", VeryWeak, false},
		{"two classes", "abcD", Weak, false},
		{"three classes", "abcD1", Moderate, false},
		{"four classes short", "abcD1!", Strong, false},
		{"all five", "Abcdefghij1!", VeryStrong, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := v.CheckComplexity(ctx, tt.password)
			assert.Equal(t, tt.want, c.Strength)
			assert.Equal(t, tt.valid, c.Valid)
		})
	}
}

func TestRequire(t *testing.T) {
	v := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, v.Require(ctx, "Abcdefghij1!"))

	err := v.Require(ctx, "short")
	require.Error(t, err)
	assert.ErrorIs(t, err, vaulterr.ErrWeakPassword)
	assert.ErrorIs(t, err, vaulterr.ErrValidation)
	assert.True(t, vaulterr.IsRecoverable(err))
	assert.Contains(t, err.Error(), engine.ReqLength)
	assert.Contains(t, err.Error(), engine.ReqSymbol)
}

func TestRequireConfirmed(t *testing.T) {
	v := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, v.RequireConfirmed(ctx, "Abcdefghij1!", "Abcdefghij1!"))

	err := v.RequireConfirmed(ctx, "Abcdefghij1!", "Abcdefghij1?")
	assert.ErrorIs(t, err, vaulterr.ErrPasswordMismatch)

	err = v.RequireConfirmed(ctx, "weak", "weak")
	assert.ErrorIs(t, err, vaulterr.ErrWeakPassword)
}

func TestCheckComplexity_EngineUnavailable(t *testing.T) {
	g := cryptogate.New(func(context.Context) (cryptogate.Engine, error) {
		return nil, assert.AnError
	}, nil)
	v := New(g)

	c := v.CheckComplexity(context.Background(), "Abcdefghij1!")
	assert.False(t, c.Valid)
	assert.Equal(t, VeryWeak, c.Strength)

	assert.ErrorIs(t, v.Require(context.Background(), "Abcdefghij1!"), vaulterr.ErrWeakPassword)
}
