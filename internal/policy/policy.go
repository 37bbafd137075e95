// Package policy decides whether a password is good enough to protect a file
// or an account, and grades it for display.
package policy

import (
	"context"
	"strings"

	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Strength grades a password by how many requirements it meets.
type Strength int

// Strength levels.
const (
	VeryWeak Strength = iota
	Weak
	Moderate
	Strong
	VeryStrong
)

func (s Strength) String() string {
	switch s {
	case VeryWeak:
		return "Very Weak"
	case Weak:
		return "Weak"
	case Moderate:
		return "Moderate"
	case Strong:
		return "Strong"
	case VeryStrong:
		return "Very Strong"
	default:
		return "Unknown"
	}
}

// StrengthFromMet maps the number of satisfied requirements to a level.
// Zero or one is VeryWeak; each further requirement raises it one step.
func StrengthFromMet(met int) Strength {
	switch {
	case met <= 1:
		return VeryWeak
	case met >= int(VeryStrong)+1:
		return VeryStrong
	default:
		return Strength(met - 1)
	}
}

// Complexity is a complexity check plus its strength grade.
type Complexity struct {
	cryptogate.ComplexityResult
	Strength Strength
}

// Met returns the number of satisfied requirements.
func (c Complexity) Met() int {
	return len(c.Requirements) - len(c.Missing)
}

// Gate is the subset of *cryptogate.Gate the validator needs.
type Gate interface {
	ValidatePasswordComplexity(ctx context.Context, password string) cryptogate.ComplexityResult
	ValidatePasswordConfirmation(ctx context.Context, password, confirm string) cryptogate.ConfirmationResult
}

// Validator checks passwords through the Gate.
type Validator struct {
	gate Gate
}

// New creates a Validator.
func New(gate Gate) *Validator {
	return &Validator{gate: gate}
}

// CheckComplexity grades password. Never fails; an unavailable engine
// yields an invalid VeryWeak result.
func (v *Validator) CheckComplexity(ctx context.Context, password string) Complexity {
	res := v.gate.ValidatePasswordComplexity(ctx, password)
	c := Complexity{ComplexityResult: res}
	c.Strength = StrengthFromMet(c.Met())

	return c
}

// CheckConfirmation compares password with its confirmation.
func (v *Validator) CheckConfirmation(ctx context.Context, password, confirm string) cryptogate.ConfirmationResult {
	return v.gate.ValidatePasswordConfirmation(ctx, password, confirm)
}

// Require returns nil if password meets every requirement, otherwise an
// error matching vaulterr.ErrWeakPassword that lists what is missing.
func (v *Validator) Require(ctx context.Context, password string) error {
	c := v.CheckComplexity(ctx, password)
	if c.Valid {
		return nil
	}

	return &vaulterr.Error{
		Kind: vaulterr.ErrWeakPassword,
		Op:   "policy",
		Msg:  "password too weak, missing: " + strings.Join(c.Missing, ", "),
	}
}

// RequireConfirmed is Require plus a confirmation match, used when a new
// password is chosen.
func (v *Validator) RequireConfirmed(ctx context.Context, password, confirm string) error {
	if err := v.Require(ctx, password); err != nil {
		return err
	}

	if conf := v.CheckConfirmation(ctx, password, confirm); !conf.Match {
		return &vaulterr.Error{Kind: vaulterr.ErrPasswordMismatch, Op: "policy", Msg: conf.Message}
	}

	return nil
}
