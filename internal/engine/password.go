package engine

import (
	"encoding/hex"
	"fmt"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// Requirement labels, in display order.
const (
	ReqLength    = "At least 12 characters"
	ReqUppercase = "Uppercase letter"
	ReqLowercase = "Lowercase letter"
	ReqDigit     = "Number"
	ReqSymbol    = "Special character"
)

// Requirements lists every complexity requirement in display order.
var Requirements = []string{ReqLength, ReqUppercase, ReqLowercase, ReqDigit, ReqSymbol}

// pointsPerRequirement maps five requirements onto a 0-100 score.
const pointsPerRequirement = 20

// Complexity is the result of a password complexity check.
type Complexity struct {
	Valid        bool
	Score        int
	Message      string
	Requirements []string
	Missing      []string
}

// Confirmation is the result of a password confirmation check.
type Confirmation struct {
	Match   bool
	Message string
	Status  string // "match", "mismatch" or "empty"
}

// HashPassword derives the login credential sent to the server from the
// password and the account salt with Argon2id. Returns lowercase hex.
func (e *Engine) HashPassword(password string, salt []byte) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	if len(salt) == 0 {
		return "", fmt.Errorf("engine: salt must not be empty")
	}

	key := argon2.IDKey([]byte(password), salt, e.argonTime, e.argonMemory, e.argonThreads, keyLen)

	return hex.EncodeToString(key), nil
}

// ValidatePasswordComplexity checks password against the five requirements.
// A password is valid only when all of them are met.
func (e *Engine) ValidatePasswordComplexity(password string) (Complexity, error) {
	met := map[string]bool{
		ReqLength: len([]rune(password)) >= minPasswordLength,
	}

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			met[ReqUppercase] = true
		case unicode.IsLower(r):
			met[ReqLowercase] = true
		case unicode.IsDigit(r):
			met[ReqDigit] = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			met[ReqSymbol] = true
		}
	}

	res := Complexity{Requirements: append([]string(nil), Requirements...)}

	for _, req := range Requirements {
		if met[req] {
			res.Score += pointsPerRequirement
		} else {
			res.Missing = append(res.Missing, req)
		}
	}

	res.Valid = len(res.Missing) == 0
	if res.Valid {
		res.Message = "Password meets all requirements"
	} else {
		res.Message = fmt.Sprintf("Password is missing %d of %d requirements", len(res.Missing), len(Requirements))
	}

	return res, nil
}

// ValidatePasswordConfirmation compares a password with its confirmation.
func (e *Engine) ValidatePasswordConfirmation(password, confirm string) (Confirmation, error) {
	switch {
	case confirm == "":
		return Confirmation{Message: "Please confirm your password", Status: "empty"}, nil
	case password == confirm:
		return Confirmation{Match: true, Message: "Passwords match", Status: "match"}, nil
	default:
		return Confirmation{Message: "Passwords do not match", Status: "mismatch"}, nil
	}
}
