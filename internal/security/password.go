package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently ignores anything past 72 bytes, so longer passwords are rejected.
const maxBcryptPasswordBytes = 72

const (
	MinProductionCost = 10
	DefaultBcryptCost = 12
)

var (
	ErrPasswordTooLong = errors.New("password exceeds the hasher's maximum length")
	ErrMalformedHash   = errors.New("malformed credential hash")
)

type BcryptHasher struct {
	cost int
}

// NewBcryptHasher builds a bcrypt hasher. Costs outside bcrypt's range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}

	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash hashes a plain text password with bcrypt.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if len(plain) > maxBcryptPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}

	return string(hash), nil
}

// Verify compares a bcrypt hash with a plaintext password in constant time.
func (h *BcryptHasher) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))

	if err == nil {
		return true, nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
}
