package account

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID             string    `json:"-"`
	Email          string    `json:"email"`
	CredentialHash string    `json:"-"` // never expose hash in JSON
	Gate           Gate      `json:"gate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary is the read shape returned by listings.
type Summary struct {
	Email   string `json:"email"`
	Gate    Gate   `json:"gate"`
	Enabled bool   `json:"enabled"`
}

func (a Account) Summary() Summary {
	return Summary{
		Email:   a.Email,
		Gate:    a.Gate,
		Enabled: a.Gate.Allows(),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetGateRequest accepts either the tri-state gate or the legacy boolean.
type SetGateRequest struct {
	Gate    *string `json:"gate" binding:"omitempty,oneof=pending enabled disabled"`
	Enabled *bool   `json:"enabled"`
}

// a factory to build a pending Account for a freshly registered email

func New(email, credentialHash string) Account {
	return Account{
		ID:             uuid.NewString(),
		Email:          email,
		CredentialHash: credentialHash,
		Gate:           GatePending,
		CreatedAt:      time.Now().UTC(),
	}
}
