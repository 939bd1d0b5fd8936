package storage

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Status       string
	OTPEnabled   bool
	IsAdmin      bool
	IsSupport    bool
	IsSupervisor bool
	IsKYC        bool
	IsTech       bool
	CreatedAt    time.Time
}

// UserStatusFrozen marks an administratively deactivated account. Any valid
// credential for such an account is rejected.
const UserStatusFrozen = "frozen"

type APIKey struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Key       string
	Secret    string
	Type      string
	Name      string
	Active    bool
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

type OTPSecret struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Secret    string
	Used      bool
	CreatedAt time.Time
}

type ResetCode struct {
	Code      uuid.UUID
	UserID    uuid.UUID
	Used      bool
	CreatedAt time.Time
}
