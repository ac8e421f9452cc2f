package entity

import "time"

const (
	TokenEnvironmentTest = "TEST"
	TokenEnvironmentLive = "LIVE"

	TokenStatusActive  = "ACTIVE"
	TokenStatusRevoked = "REVOKED"
)

// ApiToken is owned by the auth surface; this service reads it only to
// decide whether a payment's originating token is still valid.
type ApiToken struct {
	ID uint64

	ProjectID   uint64
	Environment string
	Status      string

	RequestCount int64
	LastUsedAt   *time.Time

	CreatedAt time.Time
}
