package domain

import "time"

// DefaultTokenTTL is the lifetime of tokens issued by the CLI.
const DefaultTokenTTL = 24 * time.Hour

// Identity is the authenticated caller. OwnerID scopes every file,
// conversation, alert and document the caller can reach.
type Identity struct {
	OwnerID   string    `json:"owner_id"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
