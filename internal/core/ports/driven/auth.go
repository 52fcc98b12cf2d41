package driven

import (
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// TokenVerifier validates bearer tokens issued by the identity provider
type TokenVerifier interface {
	// ParseToken validates a token and returns the caller.
	// Invalid or expired tokens return domain.ErrUnauthorized.
	ParseToken(token string) (*domain.Identity, error)
}

// TokenIssuer signs tokens. Used by the CLI to mint development tokens.
type TokenIssuer interface {
	GenerateToken(identity *domain.Identity, ttl time.Duration) (string, error)
}
