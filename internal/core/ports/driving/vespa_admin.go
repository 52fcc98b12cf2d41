package driving

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// VespaAdminService manages the search cluster's schemas
type VespaAdminService interface {
	// Deploy uploads the user_document and knowledge schemas.
	// In dev mode the embedded services.xml is deployed; otherwise the
	// schemas are merged into the application already running.
	Deploy(ctx context.Context, devMode bool) (*domain.VespaDeployResult, error)

	// Status reports cluster health and which schemas are deployed.
	Status(ctx context.Context) (*domain.VespaStatus, error)

	// HealthCheck verifies the cluster is reachable
	HealthCheck(ctx context.Context) error
}
