package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure vespaAdminService implements VespaAdminService
var _ driving.VespaAdminService = (*vespaAdminService)(nil)

// ErrNoApplication is returned when merging into a cluster that has nothing deployed.
var ErrNoApplication = errors.New("no existing Vespa application found; use dev mode or deploy your application package first")

// VespaAdminConfig holds the dependencies of the Vespa admin service
type VespaAdminConfig struct {
	Deployer driven.VespaDeployer
	Endpoint string // reported in Status

	// EmbeddingDim must match the embedding model. Defaults to domain.EmbeddingDimensions.
	EmbeddingDim int

	Logger *slog.Logger
}

// vespaAdminService implements the VespaAdminService interface
type vespaAdminService struct {
	deployer     driven.VespaDeployer
	endpoint     string
	embeddingDim int
	logger       *slog.Logger
}

// NewVespaAdminService creates a new VespaAdminService
func NewVespaAdminService(cfg VespaAdminConfig) driving.VespaAdminService {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = domain.EmbeddingDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &vespaAdminService{
		deployer:     cfg.Deployer,
		endpoint:     cfg.Endpoint,
		embeddingDim: cfg.EmbeddingDim,
		logger:       cfg.Logger,
	}
}

// Deploy checks the cluster and deploys our schemas
func (s *vespaAdminService) Deploy(ctx context.Context, devMode bool) (*domain.VespaDeployResult, error) {
	// The index schema is built for one vector size; a different model needs a migration
	if s.embeddingDim != domain.EmbeddingDimensions {
		return nil, fmt.Errorf("%w: embedding dimension %d does not match the index schema (%d)",
			domain.ErrInvalidInput, s.embeddingDim, domain.EmbeddingDimensions)
	}

	if err := s.deployer.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("vespa health check failed: %w", err)
	}

	var existingPkg *driven.AppPackage
	if !devMode {
		pkg, err := s.deployer.FetchAppPackage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch existing app package: %w", err)
		}
		if pkg == nil {
			return nil, ErrNoApplication
		}
		existingPkg = pkg
	}

	result, err := s.deployer.Deploy(ctx, s.embeddingDim, existingPkg)
	if err != nil {
		return nil, fmt.Errorf("vespa schema deployment failed: %w", err)
	}

	s.logger.Info("vespa schemas deployed",
		"version", result.SchemaVersion,
		"dev_mode", devMode,
		"schemas", result.Schemas)
	return result, nil
}

// Status returns cluster health and deployed schemas. Failures are reported
// in the status, not as an error.
func (s *vespaAdminService) Status(ctx context.Context) (*domain.VespaStatus, error) {
	status := &domain.VespaStatus{Endpoint: s.endpoint}

	if err := s.deployer.HealthCheck(ctx); err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Healthy = true

	pkg, err := s.deployer.FetchAppPackage(ctx)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Schemas = pkg.SchemaNames()
	return status, nil
}

// HealthCheck performs a health check on the Vespa cluster
func (s *vespaAdminService) HealthCheck(ctx context.Context) error {
	return s.deployer.HealthCheck(ctx)
}
