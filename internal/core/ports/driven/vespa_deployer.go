package driven

import (
	"context"
	"sort"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// VespaDeployer handles Vespa schema deployment
type VespaDeployer interface {
	// Deploy uploads the application package with the user_document and
	// knowledge schemas at the given embedding dimension.
	// If existingPkg is provided, our schemas are merged into it instead of
	// using the embedded services.xml.
	Deploy(ctx context.Context, embeddingDim int, existingPkg *AppPackage) (*domain.VespaDeployResult, error)

	// FetchAppPackage retrieves the currently deployed application package.
	// Returns nil if no application is deployed.
	FetchAppPackage(ctx context.Context) (*AppPackage, error)

	// HealthCheck verifies the config server is healthy
	HealthCheck(ctx context.Context) error
}

// AppPackage represents a Vespa application package
type AppPackage struct {
	ServicesXML string            `json:"services_xml"`
	HostsXML    string            `json:"hosts_xml,omitempty"`
	Schemas     map[string]string `json:"schemas"` // filename -> content
}

// SchemaNames lists the schema names in the package, without the .sd suffix.
func (p *AppPackage) SchemaNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Schemas))
	for filename := range p.Schemas {
		if strings.HasSuffix(filename, ".sd") {
			names = append(names, strings.TrimSuffix(filename, ".sd"))
		}
	}
	sort.Strings(names)
	return names
}
