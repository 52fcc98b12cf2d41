package vespa

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

//go:embed schemas/services.xml schemas/user_document.sd.tmpl schemas/knowledge.sd.tmpl
var schemaFS embed.FS

// Verify interface compliance
var _ driven.VespaDeployer = (*Deployer)(nil)

// errNotFound marks a missing path on the config server content API.
var errNotFound = errors.New("not found")

// DeployerConfig holds the config server connection settings
type DeployerConfig struct {
	// Endpoint is the config server (e.g., http://localhost:19071)
	Endpoint string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Deployer implements driven.VespaDeployer
type Deployer struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeployer creates a new Vespa deployer
func NewDeployer(cfg DeployerConfig) (*Deployer, error) {
	endpoint, err := validateEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Deployer{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}, nil
}

// validateEndpoint accepts http(s) URLs only and strips a trailing slash.
func validateEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "", fmt.Errorf("%w: vespa endpoint must be an http(s) URL, got %q", domain.ErrInvalidInput, endpoint)
	}
	return endpoint, nil
}

// Deploy deploys the application package.
// If existingPkg is provided, merges our schemas into it instead of using the embedded services.xml.
func (d *Deployer) Deploy(ctx context.Context, embeddingDim int, existingPkg *driven.AppPackage) (*domain.VespaDeployResult, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", domain.ErrInvalidInput)
	}

	schemas, err := renderSchemas(embeddingDim)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schemas: %w", err)
	}

	var zipData []byte
	if existingPkg != nil {
		zipData, err = createMergedAppPackage(existingPkg, schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to create merged app package: %w", err)
		}
	} else {
		services, err := schemaFS.ReadFile("schemas/services.xml")
		if err != nil {
			return nil, fmt.Errorf("failed to read services.xml: %w", err)
		}
		zipData, err = createAppPackage(map[string][]byte{"services.xml": services}, schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to create app package: %w", err)
		}
	}

	deployURL := d.endpoint + "/application/v2/tenant/default/prepareandactivate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deployURL, bytes.NewReader(zipData))
	if err != nil {
		return nil, fmt.Errorf("failed to create deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientIOError{Op: "vespa deploy", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("deployment failed with status %s: %s", resp.Status, string(body))
	}

	version := fmt.Sprintf("v1-hybrid-dim%d", embeddingDim)
	d.logger.Info("deployed vespa schemas", "version", version, "merged", existingPkg != nil)

	return &domain.VespaDeployResult{
		Success:       true,
		Schemas:       append([]string(nil), domain.IndexSchemas...),
		EmbeddingDim:  embeddingDim,
		SchemaVersion: version,
		Merged:        existingPkg != nil,
		Message:       fmt.Sprintf("Deployed %s", strings.Join(domain.IndexSchemas, ", ")),
	}, nil
}

// FetchAppPackage retrieves the currently deployed application package from Vespa
func (d *Deployer) FetchAppPackage(ctx context.Context) (*driven.AppPackage, error) {
	baseURL := d.endpoint + "/application/v2/tenant/default/application/default/environment/default/region/default/instance/default/content"

	servicesXML, err := d.fetchContent(ctx, baseURL+"/services.xml")
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch services.xml: %w", err)
	}

	pkg := &driven.AppPackage{
		ServicesXML: servicesXML,
		Schemas:     make(map[string]string),
	}

	if hostsXML, err := d.fetchContent(ctx, baseURL+"/hosts.xml"); err == nil {
		pkg.HostsXML = hostsXML
	}

	// The directory listing is a JSON array of URLs
	listing, err := d.fetchContent(ctx, baseURL+"/schemas/")
	if err != nil {
		return pkg, nil
	}
	var schemaURLs []string
	if err := json.Unmarshal([]byte(listing), &schemaURLs); err != nil {
		return nil, fmt.Errorf("failed to parse schema listing: %w", err)
	}
	for _, schemaURL := range schemaURLs {
		filename := schemaURL[strings.LastIndex(schemaURL, "/")+1:]
		if !strings.HasSuffix(filename, ".sd") {
			continue
		}
		content, err := d.fetchContent(ctx, baseURL+"/schemas/"+filename)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch schema %s: %w", filename, err)
		}
		pkg.Schemas[filename] = content
	}

	return pkg, nil
}

// fetchContent fetches content from a Vespa content API URL
func (d *Deployer) fetchContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &domain.TransientIOError{Op: "vespa fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errNotFound
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// HealthCheck verifies the config server is healthy
func (d *Deployer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/state/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &domain.TransientIOError{Op: "vespa health check", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unhealthy: %s - %s", resp.Status, string(body))
	}
	return nil
}

// renderSchemas fills the embedding dimension into every schema template.
// The result maps package path to content.
func renderSchemas(embeddingDim int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(domain.IndexSchemas))
	for _, name := range domain.IndexSchemas {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".sd.tmpl")
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Parse(string(raw))
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, struct{ EmbeddingDim int }{embeddingDim}); err != nil {
			return nil, err
		}
		out["schemas/"+name+".sd"] = buf.Bytes()
	}
	return out, nil
}

// createAppPackage zips files in a stable order.
func createAppPackage(files ...map[string][]byte) ([]byte, error) {
	merged := make(map[string][]byte)
	for _, f := range files {
		for name, content := range f {
			merged[name] = content
		}
	}
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zipWriter.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(merged[name]); err != nil {
			return nil, err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// createMergedAppPackage keeps the existing package and replaces or adds our schemas
func createMergedAppPackage(existingPkg *driven.AppPackage, ours map[string][]byte) ([]byte, error) {
	base := map[string][]byte{
		"services.xml": []byte(addDocumentTypes(existingPkg.ServicesXML)),
	}
	if existingPkg.HostsXML != "" {
		base["hosts.xml"] = []byte(existingPkg.HostsXML)
	}
	for filename, content := range existingPkg.Schemas {
		base["schemas/"+filename] = []byte(content)
	}
	return createAppPackage(base, ours)
}

var documentsTag = regexp.MustCompile(`(<documents[^>]*>)`)

// addDocumentTypes adds our document types to every <documents> section that lacks them
func addDocumentTypes(servicesXML string) string {
	var missing []string
	for _, name := range domain.IndexSchemas {
		if !strings.Contains(servicesXML, fmt.Sprintf(`type="%s"`, name)) {
			missing = append(missing, fmt.Sprintf(`
            <document type="%s" mode="index"/>`, name))
		}
	}
	if len(missing) == 0 {
		return servicesXML
	}
	return documentsTag.ReplaceAllString(servicesXML, "${1}"+strings.Join(missing, ""))
}
