package domain

// Index schemas deployed to Vespa
const (
	SchemaUserDocument = "user_document"
	SchemaKnowledge    = "knowledge"
)

// IndexSchemas lists every schema the application package must contain.
var IndexSchemas = []string{SchemaUserDocument, SchemaKnowledge}

// VespaDeployResult represents the result of a schema deployment
type VespaDeployResult struct {
	Success       bool     `json:"success"`
	Schemas       []string `json:"schemas"`
	EmbeddingDim  int      `json:"embedding_dim"`
	SchemaVersion string   `json:"schema_version"`
	// Merged is true when the schemas were added to an existing application package.
	Merged  bool   `json:"merged"`
	Message string `json:"message,omitempty"`
}

// VespaStatus describes the search cluster as seen by this service
type VespaStatus struct {
	Endpoint string   `json:"endpoint"`
	Healthy  bool     `json:"healthy"`
	Schemas  []string `json:"schemas,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Ready reports whether the cluster is healthy and carries both index schemas.
func (s *VespaStatus) Ready() bool {
	if s == nil || !s.Healthy {
		return false
	}
	have := make(map[string]bool, len(s.Schemas))
	for _, name := range s.Schemas {
		have[name] = true
	}
	for _, name := range IndexSchemas {
		if !have[name] {
			return false
		}
	}
	return true
}
