package domain

import (
	"strconv"
	"time"
)

// SearchMode selects the ranking profile used by the search engine
type SearchMode string

const (
	SearchModeHybrid       SearchMode = "hybrid"   // BM25 + vector (default)
	SearchModeTextOnly     SearchMode = "bm25"     // BM25 only
	SearchModeSemanticOnly SearchMode = "semantic" // Vector only
)

// Default retrieval parameters
const (
	DefaultTopK        = 5
	DefaultDocumentTTL = 24 * time.Hour
	// EmbeddingDimensions is fixed by the index schema.
	EmbeddingDimensions = 768
)

// DocumentFilter scopes user-document queries and deletes.
// OwnerID is required for searches; FileID narrows to one upload.
type DocumentFilter struct {
	OwnerID   string
	FileID    string
	ExpiredAt *time.Time // delete documents whose expiry is before this instant
}

// IndexedDocument is one chunk as stored in the search engine.
type IndexedDocument struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"embedding"`
	Metadata  ChunkMetadata `json:"metadata"`
	OwnerID   string        `json:"owner_id"`
	FileID    string        `json:"file_id"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// DocumentID builds the stable id of the idx-th chunk of a file.
func DocumentID(fileID string, idx int) string {
	return fileID + "_" + strconv.Itoa(idx)
}

// SearchQuery is a hybrid query against user documents.
type SearchQuery struct {
	Text      string
	Embedding []float32
	Filter    DocumentFilter
	TopK      int
	Mode      SearchMode
}

// SearchResult is one retrieved user-document chunk.
type SearchResult struct {
	Content        string        `json:"content"`
	Metadata       ChunkMetadata `json:"metadata"`
	RelevanceScore float64       `json:"relevance_score"`
	VectorDistance float64       `json:"vector_distance"`
}

// KnowledgeItem is a permanent, owner-agnostic reference entry.
type KnowledgeItem struct {
	ID          string            `json:"id" yaml:"id"`
	Category    string            `json:"category" yaml:"category"`
	Subcategory string            `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Title       string            `json:"title" yaml:"title"`
	Content     string            `json:"content" yaml:"content"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Embedding   []float32         `json:"-" yaml:"-"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
}

// EmbeddingText is the text embedded for a knowledge item.
func (k *KnowledgeItem) EmbeddingText() string {
	return k.Title + "\n\n" + k.Content
}

// KnowledgeQuery searches the knowledge base.
type KnowledgeQuery struct {
	Text      string
	Embedding []float32
	Category  string
	Tags      []string
	TopK      int
}

// KnowledgeResult is one retrieved knowledge entry.
type KnowledgeResult struct {
	Item           KnowledgeItem `json:"item"`
	RelevanceScore float64       `json:"relevance_score"`
	VectorDistance float64       `json:"vector_distance"`
}

// CategoryCount is a knowledge category with its entry count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// RetrievedContext is the merged output of knowledge and document retrieval.
type RetrievedContext struct {
	Knowledge []KnowledgeResult `json:"knowledge"`
	Documents []SearchResult    `json:"documents"`
	Text      string            `json:"context"`
}

// HasResults reports whether either retrieval returned anything.
func (r *RetrievedContext) HasResults() bool {
	return r != nil && (len(r.Knowledge) > 0 || len(r.Documents) > 0)
}

// RetrievalRequest is a user-document search issued through the retrieval service.
// A non-nil Embedding is reused instead of embedding Query again.
type RetrievalRequest struct {
	Query     string
	OwnerID   string
	FileID    string
	TopK      int
	Embedding []float32
}
