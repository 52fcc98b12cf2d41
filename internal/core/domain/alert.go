package domain

import "time"

// AlertType classifies an anomaly finding.
type AlertType string

const (
	AlertTypeNegativeStock     AlertType = "negative_stock"
	AlertTypeNegativeQuantity  AlertType = "negative_quantity"
	AlertTypeDateInconsistency AlertType = "date_inconsistency"
	AlertTypeLeadTimeOutlier   AlertType = "lead_time_outlier"
)

// Severity ranks alerts. Critical sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns a sort key where lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Alert is an anomaly detected in a chunk.
type Alert struct {
	ID             string        `json:"id,omitempty"`
	OwnerID        string        `json:"owner_id,omitempty"`
	FileID         string        `json:"file_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Type           AlertType     `json:"alert_type"`
	Severity       Severity      `json:"severity"`
	Message        string        `json:"message"`
	Value          *float64      `json:"value,omitempty"`
	SourceMetadata ChunkMetadata `json:"metadata"`
	IsRead         bool          `json:"is_read"`
	CreatedAt      time.Time     `json:"created_at"`
}
