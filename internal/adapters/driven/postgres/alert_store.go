package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AlertStore = (*AlertStore)(nil)

// AlertStore implements driven.AlertStore using PostgreSQL
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new AlertStore
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

const alertColumns = `id, owner_id, file_id, conversation_id, alert_type, severity,
	message, value, metadata, is_read, created_at`

// SaveBatch stores alerts in one transaction
func (s *AlertStore) SaveBatch(ctx context.Context, alerts []*domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO alerts (`+alertColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range alerts {
			metadataJSON, err := json.Marshal(a.SourceMetadata)
			if err != nil {
				return err
			}
			createdAt := a.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx,
				a.ID,
				a.OwnerID,
				a.FileID,
				NullString(a.ConversationID),
				string(a.Type),
				string(a.Severity),
				a.Message,
				nullFloat(a.Value),
				metadataJSON,
				a.IsRead,
				createdAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByFile returns a file's alerts, oldest first
func (s *AlertStore) ListByFile(ctx context.Context, fileID string) ([]*domain.Alert, error) {
	return s.list(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE file_id = $1 ORDER BY created_at, id`,
		fileID)
}

// ListByOwner returns an owner's alerts, newest first
func (s *AlertStore) ListByOwner(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE owner_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id`
	return s.list(ctx, query, ownerID)
}

// MarkRead flags an alert read, scoped to its owner
func (s *AlertStore) MarkRead(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = TRUE WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// DeleteByFile removes every alert raised for a file
func (s *AlertStore) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE file_id = $1`, fileID)
	return err
}

func (s *AlertStore) list(ctx context.Context, query string, args ...any) ([]*domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var conversationID sql.NullString
	var alertType, severity string
	var value sql.NullFloat64
	var metadataJSON []byte

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.FileID,
		&conversationID,
		&alertType,
		&severity,
		&a.Message,
		&value,
		&metadataJSON,
		&a.IsRead,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ConversationID = conversationID.String
	a.Type = domain.AlertType(alertType)
	a.Severity = domain.Severity(severity)
	if value.Valid {
		v := value.Float64
		a.Value = &v
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &a.SourceMetadata); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
