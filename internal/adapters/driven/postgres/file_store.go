package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*FileStore)(nil)

// FileStore implements driven.FileStore using PostgreSQL
type FileStore struct {
	db *DB
}

// NewFileStore creates a new FileStore
func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db}
}

const fileColumns = `id, owner_id, conversation_id, filename, file_type, size_bytes, blob_key,
	status, error_message, chunk_count, temporal_metadata, created_at, processed_at, expires_at`

// Save creates or updates a file record
func (s *FileStore) Save(ctx context.Context, file *domain.File) error {
	temporalJSON, err := marshalTemporal(file.TemporalMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO files (id, owner_id, conversation_id, filename, file_type, size_bytes, blob_key,
			status, error_message, chunk_count, temporal_metadata, detected_date_columns,
			created_at, processed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			chunk_count = EXCLUDED.chunk_count,
			temporal_metadata = EXCLUDED.temporal_metadata,
			detected_date_columns = EXCLUDED.detected_date_columns,
			processed_at = EXCLUDED.processed_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = s.db.ExecContext(ctx, query,
		file.ID,
		file.OwnerID,
		NullString(file.ConversationID),
		file.Filename,
		string(file.FileType),
		file.SizeBytes,
		file.BlobKey,
		string(file.Status),
		NullString(file.ErrorMessage),
		file.ChunkCount,
		temporalJSON,
		pq.Array(detectedColumns(file.TemporalMetadata)),
		file.CreatedAt,
		NullTime(file.ProcessedAt),
		file.ExpiresAt,
	)
	return err
}

// Get retrieves a file by ID
func (s *FileStore) Get(ctx context.Context, id string) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	file, err := scanFile(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return file, err
}

// ListByOwner returns an owner's files, newest first
func (s *FileStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*domain.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// UpdateStatus sets status and error message without touching other fields
func (s *FileStore) UpdateStatus(ctx context.Context, id string, status domain.FileStatus, errorMessage string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = $2, error_message = $3 WHERE id = $1`,
		id, string(status), NullString(errorMessage))
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// SaveTemporalMetadata replaces the file's temporal summary
func (s *FileStore) SaveTemporalMetadata(ctx context.Context, id string, meta *domain.TemporalMetadata) error {
	temporalJSON, err := marshalTemporal(meta)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET temporal_metadata = $2, detected_date_columns = $3 WHERE id = $1`,
		id, temporalJSON, pq.Array(detectedColumns(meta)))
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// Delete removes a file record
func (s *FileStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// MarkExpired flags files past their expiry
func (s *FileStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = $1 WHERE expires_at < $2 AND status <> $1`,
		string(domain.FileStatusExpired), now)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	var file domain.File
	var conversationID, errorMessage sql.NullString
	var fileType, status string
	var temporalJSON []byte
	var processedAt sql.NullTime

	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&conversationID,
		&file.Filename,
		&fileType,
		&file.SizeBytes,
		&file.BlobKey,
		&status,
		&errorMessage,
		&file.ChunkCount,
		&temporalJSON,
		&file.CreatedAt,
		&processedAt,
		&file.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	file.ConversationID = conversationID.String
	file.ErrorMessage = errorMessage.String
	file.FileType = domain.FileType(fileType)
	file.Status = domain.FileStatus(status)
	file.ProcessedAt = TimePtr(processedAt)

	if len(temporalJSON) > 0 {
		var meta domain.TemporalMetadata
		if err := json.Unmarshal(temporalJSON, &meta); err != nil {
			return nil, err
		}
		file.TemporalMetadata = &meta
	}
	return &file, nil
}

// marshalTemporal encodes temporal metadata, mapping nil to SQL NULL.
func marshalTemporal(meta *domain.TemporalMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func detectedColumns(meta *domain.TemporalMetadata) []string {
	if meta == nil || meta.DetectedDateColumns == nil {
		return []string{}
	}
	return meta.DetectedDateColumns
}
