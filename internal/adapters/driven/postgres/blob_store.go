package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore implements driven.BlobStore on a BYTEA table.
// When an encryptor is set, blobs are sealed at rest.
type BlobStore struct {
	db        *DB
	encryptor *BlobEncryptor
}

// NewBlobStore creates a new BlobStore. encryptor may be nil.
func NewBlobStore(db *DB, encryptor *BlobEncryptor) *BlobStore {
	return &BlobStore{db: db, encryptor: encryptor}
}

// Put stores data under key, replacing any previous blob
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string, expiresAt time.Time) error {
	if key == "" {
		return fmt.Errorf("%w: blob key is required", domain.ErrInvalidInput)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stored := data
	encrypted := false
	if s.encryptor != nil {
		sealed, err := s.encryptor.Seal(key, data)
		if err != nil {
			return err
		}
		stored = sealed
		encrypted = true
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, data, content_type, encrypted, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			encrypted = EXCLUDED.encrypted,
			expires_at = EXCLUDED.expires_at
	`, key, stored, contentType, encrypted, expiresAt)
	return err
}

// Get returns the bytes stored under key
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	var encrypted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT data, encrypted FROM blobs WHERE key = $1`, key).Scan(&data, &encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !encrypted {
		return data, nil
	}
	if s.encryptor == nil {
		return nil, fmt.Errorf("blob %s is encrypted but no key is configured", key)
	}
	return s.encryptor.Open(key, data)
}

// Delete removes a blob; a missing key is not an error
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = $1`, key)
	return err
}

// DeleteExpired removes blobs past their expiry
func (s *BlobStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
