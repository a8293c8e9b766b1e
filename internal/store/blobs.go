package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"capset/internal/models"
)

const blobColumns = "id, digest, size_bytes, storage_backend, blob_key, created_at"

// UpsertBlob inserts a blob if absent and returns the canonical row by digest.
func (t *Tx) UpsertBlob(ctx context.Context, blob *models.Blob) (*models.Blob, error) {
	if blob == nil {
		return nil, fmt.Errorf("blob is required")
	}
	blob.Digest = strings.ToLower(strings.TrimSpace(blob.Digest))
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	if blob.Digest == "" {
		return nil, fmt.Errorf("digest is required")
	}
	if blob.BlobKey == "" {
		return nil, fmt.Errorf("blob_key is required")
	}
	if blob.SizeBytes < 0 {
		return nil, fmt.Errorf("size_bytes must be >= 0")
	}

	if strings.TrimSpace(blob.ID) == "" {
		generated, err := GenerateID(BlobIDPrefix, func(id string) (bool, error) {
			return t.exists(ctx, "SELECT 1 FROM blobs WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return nil, err
		}
		blob.ID = generated
	}
	if strings.TrimSpace(blob.StorageBackend) == "" {
		blob.StorageBackend = "local_cas"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (id, digest, size_bytes, storage_backend, blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.Digest, blob.SizeBytes, blob.StorageBackend, blob.BlobKey, formatTime(blob.CreatedAt)); err != nil {
		return nil, err
	}

	canonical, err := scanBlob(t.tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE digest = ?`, blob.Digest))
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		return nil, fmt.Errorf("blob not found after upsert")
	}
	return canonical, nil
}

// GetBlob returns one blob by id, or nil when absent.
func (t *Tx) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	return scanBlob(t.tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id))
}

// RestoreBlob re-inserts a blob row captured earlier. Existing rows are kept.
func (t *Tx) RestoreBlob(ctx context.Context, blob models.Blob) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (id, digest, size_bytes, storage_backend, blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.Digest, blob.SizeBytes, blob.StorageBackend, blob.BlobKey, formatTime(blob.CreatedAt))
	return err
}

// ListUnreferencedBlobs returns blobs that no image references.
func (t *Tx) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.digest, b.size_bytes, b.storage_backend, b.blob_key, b.created_at
		FROM blobs b
		LEFT JOIN images i ON i.blob_id = b.id
		WHERE i.id IS NULL
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

// ListBlobKeys returns the storage key of every blob row.
func (t *Tx) ListBlobKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT blob_key FROM blobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// DeleteBlob deletes one blob row by id.
func (t *Tx) DeleteBlob(ctx context.Context, id string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM blobs WHERE id = ?", id)
}

func scanBlob(scanner rowScanner) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.Digest, &blob.SizeBytes, &blob.StorageBackend, &blob.BlobKey, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsed
	return &blob, nil
}
