package store

import (
	"context"
	"database/sql"
	"errors"

	"capset/internal/models"
)

// GetMetadata returns the value for key and whether it is set.
func (t *Tx) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetMetadata inserts or replaces one metadata value.
func (t *Tx) SetMetadata(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// DeleteMetadata removes one metadata key.
func (t *Tx) DeleteMetadata(ctx context.Context, key string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM metadata WHERE key = ?", key)
}

// ListMetadata lists all metadata ordered by key.
func (t *Tx) ListMetadata(ctx context.Context) ([]models.MetadataEntry, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT key, value FROM metadata ORDER BY key ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.MetadataEntry{}
	for rows.Next() {
		var entry models.MetadataEntry
		if err := rows.Scan(&entry.Key, &entry.Value); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListSelection returns the selected image ids in selection order.
func (t *Tx) ListSelection(ctx context.Context) ([]string, error) {
	return t.queryStrings(ctx, "SELECT image_id FROM selection ORDER BY position ASC")
}

// ReplaceSelection replaces the selection with ids, in order.
func (t *Tx) ReplaceSelection(ctx context.Context, ids []string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM selection"); err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := t.tx.ExecContext(ctx, "INSERT INTO selection (image_id, position) VALUES (?, ?)", id, i); err != nil {
			return err
		}
	}
	return nil
}
