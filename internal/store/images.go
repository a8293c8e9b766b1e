package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"capset/internal/models"
)

const imageColumns = "id, path, blob_id, created_at"

// NewImageID returns an unused image id.
func (t *Tx) NewImageID(ctx context.Context) (string, error) {
	return GenerateID(ImageIDPrefix, func(id string) (bool, error) {
		return t.exists(ctx, "SELECT 1 FROM images WHERE id = ? LIMIT 1", id)
	})
}

// InsertImage inserts one image row.
func (t *Tx) InsertImage(ctx context.Context, image *models.Image) error {
	if image == nil {
		return fmt.Errorf("image is required")
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO images (id, path, blob_id, created_at) VALUES (?, ?, ?, ?)
	`, image.ID, image.Path, nullIfEmpty(image.BlobID), formatTime(image.CreatedAt))
	return err
}

// GetImage returns an image by id, or nil when absent.
func (t *Tx) GetImage(ctx context.Context, id string) (*models.Image, error) {
	return scanImage(t.tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
}

// GetImageByPath returns an image by path, or nil when absent.
func (t *Tx) GetImageByPath(ctx context.Context, path string) (*models.Image, error) {
	return scanImage(t.tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE path = ?`, path))
}

// DeleteImage deletes one image. Links, tags and selection rows cascade.
func (t *Tx) DeleteImage(ctx context.Context, id string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM images WHERE id = ?", id)
}

// ListImages lists all images ordered by path.
func (t *Tx) ListImages(ctx context.Context) ([]models.Image, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY path ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *image)
	}
	return images, rows.Err()
}

func scanImage(scanner rowScanner) (*models.Image, error) {
	image := models.Image{}
	var blobID sql.NullString
	var createdAt string

	if err := scanner.Scan(&image.ID, &image.Path, &blobID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	image.BlobID = blobID.String

	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	image.CreatedAt = parsed
	return &image, nil
}
