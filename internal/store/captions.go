package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"capset/internal/models"
)

const captionColumns = "id, text, created_at"

// NewCaptionID returns an unused caption id.
func (t *Tx) NewCaptionID(ctx context.Context) (string, error) {
	return GenerateID(CaptionIDPrefix, func(id string) (bool, error) {
		return t.exists(ctx, "SELECT 1 FROM captions WHERE id = ? LIMIT 1", id)
	})
}

// InsertCaption inserts one caption row.
func (t *Tx) InsertCaption(ctx context.Context, caption *models.Caption) error {
	if caption == nil {
		return fmt.Errorf("caption is required")
	}
	if caption.CreatedAt.IsZero() {
		caption.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO captions (id, text, created_at) VALUES (?, ?, ?)`,
		caption.ID, caption.Text, formatTime(caption.CreatedAt))
	return err
}

// GetCaption returns a caption by id, or nil when absent.
func (t *Tx) GetCaption(ctx context.Context, id string) (*models.Caption, error) {
	return scanCaption(t.tx.QueryRowContext(ctx, `SELECT `+captionColumns+` FROM captions WHERE id = ?`, id))
}

// GetCaptionByText returns a caption by exact text, or nil when absent.
func (t *Tx) GetCaptionByText(ctx context.Context, text string) (*models.Caption, error) {
	return scanCaption(t.tx.QueryRowContext(ctx, `SELECT `+captionColumns+` FROM captions WHERE text = ?`, text))
}

// UpdateCaptionText replaces the text of one caption.
func (t *Tx) UpdateCaptionText(ctx context.Context, id, text string) (bool, error) {
	return t.execAffected(ctx, "UPDATE captions SET text = ? WHERE id = ?", text, id)
}

// DeleteCaption deletes one caption. Image and category links cascade.
func (t *Tx) DeleteCaption(ctx context.Context, id string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM captions WHERE id = ?", id)
}

// ListCaptions lists all captions ordered by text.
func (t *Tx) ListCaptions(ctx context.Context) ([]models.Caption, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+captionColumns+` FROM captions ORDER BY text ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	captions := []models.Caption{}
	for rows.Next() {
		caption, err := scanCaption(rows)
		if err != nil {
			return nil, err
		}
		captions = append(captions, *caption)
	}
	return captions, rows.Err()
}

func scanCaption(scanner rowScanner) (*models.Caption, error) {
	caption := models.Caption{}
	var createdAt string
	if err := scanner.Scan(&caption.ID, &caption.Text, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	caption.CreatedAt = parsed
	return &caption, nil
}
