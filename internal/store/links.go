package store

import (
	"context"
	"database/sql"
	"errors"

	"capset/internal/models"
)

// InsertImageCaption links a caption to an image. It reports false when the
// link already exists.
func (t *Tx) InsertImageCaption(ctx context.Context, link models.ImageCaption) (bool, error) {
	return t.execAffected(ctx, `INSERT OR IGNORE INTO image_captions (image_id, caption_id, position) VALUES (?, ?, ?)`,
		link.ImageID, link.CaptionID, link.Position)
}

// DeleteImageCaption removes one image/caption link.
func (t *Tx) DeleteImageCaption(ctx context.Context, imageID, captionID string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM image_captions WHERE image_id = ? AND caption_id = ?", imageID, captionID)
}

// GetImageCaption returns one link, or nil when absent.
func (t *Tx) GetImageCaption(ctx context.Context, imageID, captionID string) (*models.ImageCaption, error) {
	link := models.ImageCaption{}
	err := t.tx.QueryRowContext(ctx, `SELECT image_id, caption_id, position FROM image_captions WHERE image_id = ? AND caption_id = ?`,
		imageID, captionID).Scan(&link.ImageID, &link.CaptionID, &link.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// NextCaptionPosition returns the position after the last caption of an image.
func (t *Tx) NextCaptionPosition(ctx context.Context, imageID string) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM image_captions WHERE image_id = ?", imageID).Scan(&next)
	return next, err
}

// ListImageCaptions lists all image/caption links ordered by image then position.
func (t *Tx) ListImageCaptions(ctx context.Context) ([]models.ImageCaption, error) {
	return t.queryImageCaptions(ctx, `SELECT image_id, caption_id, position FROM image_captions ORDER BY image_id ASC, position ASC, caption_id ASC`)
}

// ListImageCaptionsByImage lists the caption links of one image.
func (t *Tx) ListImageCaptionsByImage(ctx context.Context, imageID string) ([]models.ImageCaption, error) {
	return t.queryImageCaptions(ctx, `SELECT image_id, caption_id, position FROM image_captions WHERE image_id = ? ORDER BY position ASC, caption_id ASC`, imageID)
}

// ListImageCaptionsByCaption lists the image links of one caption.
func (t *Tx) ListImageCaptionsByCaption(ctx context.Context, captionID string) ([]models.ImageCaption, error) {
	return t.queryImageCaptions(ctx, `SELECT image_id, caption_id, position FROM image_captions WHERE caption_id = ? ORDER BY image_id ASC`, captionID)
}

func (t *Tx) queryImageCaptions(ctx context.Context, query string, args ...any) ([]models.ImageCaption, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []models.ImageCaption{}
	for rows.Next() {
		var link models.ImageCaption
		if err := rows.Scan(&link.ImageID, &link.CaptionID, &link.Position); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// InsertCaptionCategory assigns a caption to a category. It reports false
// when the assignment already exists.
func (t *Tx) InsertCaptionCategory(ctx context.Context, link models.CaptionCategory) (bool, error) {
	return t.execAffected(ctx, `INSERT OR IGNORE INTO caption_categories (caption_id, category_id) VALUES (?, ?)`,
		link.CaptionID, link.CategoryID)
}

// DeleteCaptionCategory removes one caption/category assignment.
func (t *Tx) DeleteCaptionCategory(ctx context.Context, captionID, categoryID string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM caption_categories WHERE caption_id = ? AND category_id = ?", captionID, categoryID)
}

// ListCaptionCategories lists all caption/category assignments.
func (t *Tx) ListCaptionCategories(ctx context.Context) ([]models.CaptionCategory, error) {
	return t.queryCaptionCategories(ctx, `SELECT caption_id, category_id FROM caption_categories ORDER BY category_id ASC, caption_id ASC`)
}

// ListCaptionCategoriesByCaption lists the categories of one caption.
func (t *Tx) ListCaptionCategoriesByCaption(ctx context.Context, captionID string) ([]models.CaptionCategory, error) {
	return t.queryCaptionCategories(ctx, `SELECT caption_id, category_id FROM caption_categories WHERE caption_id = ? ORDER BY category_id ASC`, captionID)
}

// ListCaptionCategoriesByCategory lists the captions of one category.
func (t *Tx) ListCaptionCategoriesByCategory(ctx context.Context, categoryID string) ([]models.CaptionCategory, error) {
	return t.queryCaptionCategories(ctx, `SELECT caption_id, category_id FROM caption_categories WHERE category_id = ? ORDER BY caption_id ASC`, categoryID)
}

func (t *Tx) queryCaptionCategories(ctx context.Context, query string, args ...any) ([]models.CaptionCategory, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []models.CaptionCategory{}
	for rows.Next() {
		var link models.CaptionCategory
		if err := rows.Scan(&link.CaptionID, &link.CategoryID); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// InsertImageTag tags an image. It reports false when the tag already exists.
func (t *Tx) InsertImageTag(ctx context.Context, tag models.ImageTag) (bool, error) {
	return t.execAffected(ctx, `INSERT OR IGNORE INTO image_tags (image_id, tag) VALUES (?, ?)`, tag.ImageID, tag.Tag)
}

// DeleteImageTag removes one tag from an image.
func (t *Tx) DeleteImageTag(ctx context.Context, tag models.ImageTag) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM image_tags WHERE image_id = ? AND tag = ?", tag.ImageID, tag.Tag)
}

// ListImageTags lists all image tags ordered by image then tag.
func (t *Tx) ListImageTags(ctx context.Context) ([]models.ImageTag, error) {
	return t.queryImageTags(ctx, `SELECT image_id, tag FROM image_tags ORDER BY image_id ASC, tag ASC`)
}

// ListImageTagsByImage lists the tags of one image.
func (t *Tx) ListImageTagsByImage(ctx context.Context, imageID string) ([]models.ImageTag, error) {
	return t.queryImageTags(ctx, `SELECT image_id, tag FROM image_tags WHERE image_id = ? ORDER BY tag ASC`, imageID)
}

func (t *Tx) queryImageTags(ctx context.Context, query string, args ...any) ([]models.ImageTag, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []models.ImageTag{}
	for rows.Next() {
		var tag models.ImageTag
		if err := rows.Scan(&tag.ImageID, &tag.Tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
