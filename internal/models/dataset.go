package models

import "time"

// Image is one dataset image. The bytes live in the blob store.
type Image struct {
	ID        string    `json:"id" yaml:"id"`
	Path      string    `json:"path" yaml:"path"`
	BlobID    string    `json:"blob_id,omitempty" yaml:"blob_id,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Caption is a reusable caption text.
type Caption struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Category groups captions. A required category must be covered by every image.
type Category struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Required  bool      `json:"required" yaml:"required"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ImageCaption links a caption to an image at a position.
type ImageCaption struct {
	ImageID   string `json:"image_id"`
	CaptionID string `json:"caption_id"`
	Position  int    `json:"position"`
}

// CaptionCategory links a caption to a category.
type CaptionCategory struct {
	CaptionID  string `json:"caption_id"`
	CategoryID string `json:"category_id"`
}

// ImageTag is one tag on one image.
type ImageTag struct {
	ImageID string `json:"image_id"`
	Tag     string `json:"tag"`
}

// MetadataEntry is one dataset-level key/value pair.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ValidationProblem reports an image missing a caption from a required category.
type ValidationProblem struct {
	ImageID      string `json:"image_id"`
	ImagePath    string `json:"image_path"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// LedgerEntry is one persisted undo or redo record.
type LedgerEntry struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Payload     []byte    `json:"-"`
}
