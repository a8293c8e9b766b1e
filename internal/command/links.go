package command

import (
	"context"
	"fmt"
	"strconv"

	"capset/internal/models"
)

const (
	TypeAssignCaptions   = "caption.assign"
	TypeUnassignCaptions = "caption.unassign"
	TypeCaptionImages    = "image.caption"
	TypeUncaptionImages  = "image.uncaption"
)

// AssignCaptions puts captions into a category.
type AssignCaptions struct {
	CategoryID   string                   `json:"category_id"`
	CategoryName string                   `json:"category_name,omitempty"`
	CaptionIDs   []string                 `json:"caption_ids"`
	Added        []models.CaptionCategory `json:"added,omitempty"`
}

// NewAssignCaptions builds the command.
func NewAssignCaptions(categoryID string, captionIDs ...string) (*Command, error) {
	a, err := newAssignCaptions(categoryID, captionIDs)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newAssignCaptions(categoryID string, captionIDs []string) (*AssignCaptions, error) {
	category, captions, err := normalizeAssignArgs(categoryID, captionIDs)
	if err != nil {
		return nil, err
	}
	return &AssignCaptions{CategoryID: category, CaptionIDs: captions}, nil
}

// categoryLabel quotes the category name captured at execution, falling
// back to the id.
func categoryLabel(name, id string) string {
	if name == "" {
		return id
	}
	return strconv.Quote(name)
}

func normalizeAssignArgs(categoryID string, captionIDs []string) (string, []string, error) {
	category, err := requireIDs("category", []string{categoryID})
	if err != nil {
		return "", nil, err
	}
	captions, err := requireIDs("caption", captionIDs)
	if err != nil {
		return "", nil, err
	}
	return category[0], captions, nil
}

func (a *AssignCaptions) Type() string   { return TypeAssignCaptions }
func (a *AssignCaptions) Views() ViewSet { return ViewCaptions | ViewValidation }

func (a *AssignCaptions) Describe() string {
	return fmt.Sprintf("Assign %s to category %s", plural(len(a.CaptionIDs), "caption", "captions"), categoryLabel(a.CategoryName, a.CategoryID))
}

func (a *AssignCaptions) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("category_id", a.CategoryID)
	category, err := env.Tx.GetCategory(ctx, a.CategoryID)
	if err != nil {
		return NotUndoable, err
	}
	if category == nil {
		return NotUndoable, fmt.Errorf("category %s: %w", a.CategoryID, ErrNotFound)
	}
	a.CategoryName = category.Name

	b := newBatch(env, "assign captions", len(a.CaptionIDs))
	for i, captionID := range a.CaptionIDs {
		b.item(i, "caption_id", captionID)
		caption, err := env.Tx.GetCaption(ctx, captionID)
		if err != nil {
			b.fail(captionID, err)
			continue
		}
		if caption == nil {
			b.fail(captionID, fmt.Errorf("caption %s: %w", captionID, ErrNotFound))
			continue
		}
		link := models.CaptionCategory{CaptionID: captionID, CategoryID: a.CategoryID}
		inserted, err := env.Tx.InsertCaptionCategory(ctx, link)
		if err != nil {
			b.fail(captionID, err)
			continue
		}
		if !inserted {
			b.skip(i, "caption %q already in category %q", caption.Text, category.Name)
			continue
		}
		a.Added = append(a.Added, link)
		b.done(i, "assigned caption %q to %q", caption.Text, category.Name)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Added) > 0), nil
}

func (a *AssignCaptions) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Added) - 1; i >= 0; i-- {
		if err := deleteCaptionCategory(ctx, env, a.Added[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *AssignCaptions) Redo(ctx context.Context, env *Env) error {
	for _, link := range a.Added {
		if err := insertCaptionCategory(ctx, env, link); err != nil {
			return err
		}
	}
	return nil
}

// UnassignCaptions takes captions out of a category.
type UnassignCaptions struct {
	CategoryID   string                   `json:"category_id"`
	CategoryName string                   `json:"category_name,omitempty"`
	CaptionIDs   []string                 `json:"caption_ids"`
	Removed      []models.CaptionCategory `json:"removed,omitempty"`
}

// NewUnassignCaptions builds the command.
func NewUnassignCaptions(categoryID string, captionIDs ...string) (*Command, error) {
	category, captions, err := normalizeAssignArgs(categoryID, captionIDs)
	if err != nil {
		return nil, err
	}
	return New(&UnassignCaptions{CategoryID: category, CaptionIDs: captions}), nil
}

func (a *UnassignCaptions) Type() string   { return TypeUnassignCaptions }
func (a *UnassignCaptions) Views() ViewSet { return ViewCaptions | ViewValidation }

func (a *UnassignCaptions) Describe() string {
	return fmt.Sprintf("Unassign %s from category %s", plural(len(a.CaptionIDs), "caption", "captions"), categoryLabel(a.CategoryName, a.CategoryID))
}

func (a *UnassignCaptions) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("category_id", a.CategoryID)
	category, err := env.Tx.GetCategory(ctx, a.CategoryID)
	if err != nil {
		return NotUndoable, err
	}
	if category != nil {
		a.CategoryName = category.Name
	}

	b := newBatch(env, "unassign captions", len(a.CaptionIDs))
	for i, captionID := range a.CaptionIDs {
		b.item(i, "caption_id", captionID)
		deleted, err := env.Tx.DeleteCaptionCategory(ctx, captionID, a.CategoryID)
		if err != nil {
			b.fail(captionID, err)
			continue
		}
		if !deleted {
			b.skip(i, "caption %s is not in category %s", captionID, a.CategoryID)
			continue
		}
		a.Removed = append(a.Removed, models.CaptionCategory{CaptionID: captionID, CategoryID: a.CategoryID})
		b.done(i, "unassigned caption %s", captionID)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Removed) > 0), nil
}

func (a *UnassignCaptions) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Removed) - 1; i >= 0; i-- {
		if err := insertCaptionCategory(ctx, env, a.Removed[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *UnassignCaptions) Redo(ctx context.Context, env *Env) error {
	for _, link := range a.Removed {
		if err := deleteCaptionCategory(ctx, env, link); err != nil {
			return err
		}
	}
	return nil
}

func insertCaptionCategory(ctx context.Context, env *Env, link models.CaptionCategory) error {
	if _, err := env.Tx.InsertCaptionCategory(ctx, link); err != nil {
		env.set("caption_id", link.CaptionID)
		return err
	}
	return nil
}

func deleteCaptionCategory(ctx context.Context, env *Env, link models.CaptionCategory) error {
	if _, err := env.Tx.DeleteCaptionCategory(ctx, link.CaptionID, link.CategoryID); err != nil {
		env.set("caption_id", link.CaptionID)
		return err
	}
	return nil
}

// CaptionImages attaches every caption to every image.
type CaptionImages struct {
	CaptionIDs []string              `json:"caption_ids"`
	ImageIDs   []string              `json:"image_ids"`
	Added      []models.ImageCaption `json:"added,omitempty"`
}

// NewCaptionImages builds the command.
func NewCaptionImages(captionIDs, imageIDs []string) (*Command, error) {
	a, err := newCaptionImages(captionIDs, imageIDs)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newCaptionImages(captionIDs, imageIDs []string) (*CaptionImages, error) {
	captions, images, err := normalizeCaptionImageArgs(captionIDs, imageIDs)
	if err != nil {
		return nil, err
	}
	return &CaptionImages{CaptionIDs: captions, ImageIDs: images}, nil
}

func normalizeCaptionImageArgs(captionIDs, imageIDs []string) ([]string, []string, error) {
	captions, err := requireIDs("caption", captionIDs)
	if err != nil {
		return nil, nil, err
	}
	images, err := requireIDs("image", imageIDs)
	if err != nil {
		return nil, nil, err
	}
	return captions, images, nil
}

func (a *CaptionImages) Type() string   { return TypeCaptionImages }
func (a *CaptionImages) Views() ViewSet { return ViewImages | ViewValidation }

func (a *CaptionImages) Describe() string {
	return fmt.Sprintf("Caption %s with %s",
		plural(len(a.ImageIDs), "image", "images"), plural(len(a.CaptionIDs), "caption", "captions"))
}

func (a *CaptionImages) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "caption images", len(a.ImageIDs)*len(a.CaptionIDs))
	missingCaptions := map[string]error{}
	for _, captionID := range a.CaptionIDs {
		caption, err := env.Tx.GetCaption(ctx, captionID)
		switch {
		case err != nil:
			missingCaptions[captionID] = err
		case caption == nil:
			missingCaptions[captionID] = fmt.Errorf("caption %s: %w", captionID, ErrNotFound)
		}
	}

	index := 0
	for _, imageID := range a.ImageIDs {
		image, imageErr := env.Tx.GetImage(ctx, imageID)
		if imageErr == nil && image == nil {
			imageErr = fmt.Errorf("image %s: %w", imageID, ErrNotFound)
		}
		for _, captionID := range a.CaptionIDs {
			i := index
			index++
			b.item(i, "image_id", imageID)
			env.set("caption_id", captionID)
			item := imageID + ":" + captionID
			if imageErr != nil {
				b.fail(item, imageErr)
				continue
			}
			if err := missingCaptions[captionID]; err != nil {
				b.fail(item, err)
				continue
			}
			existing, err := env.Tx.GetImageCaption(ctx, imageID, captionID)
			if err != nil {
				b.fail(item, err)
				continue
			}
			if existing != nil {
				b.skip(i, "image %s already has caption %s", imageID, captionID)
				continue
			}
			position, err := env.Tx.NextCaptionPosition(ctx, imageID)
			if err != nil {
				b.fail(item, err)
				continue
			}
			link := models.ImageCaption{ImageID: imageID, CaptionID: captionID, Position: position}
			if _, err := env.Tx.InsertImageCaption(ctx, link); err != nil {
				b.fail(item, err)
				continue
			}
			a.Added = append(a.Added, link)
			b.done(i, "captioned image %s", image.Path)
		}
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Added) > 0), nil
}

func (a *CaptionImages) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Added) - 1; i >= 0; i-- {
		if err := deleteImageCaption(ctx, env, a.Added[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *CaptionImages) Redo(ctx context.Context, env *Env) error {
	for _, link := range a.Added {
		if err := insertImageCaption(ctx, env, link); err != nil {
			return err
		}
	}
	return nil
}

// UncaptionImages detaches every caption from every image.
type UncaptionImages struct {
	CaptionIDs []string              `json:"caption_ids"`
	ImageIDs   []string              `json:"image_ids"`
	Removed    []models.ImageCaption `json:"removed,omitempty"`
}

// NewUncaptionImages builds the command.
func NewUncaptionImages(captionIDs, imageIDs []string) (*Command, error) {
	captions, images, err := normalizeCaptionImageArgs(captionIDs, imageIDs)
	if err != nil {
		return nil, err
	}
	return New(&UncaptionImages{CaptionIDs: captions, ImageIDs: images}), nil
}

func (a *UncaptionImages) Type() string   { return TypeUncaptionImages }
func (a *UncaptionImages) Views() ViewSet { return ViewImages | ViewValidation }

func (a *UncaptionImages) Describe() string {
	return fmt.Sprintf("Remove %s from %s",
		plural(len(a.CaptionIDs), "caption", "captions"), plural(len(a.ImageIDs), "image", "images"))
}

func (a *UncaptionImages) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "uncaption images", len(a.ImageIDs)*len(a.CaptionIDs))
	index := 0
	for _, imageID := range a.ImageIDs {
		for _, captionID := range a.CaptionIDs {
			i := index
			index++
			b.item(i, "image_id", imageID)
			env.set("caption_id", captionID)
			item := imageID + ":" + captionID
			existing, err := env.Tx.GetImageCaption(ctx, imageID, captionID)
			if err != nil {
				b.fail(item, err)
				continue
			}
			if existing == nil {
				b.skip(i, "image %s does not have caption %s", imageID, captionID)
				continue
			}
			if _, err := env.Tx.DeleteImageCaption(ctx, imageID, captionID); err != nil {
				b.fail(item, err)
				continue
			}
			a.Removed = append(a.Removed, *existing)
			b.done(i, "removed caption %s from image %s", captionID, imageID)
		}
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Removed) > 0), nil
}

func (a *UncaptionImages) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Removed) - 1; i >= 0; i-- {
		if err := insertImageCaption(ctx, env, a.Removed[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *UncaptionImages) Redo(ctx context.Context, env *Env) error {
	for _, link := range a.Removed {
		if err := deleteImageCaption(ctx, env, link); err != nil {
			return err
		}
	}
	return nil
}

func insertImageCaption(ctx context.Context, env *Env, link models.ImageCaption) error {
	if _, err := env.Tx.InsertImageCaption(ctx, link); err != nil {
		env.set("image_id", link.ImageID)
		env.set("caption_id", link.CaptionID)
		return err
	}
	return nil
}

func deleteImageCaption(ctx context.Context, env *Env, link models.ImageCaption) error {
	if _, err := env.Tx.DeleteImageCaption(ctx, link.ImageID, link.CaptionID); err != nil {
		env.set("image_id", link.ImageID)
		env.set("caption_id", link.CaptionID)
		return err
	}
	return nil
}
