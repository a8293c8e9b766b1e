package command

import (
	"context"
	"fmt"

	"capset/internal/models"
)

const (
	TypeAddCaptions    = "caption.add"
	TypeRemoveCaptions = "caption.remove"
	TypeModifyCaption  = "caption.modify"
)

// AddCaptions creates captions for texts that do not exist yet.
type AddCaptions struct {
	Texts []string         `json:"texts"`
	Added []models.Caption `json:"added,omitempty"`
}

// NewAddCaptions validates texts and builds the command.
func NewAddCaptions(texts ...string) (*Command, error) {
	a, err := newAddCaptions(texts)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newAddCaptions(texts []string) (*AddCaptions, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: at least one caption text is required", ErrInvalidArgument)
	}
	out := make([]string, 0, len(texts))
	for _, raw := range texts {
		text, err := models.NormalizeCaptionText(raw)
		if err != nil {
			return nil, invalid(err)
		}
		out = append(out, text)
	}
	return &AddCaptions{Texts: out}, nil
}

func (a *AddCaptions) Type() string   { return TypeAddCaptions }
func (a *AddCaptions) Views() ViewSet { return ViewCaptions }

func (a *AddCaptions) Describe() string {
	if len(a.Texts) == 1 {
		return fmt.Sprintf("Add caption %q", a.Texts[0])
	}
	return fmt.Sprintf("Add %d captions", len(a.Texts))
}

func (a *AddCaptions) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "add captions", len(a.Texts))
	for i, text := range a.Texts {
		b.item(i, "caption_text", text)
		existing, err := env.Tx.GetCaptionByText(ctx, text)
		if err != nil {
			b.fail(text, err)
			continue
		}
		if existing != nil {
			b.skip(i, "caption %q already exists", text)
			continue
		}
		id, err := env.Tx.NewCaptionID(ctx)
		if err != nil {
			b.fail(text, err)
			continue
		}
		caption := models.Caption{ID: id, Text: text}
		if err := env.Tx.InsertCaption(ctx, &caption); err != nil {
			b.fail(text, err)
			continue
		}
		a.Added = append(a.Added, caption)
		b.done(i, "added caption %q", text)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Added) > 0), nil
}

func (a *AddCaptions) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Added) - 1; i >= 0; i-- {
		if _, err := env.Tx.DeleteCaption(ctx, a.Added[i].ID); err != nil {
			env.set("caption_id", a.Added[i].ID)
			return err
		}
	}
	return nil
}

func (a *AddCaptions) Redo(ctx context.Context, env *Env) error {
	for _, caption := range a.Added {
		caption := caption
		if err := env.Tx.InsertCaption(ctx, &caption); err != nil {
			env.set("caption_id", caption.ID)
			return err
		}
	}
	return nil
}

// RemovedCaption is a deleted caption with the links the delete cascaded.
type RemovedCaption struct {
	Caption    models.Caption           `json:"caption"`
	Images     []models.ImageCaption    `json:"images,omitempty"`
	Categories []models.CaptionCategory `json:"categories,omitempty"`
}

func (r RemovedCaption) restore(ctx context.Context, env *Env) error {
	caption := r.Caption
	if err := env.Tx.InsertCaption(ctx, &caption); err != nil {
		return err
	}
	for _, link := range r.Images {
		if _, err := env.Tx.InsertImageCaption(ctx, link); err != nil {
			return err
		}
	}
	for _, link := range r.Categories {
		if _, err := env.Tx.InsertCaptionCategory(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

// RemoveCaptions deletes captions and their image and category links.
type RemoveCaptions struct {
	IDs     []string         `json:"ids"`
	Removed []RemovedCaption `json:"removed,omitempty"`
}

// NewRemoveCaptions builds the command.
func NewRemoveCaptions(ids ...string) (*Command, error) {
	ids, err := requireIDs("caption", ids)
	if err != nil {
		return nil, err
	}
	return New(&RemoveCaptions{IDs: ids}), nil
}

func (a *RemoveCaptions) Type() string { return TypeRemoveCaptions }

func (a *RemoveCaptions) Views() ViewSet {
	return ViewCaptions | ViewImages | ViewValidation
}

func (a *RemoveCaptions) Describe() string {
	if len(a.Removed) == 1 {
		return fmt.Sprintf("Remove caption %q", a.Removed[0].Caption.Text)
	}
	return "Remove " + plural(len(a.IDs), "caption", "captions")
}

func (a *RemoveCaptions) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "remove captions", len(a.IDs))
	for i, id := range a.IDs {
		b.item(i, "caption_id", id)
		removed, err := captureCaption(ctx, env, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if removed == nil {
			b.skip(i, "caption %s does not exist", id)
			continue
		}
		if _, err := env.Tx.DeleteCaption(ctx, id); err != nil {
			b.fail(id, err)
			continue
		}
		a.Removed = append(a.Removed, *removed)
		b.done(i, "removed caption %q", removed.Caption.Text)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Removed) > 0), nil
}

func captureCaption(ctx context.Context, env *Env, id string) (*RemovedCaption, error) {
	caption, err := env.Tx.GetCaption(ctx, id)
	if err != nil || caption == nil {
		return nil, err
	}
	images, err := env.Tx.ListImageCaptionsByCaption(ctx, id)
	if err != nil {
		return nil, err
	}
	categories, err := env.Tx.ListCaptionCategoriesByCaption(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RemovedCaption{Caption: *caption, Images: images, Categories: categories}, nil
}

func (a *RemoveCaptions) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Removed) - 1; i >= 0; i-- {
		if err := a.Removed[i].restore(ctx, env); err != nil {
			env.set("caption_id", a.Removed[i].Caption.ID)
			return err
		}
	}
	return nil
}

func (a *RemoveCaptions) Redo(ctx context.Context, env *Env) error {
	for _, removed := range a.Removed {
		if _, err := env.Tx.DeleteCaption(ctx, removed.Caption.ID); err != nil {
			env.set("caption_id", removed.Caption.ID)
			return err
		}
	}
	return nil
}

// ModifyCaption replaces the text of one caption.
type ModifyCaption struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Before string `json:"before,omitempty"`
}

// NewModifyCaption validates the new text and builds the command.
func NewModifyCaption(id, text string) (*Command, error) {
	ids, err := requireIDs("caption", []string{id})
	if err != nil {
		return nil, err
	}
	text, err = models.NormalizeCaptionText(text)
	if err != nil {
		return nil, invalid(err)
	}
	return New(&ModifyCaption{ID: ids[0], Text: text}), nil
}

func (a *ModifyCaption) Type() string   { return TypeModifyCaption }
func (a *ModifyCaption) Views() ViewSet { return ViewCaptions | ViewImages }

func (a *ModifyCaption) Describe() string {
	if a.Before != "" {
		return fmt.Sprintf("Rename caption %q to %q", a.Before, a.Text)
	}
	return fmt.Sprintf("Rename caption to %q", a.Text)
}

func (a *ModifyCaption) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("caption_id", a.ID)
	caption, err := env.Tx.GetCaption(ctx, a.ID)
	if err != nil {
		return NotUndoable, err
	}
	if caption == nil {
		return NotUndoable, fmt.Errorf("caption %s: %w", a.ID, ErrNotFound)
	}
	if caption.Text == a.Text {
		env.progress(fmt.Sprintf("caption %q unchanged", a.Text))
		return NotUndoable, nil
	}
	other, err := env.Tx.GetCaptionByText(ctx, a.Text)
	if err != nil {
		return NotUndoable, err
	}
	if other != nil {
		env.set("conflicting_caption_id", other.ID)
		return NotUndoable, fmt.Errorf("caption %q: %w: text already used", a.Text, ErrConflict)
	}
	if _, err := env.Tx.UpdateCaptionText(ctx, a.ID, a.Text); err != nil {
		return NotUndoable, err
	}
	a.Before = caption.Text
	return IsUndoable, nil
}

func (a *ModifyCaption) Undo(ctx context.Context, env *Env) error {
	env.set("caption_id", a.ID)
	_, err := env.Tx.UpdateCaptionText(ctx, a.ID, a.Before)
	return err
}

func (a *ModifyCaption) Redo(ctx context.Context, env *Env) error {
	env.set("caption_id", a.ID)
	_, err := env.Tx.UpdateCaptionText(ctx, a.ID, a.Text)
	return err
}
