package command

import (
	"context"
	"fmt"

	"capset/internal/models"
)

const (
	TypeAddTags    = "tag.add"
	TypeRemoveTags = "tag.remove"
)

// AddTags adds every tag to every image.
type AddTags struct {
	ImageIDs []string          `json:"image_ids"`
	Tags     []string          `json:"tags"`
	Added    []models.ImageTag `json:"added,omitempty"`
}

// NewAddTags validates tags and builds the command.
func NewAddTags(imageIDs, tags []string) (*Command, error) {
	a, err := newAddTags(imageIDs, tags)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newAddTags(imageIDs, tags []string) (*AddTags, error) {
	ids, tags, err := normalizeTagArgs(imageIDs, tags)
	if err != nil {
		return nil, err
	}
	return &AddTags{ImageIDs: ids, Tags: tags}, nil
}

func normalizeTagArgs(imageIDs, tags []string) ([]string, []string, error) {
	ids, err := requireIDs("image", imageIDs)
	if err != nil {
		return nil, nil, err
	}
	tags, err = models.NormalizeTags(tags)
	if err != nil {
		return nil, nil, invalid(err)
	}
	if len(tags) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one tag is required", ErrInvalidArgument)
	}
	return ids, tags, nil
}

func (a *AddTags) Type() string   { return TypeAddTags }
func (a *AddTags) Views() ViewSet { return ViewTags | ViewImages }

func (a *AddTags) Describe() string {
	return fmt.Sprintf("Tag %s with %s", plural(len(a.ImageIDs), "image", "images"), tagList(a.Tags))
}

func (a *AddTags) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "add tags", len(a.ImageIDs)*len(a.Tags))
	index := 0
	for _, imageID := range a.ImageIDs {
		image, err := env.Tx.GetImage(ctx, imageID)
		for _, tag := range a.Tags {
			i := index
			index++
			b.item(i, "image_id", imageID)
			env.set("tag", tag)
			item := imageID + ":" + tag
			if err != nil {
				b.fail(item, err)
				continue
			}
			if image == nil {
				b.fail(item, fmt.Errorf("image %s: %w", imageID, ErrNotFound))
				continue
			}
			pair := models.ImageTag{ImageID: imageID, Tag: tag}
			inserted, err := env.Tx.InsertImageTag(ctx, pair)
			if err != nil {
				b.fail(item, err)
				continue
			}
			if !inserted {
				b.skip(i, "image %s already tagged %q", imageID, tag)
				continue
			}
			a.Added = append(a.Added, pair)
			b.done(i, "tagged image %s with %q", imageID, tag)
		}
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Added) > 0), nil
}

func (a *AddTags) Undo(ctx context.Context, env *Env) error {
	return deleteTags(ctx, env, a.Added, true)
}

func (a *AddTags) Redo(ctx context.Context, env *Env) error {
	return insertTags(ctx, env, a.Added)
}

// RemoveTags removes every tag from every image.
type RemoveTags struct {
	ImageIDs []string          `json:"image_ids"`
	Tags     []string          `json:"tags"`
	Removed  []models.ImageTag `json:"removed,omitempty"`
}

// NewRemoveTags validates tags and builds the command.
func NewRemoveTags(imageIDs, tags []string) (*Command, error) {
	ids, tags, err := normalizeTagArgs(imageIDs, tags)
	if err != nil {
		return nil, err
	}
	return New(&RemoveTags{ImageIDs: ids, Tags: tags}), nil
}

func (a *RemoveTags) Type() string   { return TypeRemoveTags }
func (a *RemoveTags) Views() ViewSet { return ViewTags | ViewImages }

func (a *RemoveTags) Describe() string {
	return fmt.Sprintf("Untag %s from %s", tagList(a.Tags), plural(len(a.ImageIDs), "image", "images"))
}

func (a *RemoveTags) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "remove tags", len(a.ImageIDs)*len(a.Tags))
	index := 0
	for _, imageID := range a.ImageIDs {
		for _, tag := range a.Tags {
			i := index
			index++
			b.item(i, "image_id", imageID)
			env.set("tag", tag)
			pair := models.ImageTag{ImageID: imageID, Tag: tag}
			deleted, err := env.Tx.DeleteImageTag(ctx, pair)
			if err != nil {
				b.fail(imageID+":"+tag, err)
				continue
			}
			if !deleted {
				b.skip(i, "image %s is not tagged %q", imageID, tag)
				continue
			}
			a.Removed = append(a.Removed, pair)
			b.done(i, "removed tag %q from image %s", tag, imageID)
		}
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Removed) > 0), nil
}

func (a *RemoveTags) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Removed) - 1; i >= 0; i-- {
		if _, err := env.Tx.InsertImageTag(ctx, a.Removed[i]); err != nil {
			env.set("image_id", a.Removed[i].ImageID)
			return err
		}
	}
	return nil
}

func (a *RemoveTags) Redo(ctx context.Context, env *Env) error {
	return deleteTags(ctx, env, a.Removed, false)
}

func insertTags(ctx context.Context, env *Env, tags []models.ImageTag) error {
	for _, pair := range tags {
		if _, err := env.Tx.InsertImageTag(ctx, pair); err != nil {
			env.set("image_id", pair.ImageID)
			return err
		}
	}
	return nil
}

func deleteTags(ctx context.Context, env *Env, tags []models.ImageTag, reverse bool) error {
	for n := range tags {
		pair := tags[n]
		if reverse {
			pair = tags[len(tags)-1-n]
		}
		if _, err := env.Tx.DeleteImageTag(ctx, pair); err != nil {
			env.set("image_id", pair.ImageID)
			return err
		}
	}
	return nil
}

func tagList(tags []string) string {
	if len(tags) == 1 {
		return fmt.Sprintf("%q", tags[0])
	}
	return fmt.Sprintf("%d tags", len(tags))
}
