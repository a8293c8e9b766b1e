package command

import (
	"context"
	"fmt"
	"os"
	"slices"

	"capset/internal/models"
)

const (
	TypeAddImages    = "image.add"
	TypeRemoveImages = "image.remove"
)

// AddedImage is an inserted image row and the blob row it references.
type AddedImage struct {
	Image models.Image `json:"image"`
	Blob  *models.Blob `json:"blob,omitempty"`
}

// AddImages registers image files. When the environment has a blob store
// the bytes are stored content-addressed and the image references them.
type AddImages struct {
	Paths []string     `json:"paths"`
	Added []AddedImage `json:"added,omitempty"`
}

// NewAddImages resolves paths and builds the command.
func NewAddImages(paths ...string) (*Command, error) {
	a, err := newAddImages(paths)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newAddImages(paths []string) (*AddImages, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: at least one image path is required", ErrInvalidArgument)
	}
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, raw := range paths {
		path, err := models.NormalizeImagePath(raw)
		if err != nil {
			return nil, invalid(err)
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return &AddImages{Paths: out}, nil
}

func (a *AddImages) Type() string   { return TypeAddImages }
func (a *AddImages) Views() ViewSet { return ViewImages | ViewValidation }

func (a *AddImages) Describe() string {
	if len(a.Paths) == 1 {
		return fmt.Sprintf("Add image %s", a.Paths[0])
	}
	return fmt.Sprintf("Add %d images", len(a.Paths))
}

func (a *AddImages) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "add images", len(a.Paths))
	for i, path := range a.Paths {
		b.item(i, "path", path)
		existing, err := env.Tx.GetImageByPath(ctx, path)
		if err != nil {
			b.fail(path, err)
			continue
		}
		if existing != nil {
			b.skip(i, "image %s already exists", path)
			continue
		}
		added, err := a.insert(ctx, env, path)
		if err != nil {
			b.fail(path, err)
			continue
		}
		a.Added = append(a.Added, *added)
		b.done(i, "added image %s", path)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	return undoableIf(len(a.Added) > 0), nil
}

func (a *AddImages) insert(ctx context.Context, env *Env, path string) (*AddedImage, error) {
	added := &AddedImage{}
	if env.Blobs != nil {
		blob, err := storeImageBytes(ctx, env, path)
		if err != nil {
			return nil, err
		}
		added.Blob = blob
	}

	id, err := env.Tx.NewImageID(ctx)
	if err != nil {
		return nil, err
	}
	added.Image = models.Image{ID: id, Path: path}
	if added.Blob != nil {
		added.Image.BlobID = added.Blob.ID
	}
	if err := env.Tx.InsertImage(ctx, &added.Image); err != nil {
		return nil, err
	}
	return added, nil
}

func storeImageBytes(ctx context.Context, env *Env, path string) (*models.Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	put, err := env.Blobs.Put(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("store image bytes: %w", err)
	}
	env.set("digest", put.Digest)
	return env.Tx.UpsertBlob(ctx, &models.Blob{
		Digest:    put.Digest,
		SizeBytes: put.SizeBytes,
		BlobKey:   put.BlobKey,
	})
}

func (a *AddImages) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Added) - 1; i >= 0; i-- {
		if _, err := env.Tx.DeleteImage(ctx, a.Added[i].Image.ID); err != nil {
			env.set("image_id", a.Added[i].Image.ID)
			return err
		}
	}
	return nil
}

func (a *AddImages) Redo(ctx context.Context, env *Env) error {
	for _, added := range a.Added {
		if err := restoreImage(ctx, env, added.Image, added.Blob); err != nil {
			return err
		}
	}
	return nil
}

func restoreImage(ctx context.Context, env *Env, image models.Image, blob *models.Blob) error {
	env.set("image_id", image.ID)
	if blob != nil {
		if err := env.Tx.RestoreBlob(ctx, *blob); err != nil {
			return err
		}
	}
	return env.Tx.InsertImage(ctx, &image)
}

// RemovedImage is a deleted image with everything the delete cascaded.
type RemovedImage struct {
	Image    models.Image          `json:"image"`
	Blob     *models.Blob          `json:"blob,omitempty"`
	Captions []models.ImageCaption `json:"captions,omitempty"`
	Tags     []models.ImageTag     `json:"tags,omitempty"`
}

// RemoveImages deletes images with their caption links, tags and selection
// entries. Blob rows stay until the ledgers are compacted.
type RemoveImages struct {
	IDs       []string       `json:"ids"`
	Removed   []RemovedImage `json:"removed,omitempty"`
	Selection []string       `json:"selection,omitempty"`
}

// NewRemoveImages builds the command.
func NewRemoveImages(ids ...string) (*Command, error) {
	ids, err := requireIDs("image", ids)
	if err != nil {
		return nil, err
	}
	return New(&RemoveImages{IDs: ids}), nil
}

func (a *RemoveImages) Type() string { return TypeRemoveImages }

func (a *RemoveImages) Views() ViewSet {
	return ViewImages | ViewTags | ViewSelection | ViewValidation
}

func (a *RemoveImages) Describe() string {
	if len(a.Removed) == 1 {
		return fmt.Sprintf("Remove image %s", a.Removed[0].Image.Path)
	}
	return "Remove " + plural(len(a.IDs), "image", "images")
}

func (a *RemoveImages) Execute(ctx context.Context, env *Env) (Undoable, error) {
	selection, err := env.Tx.ListSelection(ctx)
	if err != nil {
		return NotUndoable, err
	}

	b := newBatch(env, "remove images", len(a.IDs))
	selectionTouched := false
	for i, id := range a.IDs {
		b.item(i, "image_id", id)
		removed, err := captureImage(ctx, env, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if removed == nil {
			b.skip(i, "image %s does not exist", id)
			continue
		}
		if _, err := env.Tx.DeleteImage(ctx, id); err != nil {
			b.fail(id, err)
			continue
		}
		if slices.Contains(selection, id) {
			selectionTouched = true
		}
		a.Removed = append(a.Removed, *removed)
		b.done(i, "removed image %s", removed.Image.Path)
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}
	if selectionTouched {
		a.Selection = selection
	}
	return undoableIf(len(a.Removed) > 0), nil
}

func captureImage(ctx context.Context, env *Env, id string) (*RemovedImage, error) {
	image, err := env.Tx.GetImage(ctx, id)
	if err != nil || image == nil {
		return nil, err
	}
	removed := &RemovedImage{Image: *image}
	if image.BlobID != "" {
		blob, err := env.Tx.GetBlob(ctx, image.BlobID)
		if err != nil {
			return nil, err
		}
		removed.Blob = blob
	}
	if removed.Captions, err = env.Tx.ListImageCaptionsByImage(ctx, id); err != nil {
		return nil, err
	}
	if removed.Tags, err = env.Tx.ListImageTagsByImage(ctx, id); err != nil {
		return nil, err
	}
	return removed, nil
}

func (a *RemoveImages) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Removed) - 1; i >= 0; i-- {
		removed := a.Removed[i]
		if err := restoreImage(ctx, env, removed.Image, removed.Blob); err != nil {
			return err
		}
		for _, link := range removed.Captions {
			if _, err := env.Tx.InsertImageCaption(ctx, link); err != nil {
				return err
			}
		}
		if err := insertTags(ctx, env, removed.Tags); err != nil {
			return err
		}
	}
	if a.Selection != nil {
		return env.Tx.ReplaceSelection(ctx, a.Selection)
	}
	return nil
}

func (a *RemoveImages) Redo(ctx context.Context, env *Env) error {
	for _, removed := range a.Removed {
		if _, err := env.Tx.DeleteImage(ctx, removed.Image.ID); err != nil {
			env.set("image_id", removed.Image.ID)
			return err
		}
	}
	return nil
}
