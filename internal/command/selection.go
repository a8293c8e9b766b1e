package command

import (
	"context"
	"fmt"
	"slices"
)

const TypeSelectImages = "selection.set"

// SelectImages replaces the image selection. An empty list clears it.
type SelectImages struct {
	IDs    []string `json:"ids"`
	Before []string `json:"before,omitempty"`
}

// NewSelectImages builds the command.
func NewSelectImages(ids ...string) (*Command, error) {
	ids, err := normalizeIDs("image", ids)
	if err != nil {
		return nil, err
	}
	return New(&SelectImages{IDs: ids}), nil
}

func (a *SelectImages) Type() string   { return TypeSelectImages }
func (a *SelectImages) Views() ViewSet { return ViewSelection }

func (a *SelectImages) Describe() string {
	if len(a.IDs) == 0 {
		return "Clear selection"
	}
	return "Select " + plural(len(a.IDs), "image", "images")
}

func (a *SelectImages) Execute(ctx context.Context, env *Env) (Undoable, error) {
	b := newBatch(env, "select images", len(a.IDs))
	for i, id := range a.IDs {
		b.item(i, "image_id", id)
		image, err := env.Tx.GetImage(ctx, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if image == nil {
			b.fail(id, fmt.Errorf("image %s: %w", id, ErrNotFound))
			continue
		}
	}
	if err := b.err(); err != nil {
		return NotUndoable, err
	}

	before, err := env.Tx.ListSelection(ctx)
	if err != nil {
		return NotUndoable, err
	}
	if slices.Equal(before, a.IDs) {
		return NotUndoable, nil
	}
	if err := env.Tx.ReplaceSelection(ctx, a.IDs); err != nil {
		return NotUndoable, err
	}
	a.Before = before
	return IsUndoable, nil
}

func (a *SelectImages) Undo(ctx context.Context, env *Env) error {
	return env.Tx.ReplaceSelection(ctx, a.Before)
}

func (a *SelectImages) Redo(ctx context.Context, env *Env) error {
	return env.Tx.ReplaceSelection(ctx, a.IDs)
}
