package command

import (
	"context"
	"fmt"

	"capset/internal/models"
)

const TypeSetMetadata = "metadata.set"

// SetMetadata sets one dataset metadata value. An empty value deletes the key.
type SetMetadata struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Before    string `json:"before,omitempty"`
	HadBefore bool   `json:"had_before,omitempty"`
}

// NewSetMetadata validates the key and builds the command.
func NewSetMetadata(key, value string) (*Command, error) {
	a, err := newSetMetadata(key, value)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

func newSetMetadata(key, value string) (*SetMetadata, error) {
	key, err := models.NormalizeMetadataKey(key)
	if err != nil {
		return nil, invalid(err)
	}
	return &SetMetadata{Key: key, Value: value}, nil
}

func (a *SetMetadata) Type() string   { return TypeSetMetadata }
func (a *SetMetadata) Views() ViewSet { return ViewMetadata }

func (a *SetMetadata) Describe() string {
	if a.Value == "" {
		return fmt.Sprintf("Delete metadata %q", a.Key)
	}
	return fmt.Sprintf("Set metadata %q", a.Key)
}

func (a *SetMetadata) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("metadata_key", a.Key)
	before, had, err := env.Tx.GetMetadata(ctx, a.Key)
	if err != nil {
		return NotUndoable, err
	}
	if (a.Value == "" && !had) || (had && before == a.Value) {
		env.progress(fmt.Sprintf("metadata %q unchanged", a.Key))
		return NotUndoable, nil
	}
	if err := a.apply(ctx, env); err != nil {
		return NotUndoable, err
	}
	a.Before, a.HadBefore = before, had
	return IsUndoable, nil
}

func (a *SetMetadata) apply(ctx context.Context, env *Env) error {
	if a.Value == "" {
		_, err := env.Tx.DeleteMetadata(ctx, a.Key)
		return err
	}
	return env.Tx.SetMetadata(ctx, a.Key, a.Value)
}

func (a *SetMetadata) Undo(ctx context.Context, env *Env) error {
	env.set("metadata_key", a.Key)
	if !a.HadBefore {
		_, err := env.Tx.DeleteMetadata(ctx, a.Key)
		return err
	}
	return env.Tx.SetMetadata(ctx, a.Key, a.Before)
}

func (a *SetMetadata) Redo(ctx context.Context, env *Env) error {
	env.set("metadata_key", a.Key)
	return a.apply(ctx, env)
}
