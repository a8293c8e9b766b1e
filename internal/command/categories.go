package command

import (
	"context"
	"fmt"

	"capset/internal/models"
)

const (
	TypeAddCategory    = "category.add"
	TypeRemoveCategory = "category.remove"
	TypeModifyCategory = "category.modify"
)

// AddCategory creates a category unless one with the same name exists.
type AddCategory struct {
	Name     string           `json:"name"`
	Required bool             `json:"required"`
	Added    *models.Category `json:"added,omitempty"`
}

// NewAddCategory validates the name and builds the command.
func NewAddCategory(name string, required bool) (*Command, error) {
	name, err := models.NormalizeCategoryName(name)
	if err != nil {
		return nil, invalid(err)
	}
	return New(&AddCategory{Name: name, Required: required}), nil
}

func (a *AddCategory) Type() string   { return TypeAddCategory }
func (a *AddCategory) Views() ViewSet { return ViewCategories | ViewValidation }

func (a *AddCategory) Describe() string {
	if a.Required {
		return fmt.Sprintf("Add required category %q", a.Name)
	}
	return fmt.Sprintf("Add category %q", a.Name)
}

func (a *AddCategory) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("category_name", a.Name)
	existing, err := env.Tx.GetCategoryByName(ctx, a.Name)
	if err != nil {
		return NotUndoable, err
	}
	if existing != nil {
		env.progress(fmt.Sprintf("skipped: category %q already exists", a.Name))
		return NotUndoable, nil
	}
	id, err := env.Tx.NewCategoryID(ctx)
	if err != nil {
		return NotUndoable, err
	}
	category := models.Category{ID: id, Name: a.Name, Required: a.Required}
	if err := env.Tx.InsertCategory(ctx, &category); err != nil {
		return NotUndoable, err
	}
	a.Added = &category
	return IsUndoable, nil
}

func (a *AddCategory) Undo(ctx context.Context, env *Env) error {
	env.set("category_id", a.Added.ID)
	_, err := env.Tx.DeleteCategory(ctx, a.Added.ID)
	return err
}

func (a *AddCategory) Redo(ctx context.Context, env *Env) error {
	env.set("category_id", a.Added.ID)
	category := *a.Added
	return env.Tx.InsertCategory(ctx, &category)
}

// RemoveCategory deletes a category and its caption assignments.
type RemoveCategory struct {
	ID       string                   `json:"id"`
	Removed  *models.Category         `json:"removed,omitempty"`
	Captions []models.CaptionCategory `json:"captions,omitempty"`
}

// NewRemoveCategory builds the command.
func NewRemoveCategory(id string) (*Command, error) {
	ids, err := requireIDs("category", []string{id})
	if err != nil {
		return nil, err
	}
	return New(&RemoveCategory{ID: ids[0]}), nil
}

func (a *RemoveCategory) Type() string { return TypeRemoveCategory }

func (a *RemoveCategory) Views() ViewSet {
	return ViewCategories | ViewCaptions | ViewValidation
}

func (a *RemoveCategory) Describe() string {
	if a.Removed != nil {
		return fmt.Sprintf("Remove category %q", a.Removed.Name)
	}
	return "Remove category " + a.ID
}

func (a *RemoveCategory) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("category_id", a.ID)
	category, err := env.Tx.GetCategory(ctx, a.ID)
	if err != nil {
		return NotUndoable, err
	}
	if category == nil {
		env.progress(fmt.Sprintf("skipped: category %s does not exist", a.ID))
		return NotUndoable, nil
	}
	links, err := env.Tx.ListCaptionCategoriesByCategory(ctx, a.ID)
	if err != nil {
		return NotUndoable, err
	}
	if _, err := env.Tx.DeleteCategory(ctx, a.ID); err != nil {
		return NotUndoable, err
	}
	a.Removed = category
	a.Captions = links
	return IsUndoable, nil
}

func (a *RemoveCategory) Undo(ctx context.Context, env *Env) error {
	env.set("category_id", a.ID)
	category := *a.Removed
	if err := env.Tx.InsertCategory(ctx, &category); err != nil {
		return err
	}
	for _, link := range a.Captions {
		if _, err := env.Tx.InsertCaptionCategory(ctx, link); err != nil {
			env.set("caption_id", link.CaptionID)
			return err
		}
	}
	return nil
}

func (a *RemoveCategory) Redo(ctx context.Context, env *Env) error {
	env.set("category_id", a.ID)
	_, err := env.Tx.DeleteCategory(ctx, a.ID)
	return err
}

// ModifyCategory renames a category or changes whether it is required.
type ModifyCategory struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Required bool             `json:"required"`
	Before   *models.Category `json:"before,omitempty"`
}

// NewModifyCategory validates the name and builds the command.
func NewModifyCategory(id, name string, required bool) (*Command, error) {
	ids, err := requireIDs("category", []string{id})
	if err != nil {
		return nil, err
	}
	name, err = models.NormalizeCategoryName(name)
	if err != nil {
		return nil, invalid(err)
	}
	return New(&ModifyCategory{ID: ids[0], Name: name, Required: required}), nil
}

func (a *ModifyCategory) Type() string { return TypeModifyCategory }

func (a *ModifyCategory) Views() ViewSet {
	return ViewCategories | ViewCaptions | ViewValidation
}

func (a *ModifyCategory) Describe() string {
	if a.Before != nil && a.Before.Name != a.Name {
		return fmt.Sprintf("Rename category %q to %q", a.Before.Name, a.Name)
	}
	if a.Required {
		return fmt.Sprintf("Mark category %q required", a.Name)
	}
	return fmt.Sprintf("Mark category %q optional", a.Name)
}

func (a *ModifyCategory) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("category_id", a.ID)
	current, err := env.Tx.GetCategory(ctx, a.ID)
	if err != nil {
		return NotUndoable, err
	}
	if current == nil {
		return NotUndoable, fmt.Errorf("category %s: %w", a.ID, ErrNotFound)
	}
	if current.Name == a.Name && current.Required == a.Required {
		env.progress(fmt.Sprintf("category %q unchanged", a.Name))
		return NotUndoable, nil
	}
	if current.Name != a.Name {
		other, err := env.Tx.GetCategoryByName(ctx, a.Name)
		if err != nil {
			return NotUndoable, err
		}
		if other != nil {
			env.set("conflicting_category_id", other.ID)
			return NotUndoable, fmt.Errorf("category %q: %w: name already used", a.Name, ErrConflict)
		}
	}
	next := *current
	next.Name = a.Name
	next.Required = a.Required
	if _, err := env.Tx.UpdateCategory(ctx, next); err != nil {
		return NotUndoable, err
	}
	a.Before = current
	return IsUndoable, nil
}

func (a *ModifyCategory) Undo(ctx context.Context, env *Env) error {
	env.set("category_id", a.ID)
	_, err := env.Tx.UpdateCategory(ctx, *a.Before)
	return err
}

func (a *ModifyCategory) Redo(ctx context.Context, env *Env) error {
	env.set("category_id", a.ID)
	next := *a.Before
	next.Name = a.Name
	next.Required = a.Required
	_, err := env.Tx.UpdateCategory(ctx, next)
	return err
}
