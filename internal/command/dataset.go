package command

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"capset/internal/manifest"
	"capset/internal/models"
	"capset/internal/store"
)

const (
	TypeLoadDataset     = "dataset.load"
	TypeExportDataset   = "dataset.export"
	TypeValidateDataset = "dataset.validate"
)

var errNotReversible = errors.New("command is not reversible")

// LoadStep is one undoable sub-command run by a load. Exactly one field is set.
type LoadStep struct {
	Metadata *SetMetadata    `json:"metadata,omitempty"`
	Category *AddCategory    `json:"category,omitempty"`
	Captions *AddCaptions    `json:"captions,omitempty"`
	Assign   *AssignCaptions `json:"assign,omitempty"`
	Images   *AddImages      `json:"images,omitempty"`
	Caption  *CaptionImages  `json:"caption,omitempty"`
	Tags     *AddTags        `json:"tags,omitempty"`
}

func (s LoadStep) action() (Action, error) {
	switch {
	case s.Metadata != nil:
		return s.Metadata, nil
	case s.Category != nil:
		return s.Category, nil
	case s.Captions != nil:
		return s.Captions, nil
	case s.Assign != nil:
		return s.Assign, nil
	case s.Images != nil:
		return s.Images, nil
	case s.Caption != nil:
		return s.Caption, nil
	case s.Tags != nil:
		return s.Tags, nil
	default:
		return nil, errors.New("empty load step")
	}
}

func stepOf(a Action) LoadStep {
	switch v := a.(type) {
	case *SetMetadata:
		return LoadStep{Metadata: v}
	case *AddCategory:
		return LoadStep{Category: v}
	case *AddCaptions:
		return LoadStep{Captions: v}
	case *AssignCaptions:
		return LoadStep{Assign: v}
	case *AddImages:
		return LoadStep{Images: v}
	case *CaptionImages:
		return LoadStep{Caption: v}
	case *AddTags:
		return LoadStep{Tags: v}
	default:
		panic(fmt.Sprintf("command: %s cannot be a load step", a.Type()))
	}
}

// LoadDataset merges a manifest into the dataset. Existing rows are kept;
// only what the manifest adds is undone.
type LoadDataset struct {
	Source  string            `json:"source"`
	Dataset *manifest.Dataset `json:"-"`
	Steps   []LoadStep        `json:"steps,omitempty"`
}

// NewLoadDataset validates a manifest and builds the command.
func NewLoadDataset(source string, ds *manifest.Dataset) (*Command, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: manifest is required", ErrInvalidArgument)
	}
	if err := ds.Validate(); err != nil {
		return nil, invalid(err)
	}
	for key := range ds.Metadata {
		if _, err := models.NormalizeMetadataKey(key); err != nil {
			return nil, invalid(err)
		}
	}
	for _, category := range ds.Categories {
		if _, err := models.NormalizeCategoryName(category.Name); err != nil {
			return nil, invalid(err)
		}
		for _, text := range category.Captions {
			if _, err := models.NormalizeCaptionText(text); err != nil {
				return nil, invalid(fmt.Errorf("category %q: %w", category.Name, err))
			}
		}
	}
	for _, image := range ds.Images {
		if _, err := models.NormalizeImagePath(image.Path); err != nil {
			return nil, invalid(err)
		}
		for _, text := range image.Captions {
			if _, err := models.NormalizeCaptionText(text); err != nil {
				return nil, invalid(fmt.Errorf("image %s: %w", image.Path, err))
			}
		}
		if _, err := models.NormalizeTags(image.Tags); err != nil {
			return nil, invalid(fmt.Errorf("image %s: %w", image.Path, err))
		}
	}
	return New(&LoadDataset{Source: source, Dataset: ds}), nil
}

func (a *LoadDataset) Type() string   { return TypeLoadDataset }
func (a *LoadDataset) Views() ViewSet { return ViewAll }

func (a *LoadDataset) Describe() string {
	if a.Source == "" {
		return "Load dataset"
	}
	return "Load dataset from " + filepath.Base(a.Source)
}

func (a *LoadDataset) Execute(ctx context.Context, env *Env) (Undoable, error) {
	if a.Dataset == nil {
		return NotUndoable, fmt.Errorf("%w: manifest is required", ErrInvalidArgument)
	}
	env.set("source", a.Source)
	l := &loader{env: env, failures: newBatch(env, "load dataset", len(a.Dataset.Images))}
	phases := []func(context.Context, *loader) error{
		a.loadMetadata,
		a.loadCategories,
		a.loadImages,
	}
	for i, phase := range phases {
		if err := phase(ctx, l); err != nil {
			return NotUndoable, err
		}
		env.progressAt("load dataset", i, len(phases))
	}
	if err := l.failures.err(); err != nil {
		return NotUndoable, err
	}
	a.Steps = l.steps
	return undoableIf(len(a.Steps) > 0), nil
}

type loader struct {
	env      *Env
	steps    []LoadStep
	failures *batch
}

// run executes one sub-command. Item failures are collected so the load
// reports all of them; any other error aborts.
func (l *loader) run(ctx context.Context, a Action, err error) error {
	if err != nil {
		return err
	}
	result, err := a.Execute(ctx, l.env)
	if err != nil {
		if l.failures.merge(err) {
			return nil
		}
		return err
	}
	if result == IsUndoable {
		l.steps = append(l.steps, stepOf(a))
	}
	return nil
}

func (a *LoadDataset) loadMetadata(ctx context.Context, l *loader) error {
	keys := make([]string, 0, len(a.Dataset.Metadata))
	for key := range a.Dataset.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		action, err := newSetMetadata(key, a.Dataset.Metadata[key])
		if err := l.run(ctx, action, err); err != nil {
			return err
		}
	}
	return nil
}

func (a *LoadDataset) loadCategories(ctx context.Context, l *loader) error {
	for _, category := range a.Dataset.Categories {
		name, err := models.NormalizeCategoryName(category.Name)
		if err != nil {
			return invalid(err)
		}
		if err := l.run(ctx, &AddCategory{Name: name, Required: category.Required}, nil); err != nil {
			return err
		}
		if len(category.Captions) == 0 {
			continue
		}
		row, err := l.env.Tx.GetCategoryByName(ctx, name)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("category %q: %w", name, ErrNotFound)
		}
		ids, err := a.ensureCaptions(ctx, l, category.Captions)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			continue
		}
		action, err := newAssignCaptions(row.ID, ids)
		if err := l.run(ctx, action, err); err != nil {
			return err
		}
	}
	return nil
}

func (a *LoadDataset) loadImages(ctx context.Context, l *loader) error {
	if len(a.Dataset.Images) == 0 {
		return nil
	}
	paths := make([]string, 0, len(a.Dataset.Images))
	for _, image := range a.Dataset.Images {
		paths = append(paths, image.Path)
	}
	action, err := newAddImages(paths)
	if err := l.run(ctx, action, err); err != nil {
		return err
	}

	for i, image := range a.Dataset.Images {
		path, err := models.NormalizeImagePath(image.Path)
		if err != nil {
			return invalid(err)
		}
		row, err := l.env.Tx.GetImageByPath(ctx, path)
		if err != nil {
			return err
		}
		if row == nil {
			// Adding the image failed; its failure is already recorded.
			continue
		}
		if len(image.Captions) > 0 {
			ids, err := a.ensureCaptions(ctx, l, image.Captions)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				action, err := newCaptionImages(ids, []string{row.ID})
				if err := l.run(ctx, action, err); err != nil {
					return err
				}
			}
		}
		if len(image.Tags) > 0 {
			action, err := newAddTags([]string{row.ID}, image.Tags)
			if err := l.run(ctx, action, err); err != nil {
				return err
			}
		}
		l.env.progressAt(fmt.Sprintf("loaded image %s", filepath.Base(path)), i, len(a.Dataset.Images))
	}
	return nil
}

// ensureCaptions adds any missing caption texts and returns the ids of
// all of them.
func (a *LoadDataset) ensureCaptions(ctx context.Context, l *loader, texts []string) ([]string, error) {
	action, err := newAddCaptions(texts)
	if err := l.run(ctx, action, err); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(action.Texts))
	for _, text := range action.Texts {
		caption, err := l.env.Tx.GetCaptionByText(ctx, text)
		if err != nil {
			return nil, err
		}
		if caption != nil {
			ids = append(ids, caption.ID)
		}
	}
	return ids, nil
}

func (a *LoadDataset) Undo(ctx context.Context, env *Env) error {
	for i := len(a.Steps) - 1; i >= 0; i-- {
		action, err := a.Steps[i].action()
		if err != nil {
			return err
		}
		if err := action.Undo(ctx, env); err != nil {
			return fmt.Errorf("undo %s: %w", action.Type(), err)
		}
	}
	return nil
}

func (a *LoadDataset) Redo(ctx context.Context, env *Env) error {
	for _, step := range a.Steps {
		action, err := step.action()
		if err != nil {
			return err
		}
		if err := action.Redo(ctx, env); err != nil {
			return fmt.Errorf("redo %s: %w", action.Type(), err)
		}
	}
	return nil
}

// ExportDataset writes the dataset as a YAML manifest. It never changes
// durable state.
type ExportDataset struct {
	Path    string            `json:"path"`
	Written *manifest.Dataset `json:"-"`
}

// NewExportDataset builds the command.
func NewExportDataset(path string) (*Command, error) {
	path, err := models.NormalizeImagePath(path)
	if err != nil {
		return nil, invalid(fmt.Errorf("export path: %w", err))
	}
	return New(&ExportDataset{Path: path}), nil
}

func (a *ExportDataset) Type() string     { return TypeExportDataset }
func (a *ExportDataset) Views() ViewSet   { return ViewNone }
func (a *ExportDataset) Describe() string { return "Export dataset to " + a.Path }

func (a *ExportDataset) Execute(ctx context.Context, env *Env) (Undoable, error) {
	env.set("path", a.Path)
	ds, err := BuildManifest(ctx, env.Tx)
	if err != nil {
		return NotUndoable, err
	}
	if err := manifest.WriteFile(a.Path, ds); err != nil {
		return NotUndoable, fmt.Errorf("%w: %w", ErrExport, err)
	}
	a.Written = ds
	env.progress(fmt.Sprintf("exported %d images to %s", len(ds.Images), a.Path))
	return NotUndoable, nil
}

func (a *ExportDataset) Undo(context.Context, *Env) error { return errNotReversible }
func (a *ExportDataset) Redo(context.Context, *Env) error { return errNotReversible }

// BuildManifest reads the whole dataset into a manifest document.
func BuildManifest(ctx context.Context, tx *store.Tx) (*manifest.Dataset, error) {
	ds := &manifest.Dataset{Version: manifest.Version}

	metadata, err := tx.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		ds.Metadata = make(map[string]string, len(metadata))
		for _, entry := range metadata {
			ds.Metadata[entry.Key] = entry.Value
		}
	}

	captions, err := tx.ListCaptions(ctx)
	if err != nil {
		return nil, err
	}
	textByID := make(map[string]string, len(captions))
	for _, caption := range captions {
		textByID[caption.ID] = caption.Text
	}

	categories, err := tx.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, category := range categories {
		links, err := tx.ListCaptionCategoriesByCategory(ctx, category.ID)
		if err != nil {
			return nil, err
		}
		entry := manifest.Category{Name: category.Name, Required: category.Required}
		for _, link := range links {
			entry.Captions = append(entry.Captions, textByID[link.CaptionID])
		}
		sort.Strings(entry.Captions)
		ds.Categories = append(ds.Categories, entry)
	}

	images, err := tx.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	for _, image := range images {
		entry := manifest.Image{Path: image.Path}
		links, err := tx.ListImageCaptionsByImage(ctx, image.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			entry.Captions = append(entry.Captions, textByID[link.CaptionID])
		}
		tags, err := tx.ListImageTagsByImage(ctx, image.ID)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			entry.Tags = append(entry.Tags, tag.Tag)
		}
		ds.Images = append(ds.Images, entry)
	}
	return ds, nil
}

// ValidateDataset reports images missing a caption from a required
// category. It never changes durable state.
type ValidateDataset struct {
	Problems []models.ValidationProblem `json:"-"`
}

// NewValidateDataset builds the command.
func NewValidateDataset() *Command {
	return New(&ValidateDataset{})
}

func (a *ValidateDataset) Type() string     { return TypeValidateDataset }
func (a *ValidateDataset) Views() ViewSet   { return ViewValidation }
func (a *ValidateDataset) Describe() string { return "Validate dataset" }

func (a *ValidateDataset) Execute(ctx context.Context, env *Env) (Undoable, error) {
	problems, err := env.Tx.ListValidationProblems(ctx)
	if err != nil {
		return NotUndoable, err
	}
	a.Problems = problems
	if len(problems) == 0 {
		env.progress("dataset is valid")
	} else {
		env.progress(fmt.Sprintf("%d validation problems", len(problems)))
	}
	return NotUndoable, nil
}

func (a *ValidateDataset) Undo(context.Context, *Env) error { return errNotReversible }
func (a *ValidateDataset) Redo(context.Context, *Env) error { return errNotReversible }
