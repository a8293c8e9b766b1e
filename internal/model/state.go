package model

import (
	"context"
	"sort"

	"capset/internal/command"
	"capset/internal/models"
	"capset/internal/store"
)

// State is an immutable snapshot of the observable dataset views. A new
// value replaces the old one after every successful operation; readers must
// not modify it.
type State struct {
	Version    uint64                     `json:"version"`
	Images     []ImageView                `json:"images"`
	Captions   []CaptionView              `json:"captions"`
	Categories []models.Category          `json:"categories"`
	Tags       []TagCount                 `json:"tags"`
	Metadata   []models.MetadataEntry     `json:"metadata"`
	Selection  []string                   `json:"selection"`
	Problems   []models.ValidationProblem `json:"problems"`
	NextUndo   string                     `json:"next_undo,omitempty"`
	NextRedo   string                     `json:"next_redo,omitempty"`
	UndoDepth  int                        `json:"undo_depth"`
	RedoDepth  int                        `json:"redo_depth"`
}

// ImageView is one image with its caption ids in position order and its tags.
type ImageView struct {
	models.Image
	CaptionIDs []string `json:"caption_ids"`
	Tags       []string `json:"tags"`
}

// CaptionView is one caption with the categories it is assigned to.
type CaptionView struct {
	models.Caption
	CategoryIDs []string `json:"category_ids"`
}

// TagCount is a distinct tag and how many images carry it.
type TagCount struct {
	Tag    string `json:"tag"`
	Images int    `json:"images"`
}

func emptyState() *State {
	return &State{
		Images:     []ImageView{},
		Captions:   []CaptionView{},
		Categories: []models.Category{},
		Tags:       []TagCount{},
		Metadata:   []models.MetadataEntry{},
		Selection:  []string{},
		Problems:   []models.ValidationProblem{},
	}
}

// Image returns the image view with id, if present.
func (s *State) Image(id string) (ImageView, bool) {
	for _, image := range s.Images {
		if image.ID == id {
			return image, true
		}
	}
	return ImageView{}, false
}

// Caption returns the caption view with id, if present.
func (s *State) Caption(id string) (CaptionView, bool) {
	for _, caption := range s.Captions {
		if caption.ID == id {
			return caption, true
		}
	}
	return CaptionView{}, false
}

// CaptionByText returns the caption view with the exact text, if present.
func (s *State) CaptionByText(text string) (CaptionView, bool) {
	for _, caption := range s.Captions {
		if caption.Text == text {
			return caption, true
		}
	}
	return CaptionView{}, false
}

// CategoryByName returns the category with name, if present.
func (s *State) CategoryByName(name string) (models.Category, bool) {
	for _, category := range s.Categories {
		if category.Name == name {
			return category, true
		}
	}
	return models.Category{}, false
}

// buildState reads the views in views from tx into a copy of prev. Ledger
// descriptions and depths are always re-read.
func buildState(ctx context.Context, tx *store.Tx, prev *State, views command.ViewSet) (*State, error) {
	next := *prev
	next.Version = prev.Version + 1

	if views.Has(command.ViewImages) {
		images, err := readImages(ctx, tx)
		if err != nil {
			return nil, err
		}
		next.Images = images
	}
	if views.Has(command.ViewCaptions) {
		captions, err := readCaptions(ctx, tx)
		if err != nil {
			return nil, err
		}
		next.Captions = captions
	}
	if views.Has(command.ViewCategories) {
		categories, err := tx.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		next.Categories = categories
	}
	if views.Has(command.ViewTags) {
		tags, err := readTagCounts(ctx, tx)
		if err != nil {
			return nil, err
		}
		next.Tags = tags
	}
	if views.Has(command.ViewMetadata) {
		metadata, err := tx.ListMetadata(ctx)
		if err != nil {
			return nil, err
		}
		next.Metadata = metadata
	}
	if views.Has(command.ViewSelection) {
		selection, err := tx.ListSelection(ctx)
		if err != nil {
			return nil, err
		}
		next.Selection = selection
	}
	if views.Has(command.ViewValidation) {
		problems, err := tx.ListValidationProblems(ctx)
		if err != nil {
			return nil, err
		}
		next.Problems = problems
	}

	if err := readLedgerTips(ctx, tx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func readImages(ctx context.Context, tx *store.Tx) ([]ImageView, error) {
	images, err := tx.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	links, err := tx.ListImageCaptions(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := tx.ListImageTags(ctx)
	if err != nil {
		return nil, err
	}

	captionsByImage := make(map[string][]string)
	for _, link := range links {
		captionsByImage[link.ImageID] = append(captionsByImage[link.ImageID], link.CaptionID)
	}
	tagsByImage := make(map[string][]string)
	for _, tag := range tags {
		tagsByImage[tag.ImageID] = append(tagsByImage[tag.ImageID], tag.Tag)
	}

	out := make([]ImageView, 0, len(images))
	for _, image := range images {
		view := ImageView{Image: image, CaptionIDs: captionsByImage[image.ID], Tags: tagsByImage[image.ID]}
		if view.CaptionIDs == nil {
			view.CaptionIDs = []string{}
		}
		if view.Tags == nil {
			view.Tags = []string{}
		}
		out = append(out, view)
	}
	return out, nil
}

func readCaptions(ctx context.Context, tx *store.Tx) ([]CaptionView, error) {
	captions, err := tx.ListCaptions(ctx)
	if err != nil {
		return nil, err
	}
	links, err := tx.ListCaptionCategories(ctx)
	if err != nil {
		return nil, err
	}
	byCaption := make(map[string][]string)
	for _, link := range links {
		byCaption[link.CaptionID] = append(byCaption[link.CaptionID], link.CategoryID)
	}

	out := make([]CaptionView, 0, len(captions))
	for _, caption := range captions {
		categories := byCaption[caption.ID]
		if categories == nil {
			categories = []string{}
		}
		sort.Strings(categories)
		out = append(out, CaptionView{Caption: caption, CategoryIDs: categories})
	}
	return out, nil
}

func readTagCounts(ctx context.Context, tx *store.Tx) ([]TagCount, error) {
	tags, err := tx.ListImageTags(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, tag := range tags {
		counts[tag.Tag]++
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Images: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func readLedgerTips(ctx context.Context, tx *store.Tx, state *State) error {
	undo, err := tx.LedgerTip(ctx, store.UndoLedger)
	if err != nil {
		return err
	}
	redo, err := tx.LedgerTip(ctx, store.RedoLedger)
	if err != nil {
		return err
	}
	state.NextUndo, state.NextRedo = "", ""
	if undo != nil {
		state.NextUndo = undo.Description
	}
	if redo != nil {
		state.NextRedo = redo.Description
	}
	if state.UndoDepth, err = tx.CountLedger(ctx, store.UndoLedger); err != nil {
		return err
	}
	state.RedoDepth, err = tx.CountLedger(ctx, store.RedoLedger)
	return err
}
