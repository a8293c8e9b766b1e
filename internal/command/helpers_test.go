package command

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"capset/internal/blobstore"
	"capset/internal/events"
	"capset/internal/models"
	"capset/internal/store"
)

type fixture struct {
	st    *store.Store
	blobs *blobstore.LocalCAS
	dir   string

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "capset.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	return &fixture{st: st, blobs: blobs, dir: dir}
}

// run opens a transaction, passes an Env to fn, and commits when fn
// returns nil.
func (f *fixture) run(t *testing.T, fn func(ctx context.Context, env *Env) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := f.st.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	env := &Env{
		Tx:    tx,
		Blobs: f.blobs,
		Attrs: NewAttributes(),
		Progress: func(ev events.Event) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		},
	}
	if err := fn(ctx, env); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func (f *fixture) mustRun(t *testing.T, fn func(ctx context.Context, env *Env) error) {
	t.Helper()
	if err := f.run(t, fn); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func (f *fixture) progressMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Message)
	}
	return out
}

func (f *fixture) writeImage(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "images", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// seed inserts a small dataset with fixed ids:
// images im-a (/data/a.png, caption cat, tag pet, selected) and im-b,
// captions cp-cat (in required category ct-animal) and cp-dog,
// metadata license=cc-by.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.mustRun(t, func(ctx context.Context, env *Env) error {
		tx := env.Tx
		for _, image := range []models.Image{
			{ID: "im-a", Path: "/data/a.png", CreatedAt: created},
			{ID: "im-b", Path: "/data/b.png", CreatedAt: created},
		} {
			image := image
			if err := tx.InsertImage(ctx, &image); err != nil {
				return err
			}
		}
		for _, caption := range []models.Caption{
			{ID: "cp-cat", Text: "cat", CreatedAt: created},
			{ID: "cp-dog", Text: "dog", CreatedAt: created},
		} {
			caption := caption
			if err := tx.InsertCaption(ctx, &caption); err != nil {
				return err
			}
		}
		if err := tx.InsertCategory(ctx, &models.Category{ID: "ct-animal", Name: "animal", Required: true, CreatedAt: created}); err != nil {
			return err
		}
		if _, err := tx.InsertCaptionCategory(ctx, models.CaptionCategory{CaptionID: "cp-cat", CategoryID: "ct-animal"}); err != nil {
			return err
		}
		if _, err := tx.InsertImageCaption(ctx, models.ImageCaption{ImageID: "im-a", CaptionID: "cp-cat", Position: 0}); err != nil {
			return err
		}
		if _, err := tx.InsertImageTag(ctx, models.ImageTag{ImageID: "im-a", Tag: "pet"}); err != nil {
			return err
		}
		if err := tx.SetMetadata(ctx, "license", "cc-by"); err != nil {
			return err
		}
		return tx.ReplaceSelection(ctx, []string{"im-a"})
	})
}

type datasetDump struct {
	Images            []models.Image
	Captions          []models.Caption
	Categories        []models.Category
	ImageCaptions     []models.ImageCaption
	CaptionCategories []models.CaptionCategory
	Tags              []models.ImageTag
	Metadata          []models.MetadataEntry
	Selection         []string
}

func (f *fixture) dump(t *testing.T) datasetDump {
	t.Helper()
	var d datasetDump
	err := f.st.View(context.Background(), func(tx *store.Tx) error {
		ctx := context.Background()
		var err error
		if d.Images, err = tx.ListImages(ctx); err != nil {
			return err
		}
		if d.Captions, err = tx.ListCaptions(ctx); err != nil {
			return err
		}
		if d.Categories, err = tx.ListCategories(ctx); err != nil {
			return err
		}
		if d.ImageCaptions, err = tx.ListImageCaptions(ctx); err != nil {
			return err
		}
		if d.CaptionCategories, err = tx.ListCaptionCategories(ctx); err != nil {
			return err
		}
		if d.Tags, err = tx.ListImageTags(ctx); err != nil {
			return err
		}
		if d.Metadata, err = tx.ListMetadata(ctx); err != nil {
			return err
		}
		d.Selection, err = tx.ListSelection(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("dump dataset: %v", err)
	}
	return d
}

func assertSameDataset(t *testing.T, label string, want, got datasetDump) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("%s: dataset mismatch\nwant: %+v\n got: %+v", label, want, got)
	}
}
