package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"capset/internal/blobstore"
	"capset/internal/command"
	"capset/internal/events"
	"capset/internal/models"
	"capset/internal/store"
)

type testEnv struct {
	model *Model
	store *store.Store
	blobs *blobstore.LocalCAS
	reg   *prometheus.Registry
	dir   string
}

func newTestModel(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "capset.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	reg := prometheus.NewRegistry()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts.Blobs = blobs
	opts.Registerer = reg
	m, err := New(st, opts)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	t.Cleanup(func() {
		m.Close()
		st.Close()
	})
	return &testEnv{model: m, store: st, blobs: blobs, reg: reg, dir: dir}
}

func wait[T any](t *testing.T, f *Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	value, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	return value
}

func waitErr[T any](t *testing.T, f *Future[T]) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.Wait(ctx)
	if err == nil {
		t.Fatal("expected operation to fail")
	}
	return err
}

// exec returns a runner taking a constructor's results directly, as in
// env.exec(t)(command.NewAddCaptions("cat")).
func (e *testEnv) exec(t *testing.T) func(*command.Command, error) Result {
	return func(cmd *command.Command, err error) Result {
		t.Helper()
		if err != nil {
			t.Fatalf("build command: %v", err)
		}
		return wait(t, e.model.Execute(context.Background(), cmd))
	}
}

func (e *testEnv) undo(t *testing.T) Result {
	t.Helper()
	return wait(t, e.model.Undo(context.Background()))
}

func (e *testEnv) redo(t *testing.T) Result {
	t.Helper()
	return wait(t, e.model.Redo(context.Background()))
}

func (e *testEnv) history(t *testing.T) History {
	t.Helper()
	return wait(t, e.model.History(context.Background()))
}

func (e *testEnv) writeImage(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// snapshotOf strips the snapshot counter so two states can be compared.
func snapshotOf(s *State) State {
	out := *s
	out.Version = 0
	return out
}

func collect(t *testing.T, sub *events.Subscription, n int) []events.Event {
	t.Helper()
	out := make([]events.Event, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func collectFailures(t *testing.T, sub *events.Subscription, n int) []events.Event {
	t.Helper()
	out := []events.Event{}
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sub.Events():
			if ev.Kind == events.KindFailure {
				out = append(out, ev)
			}
		case <-timeout:
			t.Fatalf("timed out after %d of %d failure events", len(out), n)
		}
	}
	return out
}

func TestAnimalCatScenario(t *testing.T) {
	env := newTestModel(t, Options{})
	initial := wait(t, env.model.Refresh(context.Background()))

	env.exec(t)(command.NewAddCategory("animal", false))
	category, ok := env.model.State().CategoryByName("animal")
	if !ok {
		t.Fatal("expected category animal in state")
	}
	env.exec(t)(command.NewAddCaptions("cat"))
	caption, ok := env.model.State().CaptionByText("cat")
	if !ok {
		t.Fatal("expected caption cat in state")
	}
	res := env.exec(t)(command.NewAssignCaptions(category.ID, caption.ID))
	if res.Undoable != command.IsUndoable {
		t.Fatalf("expected assignment to be undoable")
	}
	assigned, _ := res.State.Caption(caption.ID)
	if !reflect.DeepEqual(assigned.CategoryIDs, []string{category.ID}) {
		t.Fatalf("expected caption assigned to %s, got %v", category.ID, assigned.CategoryIDs)
	}

	for i := 0; i < 3; i++ {
		env.undo(t)
	}

	state := env.model.State()
	if len(state.Categories) != 0 || len(state.Captions) != 0 {
		t.Fatalf("expected empty categories and captions, got %+v %+v", state.Categories, state.Captions)
	}
	if len(initial.Categories) != 0 || len(initial.Captions) != 0 {
		t.Fatalf("expected an empty starting dataset")
	}
	if state.UndoDepth != 0 || state.RedoDepth != 3 || state.NextRedo != `Add category "animal"` {
		t.Fatalf("unexpected ledgers: undo=%d redo=%d next=%q", state.UndoDepth, state.RedoDepth, state.NextRedo)
	}
}

func TestDuplicateCaptionScenario(t *testing.T) {
	env := newTestModel(t, Options{})

	first := env.exec(t)(command.NewAddCaptions("cat"))
	second := env.exec(t)(command.NewAddCaptions("cat"))
	if first.Undoable != command.IsUndoable {
		t.Fatalf("expected first add to be undoable")
	}
	if second.Undoable != command.NotUndoable {
		t.Fatalf("expected second add to be not undoable")
	}

	h := env.history(t)
	if len(h.Undo) != 1 {
		t.Fatalf("expected exactly one undo entry, got %d", len(h.Undo))
	}
	if len(env.model.State().Captions) != 1 {
		t.Fatalf("expected one caption, got %+v", env.model.State().Captions)
	}
}

func TestUndoRedoInverseLaw(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddCategory("animal", true))
	env.exec(t)(command.NewAddCaptions("cat", "dog"))
	env.exec(t)(command.NewAddImages(env.writeImage(t, "cat.png", "meow"), env.writeImage(t, "dog.png", "woof")))
	state := env.model.State()
	animal, _ := state.CategoryByName("animal")
	cat, _ := state.CaptionByText("cat")
	dog, _ := state.CaptionByText("dog")
	imageIDs := []string{state.Images[0].ID, state.Images[1].ID}

	env.exec(t)(command.NewAssignCaptions(animal.ID, cat.ID, dog.ID))
	env.exec(t)(command.NewCaptionImages([]string{cat.ID}, imageIDs))
	env.exec(t)(command.NewAddTags(imageIDs, []string{"pet"}))
	env.exec(t)(command.NewSetMetadata("license", "cc-by"))
	env.exec(t)(command.NewSelectImages(imageIDs[0]))
	env.exec(t)(command.NewModifyCaption(dog.ID, "puppy"))
	env.exec(t)(command.NewRemoveImages(imageIDs[1]))
	env.exec(t)(command.NewModifyCategory(animal.ID, "fauna", false))

	after := snapshotOf(wait(t, env.model.Refresh(context.Background())))
	n := after.UndoDepth
	if n != 11 {
		t.Fatalf("expected 11 undo entries, got %d", n)
	}

	for i := 0; i < n; i++ {
		env.undo(t)
	}
	undone := env.model.State()
	if len(undone.Images) != 0 || len(undone.Captions) != 0 || len(undone.Categories) != 0 || len(undone.Metadata) != 0 {
		t.Fatalf("expected empty dataset after undoing everything, got %+v", undone)
	}

	for i := 0; i < n; i++ {
		env.redo(t)
	}
	redone := snapshotOf(wait(t, env.model.Refresh(context.Background())))
	if !reflect.DeepEqual(after, redone) {
		t.Fatalf("state after redo differs\nwant: %+v\n got: %+v", after, redone)
	}
}

func TestLedgerOrdering(t *testing.T) {
	env := newTestModel(t, Options{})

	for _, name := range []string{"a", "b", "c"} {
		res := env.exec(t)(command.NewAddCategory(name, false))
		h := env.history(t)
		if h.Undo[0].Description != res.Description {
			t.Fatalf("undo tip %q, want %q", h.Undo[0].Description, res.Description)
		}
	}

	before := env.history(t)
	tip := before.Undo[0]
	env.undo(t)

	after := env.history(t)
	if len(after.Redo) != 1 {
		t.Fatalf("expected one redo entry, got %d", len(after.Redo))
	}
	moved := after.Redo[0]
	if moved.ID != tip.ID || moved.Description != tip.Description || !moved.CreatedAt.Equal(tip.CreatedAt) ||
		string(moved.Payload) != string(tip.Payload) {
		t.Fatalf("moved entry changed: %+v vs %+v", moved, tip)
	}

	env.undo(t)
	after = env.history(t)
	if after.Redo[0].Description != `Add category "b"` {
		t.Fatalf("expected most recently undone entry at redo tip, got %q", after.Redo[0].Description)
	}
	res := env.redo(t)
	if res.Description != `Add category "b"` {
		t.Fatalf("expected redo of b, got %q", res.Description)
	}
	if env.model.State().NextRedo != `Add category "c"` {
		t.Fatalf("expected c next to redo, got %q", env.model.State().NextRedo)
	}
}

func TestNewCommandClearsRedoLedger(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddCategory("a", false))
	env.undo(t)
	if env.model.State().RedoDepth != 1 {
		t.Fatalf("expected one redo entry")
	}
	env.exec(t)(command.NewAddCategory("b", false))
	state := env.model.State()
	if state.RedoDepth != 0 || state.NextRedo != "" {
		t.Fatalf("expected redo ledger cleared, got depth %d next %q", state.RedoDepth, state.NextRedo)
	}
}

func TestUndoAndRedoOnEmptyLedgersAreNoOps(t *testing.T) {
	env := newTestModel(t, Options{})
	if res := env.undo(t); !res.NoOp {
		t.Fatalf("expected undo no-op, got %+v", res)
	}
	if res := env.redo(t); !res.NoOp {
		t.Fatalf("expected redo no-op, got %+v", res)
	}
}

func TestNoOpCommandLeavesLedgerAlone(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddCategory("animal", false))
	env.undo(t)
	env.redo(t)

	res := env.exec(t)(command.NewAddCategory("animal", false))
	if res.Undoable != command.NotUndoable {
		t.Fatalf("expected not undoable")
	}
	h := env.history(t)
	if len(h.Undo) != 1 || len(h.Redo) != 0 {
		t.Fatalf("expected ledgers untouched, got undo=%d redo=%d", len(h.Undo), len(h.Redo))
	}
}

func appendRawEntry(t *testing.T, st *store.Store, payload string) {
	t.Helper()
	err := st.Update(context.Background(), func(tx *store.Tx) error {
		return tx.AppendLedger(context.Background(), store.UndoLedger, &models.LedgerEntry{
			Description: "mystery",
			Payload:     []byte(payload),
		})
	})
	if err != nil {
		t.Fatalf("append entry: %v", err)
	}
}

func TestDecodeErrorLeavesEntryInPlace(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		code    Code
	}{
		{name: "malformed", payload: `not json`, code: CodeLedgerDecode},
		{name: "unknown field", payload: `{"@Type":"caption.add","@Version":1,"data":{"wat":1}}`, code: CodeLedgerDecode},
		{name: "unknown type", payload: `{"@Type":"caption.melt","@Version":1,"data":{}}`, code: CodeUnknownCommandType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestModel(t, Options{})
			sub := env.model.Events().Subscribe()
			defer sub.Close()
			appendRawEntry(t, env.store, tt.payload)

			err := waitErr(t, env.model.Undo(context.Background()))
			if CodeOf(err) != tt.code {
				t.Fatalf("expected code %s, got %s (%v)", tt.code, CodeOf(err), err)
			}
			var modelErr *Error
			if !errors.As(err, &modelErr) || modelErr.Attributes["description"] != "mystery" || modelErr.Remediation == "" {
				t.Fatalf("expected attributes and remediation, got %+v", modelErr)
			}

			h := env.history(t)
			if len(h.Undo) != 1 || len(h.Redo) != 0 {
				t.Fatalf("expected entry left in undo ledger, got undo=%d redo=%d", len(h.Undo), len(h.Redo))
			}
			failures := collectFailures(t, sub, 1)
			if failures[0].Code != string(tt.code) {
				t.Fatalf("expected failure event %s, got %+v", tt.code, failures[0])
			}
		})
	}
}

func TestItemFailuresRollBackAndPublishPerItem(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddImages(env.writeImage(t, "a.png", "a")))
	before := snapshotOf(env.model.State())

	sub := env.model.Events().Subscribe()
	defer sub.Close()

	imageID := before.Images[0].ID
	err := waitErr(t, env.model.Execute(context.Background(), mustCommand(t)(command.NewAddTags(
		[]string{"im-missing1", imageID, "im-missing2"}, []string{"pet"},
	))))
	if CodeOf(err) != CodeItemFailures {
		t.Fatalf("expected item failures, got %v", err)
	}

	failures := collectFailures(t, sub, 2)
	for i, want := range []string{"im-missing1", "im-missing2"} {
		if failures[i].Attributes["image_id"] != want || failures[i].Code != string(CodeNotFound) {
			t.Fatalf("failure %d: unexpected event %+v", i, failures[i])
		}
	}

	if got := snapshotOf(env.model.State()); !reflect.DeepEqual(before, got) {
		t.Fatalf("expected state unchanged after failure")
	}
	wait(t, env.model.Refresh(context.Background()))
	if tags := env.model.State().Tags; len(tags) != 0 {
		t.Fatalf("expected no tags after rollback, got %+v", tags)
	}
	if h := env.history(t); len(h.Undo) != 1 {
		t.Fatalf("expected failed command to leave the ledger alone, got %d", len(h.Undo))
	}
}

func mustCommand(t *testing.T) func(*command.Command, error) *command.Command {
	return func(cmd *command.Command, err error) *command.Command {
		t.Helper()
		if err != nil {
			t.Fatalf("build command: %v", err)
		}
		return cmd
	}
}

func TestProgressEventsReachSubscribers(t *testing.T) {
	env := newTestModel(t, Options{})
	sub := env.model.Events().Subscribe()
	defer sub.Close()

	env.exec(t)(command.NewAddCaptions("a", "b"))
	got := collect(t, sub, 2)
	if got[0].Kind != events.KindProgress || got[0].Progress == nil || *got[0].Progress != 0.5 {
		t.Fatalf("unexpected first progress event: %+v", got[0])
	}
	if got[1].Progress == nil || *got[1].Progress != 1 {
		t.Fatalf("unexpected second progress event: %+v", got[1])
	}
}

// hookAction is a test action that runs a hook inside the executor.
type hookAction struct {
	hook func()
}

func (p *hookAction) Type() string     { return "test.hook" }
func (p *hookAction) Describe() string { return "hook" }
func (p *hookAction) Views() command.ViewSet {
	return command.ViewNone
}
func (p *hookAction) Execute(context.Context, *command.Env) (command.Undoable, error) {
	p.hook()
	return command.NotUndoable, nil
}
func (p *hookAction) Undo(context.Context, *command.Env) error { return nil }
func (p *hookAction) Redo(context.Context, *command.Env) error { return nil }

func TestOperationsNeverInterleave(t *testing.T) {
	env := newTestModel(t, Options{})

	var mu sync.Mutex
	active := 0
	overlapped := false
	order := []int{}

	futures := make([]*Future[Result], 0, 20)
	for i := 0; i < 20; i++ {
		i := i
		cmd := command.New(&hookAction{hook: func() {
			mu.Lock()
			active++
			if active > 1 {
				overlapped = true
			}
			order = append(order, i)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}})
		futures = append(futures, env.model.Execute(context.Background(), cmd))
	}
	for _, f := range futures {
		wait(t, f)
	}

	if overlapped {
		t.Fatal("operations overlapped")
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected submission order, got %v", order)
		}
	}
}

func TestSubmitBlocksWhenQueueIsFull(t *testing.T) {
	env := newTestModel(t, Options{QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := env.model.Execute(context.Background(), command.New(&hookAction{hook: func() {
		close(started)
		<-release
	}}))
	<-started

	queued := env.model.Execute(context.Background(), command.New(&hookAction{hook: func() {}}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rejected := env.model.Execute(ctx, command.New(&hookAction{hook: func() {}}))
	select {
	case <-rejected.Done():
	default:
		t.Fatal("expected submission to return once its context ended")
	}
	if err := waitErr(t, rejected); CodeOf(err) != CodeCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}

	close(release)
	wait(t, blocking)
	wait(t, queued)
}

func TestCompactTruncatesLedgersAndDeletesOrphanBlobs(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddImages(env.writeImage(t, "cat.png", "meow")))
	image := env.model.State().Images[0]
	env.exec(t)(command.NewRemoveImages(image.ID))
	env.undo(t)

	var blob *models.Blob
	if err := env.store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		blob, err = tx.GetBlob(context.Background(), image.BlobID)
		return err
	}); err != nil || blob == nil {
		t.Fatalf("expected blob row, got %v err=%v", blob, err)
	}
	env.redo(t)

	res := wait(t, env.model.Compact(context.Background()))
	if res.UndoEntries != 2 || res.RedoEntries != 0 || res.Blobs != 1 || res.BlobBytes != 4 {
		t.Fatalf("unexpected compact result: %+v", res)
	}
	if _, err := env.blobs.Open(context.Background(), blob.BlobKey); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected blob bytes deleted, got %v", err)
	}

	state := env.model.State()
	if state.NextUndo != "" || state.NextRedo != "" || state.UndoDepth != 0 {
		t.Fatalf("expected history cleared, got %+v", state)
	}
	if res := env.undo(t); !res.NoOp {
		t.Fatalf("expected nothing to undo after compact")
	}
}

func TestCompactDeletesBytesLeftByRolledBackCommand(t *testing.T) {
	env := newTestModel(t, Options{})
	ctx := context.Background()
	env.exec(t)(command.NewAddImages(env.writeImage(t, "keep.png", "keep")))
	kept := env.model.State().Images[0]

	// The first path stores its bytes, the second fails, so the whole
	// command rolls back with the bytes already on disk.
	stray := env.writeImage(t, "stray.png", "stray")
	err := waitErr(t, env.model.Execute(ctx, mustCommand(t)(command.NewAddImages(stray, filepath.Join(env.dir, "missing.png")))))
	if CodeOf(err) != CodeItemFailures {
		t.Fatalf("expected item failures, got %v", err)
	}
	keys, err := env.blobs.Keys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected kept and stray bytes on disk, got %v", keys)
	}

	res := wait(t, env.model.Compact(ctx))
	if res.StrayBlobs != 1 || res.Blobs != 0 {
		t.Fatalf("unexpected compact result: %+v", res)
	}

	keys, err = env.blobs.Keys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected only the kept image bytes, got %v", keys)
	}
	var blob *models.Blob
	if err := env.store.View(ctx, func(tx *store.Tx) error {
		var err error
		blob, err = tx.GetBlob(ctx, kept.BlobID)
		return err
	}); err != nil || blob == nil {
		t.Fatalf("expected kept blob row, got %v err=%v", blob, err)
	}
	if keys[0] != blob.BlobKey {
		t.Fatalf("expected %s to survive, got %v", blob.BlobKey, keys)
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	env := newTestModel(t, Options{})
	env.exec(t)(command.NewAddCategory("a", false))
	env.exec(t)(command.NewAddCategory("a", false))
	env.undo(t)
	_ = waitErr(t, env.model.Execute(context.Background(), mustCommand(t)(command.NewModifyCaption("cp-none", "x"))))

	ops := env.model.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues(opExecute, "ok")); got != 1 {
		t.Fatalf("execute ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues(opExecute, "noop")); got != 1 {
		t.Fatalf("execute noop = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues(opExecute, "error")); got != 1 {
		t.Fatalf("execute error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues(opUndo, "ok")); got != 1 {
		t.Fatalf("undo ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.model.metrics.ledgerEntries.WithLabelValues("redo")); got != 1 {
		t.Fatalf("redo ledger gauge = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(env.reg, "capset_model_operations_total"); err != nil || n == 0 {
		t.Fatalf("expected registered operation series, got %d err=%v", n, err)
	}
}

func TestExecuteAfterCloseFails(t *testing.T) {
	env := newTestModel(t, Options{})
	env.model.Close()

	cmd, _ := command.NewAddCategory("late", false)
	err := waitErr(t, env.model.Execute(context.Background(), cmd))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExecuteRejectsNilCommand(t *testing.T) {
	env := newTestModel(t, Options{})
	err := waitErr(t, env.model.Execute(context.Background(), nil))
	if CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
