// Package model is the single entry point that mutates a dataset. It runs
// commands one at a time on an executor goroutine, keeps the persisted undo
// and redo ledgers, publishes progress and failure events, and exposes the
// observable state as an immutable snapshot.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"capset/internal/blobstore"
	"capset/internal/command"
	"capset/internal/events"
	"capset/internal/models"
	"capset/internal/store"
)

const (
	// DefaultQueueSize bounds the number of operations waiting for the executor.
	DefaultQueueSize = 64

	tracerName = "capset/model"
)

const (
	opExecute = "execute"
	opUndo    = "undo"
	opRedo    = "redo"
	opCompact = "compact"
	opHistory = "history"
	opRefresh = "refresh"
)

// Options configures a Model. Zero values select defaults.
type Options struct {
	Registry  *command.Registry
	Blobs     blobstore.BlobStore
	Publisher *events.Publisher
	Logger    *slog.Logger
	// Registerer receives the model's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	QueueSize  int
	// OperationTimeout bounds each operation once it starts running.
	OperationTimeout time.Duration
}

// Result describes a finished execute, undo or redo.
type Result struct {
	Op          string
	Type        string
	Description string
	Undoable    command.Undoable
	// NoOp is set when undo or redo found an empty ledger.
	NoOp    bool
	Command *command.Command
	State   *State
}

// CompactResult describes a finished compaction.
type CompactResult struct {
	UndoEntries int64
	RedoEntries int64
	Blobs       int
	BlobBytes   int64
	// BlobDeleteErrors counts blob payloads whose rows were removed but
	// whose bytes could not be deleted.
	BlobDeleteErrors int
	// StrayBlobs counts stored payloads deleted because no blob row
	// referred to them.
	StrayBlobs int
}

// History lists both ledgers in pop order.
type History struct {
	Undo []models.LedgerEntry
	Redo []models.LedgerEntry
}

type task struct {
	op  string
	run func()
}

// Model serializes every operation on one dataset.
type Model struct {
	store    *store.Store
	blobs    blobstore.BlobStore
	registry *command.Registry
	events   *events.Publisher
	logger   *slog.Logger
	metrics  *metrics
	tracer   trace.Tracer
	timeout  time.Duration

	// attrs is only touched by the executor goroutine.
	attrs *command.Attributes
	state atomic.Pointer[State]

	queue   chan task
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	done    chan struct{}
}

// New starts a model over st. The observable state starts empty; call
// Refresh to load it.
func New(st *store.Store, opts Options) (*Model, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if opts.Registry == nil {
		opts.Registry = command.DefaultRegistry()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewPublisher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.OperationTimeout < 0 {
		return nil, fmt.Errorf("operation timeout must be >= 0")
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	model := &Model{
		store:    st,
		blobs:    opts.Blobs,
		registry: opts.Registry,
		events:   opts.Publisher,
		logger:   opts.Logger.With("component", "model"),
		metrics:  m,
		tracer:   opts.TracerProvider.Tracer(tracerName),
		timeout:  opts.OperationTimeout,
		attrs:    command.NewAttributes(),
		queue:    make(chan task, opts.QueueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	model.state.Store(emptyState())
	go model.run()
	return model, nil
}

// Events returns the publisher carrying progress and failure events.
func (m *Model) Events() *events.Publisher {
	return m.events
}

// State returns the latest published snapshot.
func (m *Model) State() *State {
	return m.state.Load()
}

// Close waits for queued operations to finish and stops the executor.
// Operations submitted afterwards fail with ErrClosed.
func (m *Model) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.closing)
	}
	m.mu.Unlock()
	<-m.done
}

func (m *Model) run() {
	defer close(m.done)
	for {
		select {
		case t := <-m.queue:
			m.metrics.queueDepth.Set(float64(len(m.queue)))
			t.run()
		case <-m.closing:
			for {
				select {
				case t := <-m.queue:
					t.run()
				default:
					return
				}
			}
		}
	}
}

// enqueue blocks while the queue is full, until there is room or ctx ends.
func (m *Model) enqueue(ctx context.Context, t task) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.queue <- t:
		m.metrics.queueDepth.Set(float64(len(m.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit queues fn and returns its future. fn runs on the executor with the
// operation timeout applied to ctx.
func submit[T any](m *Model, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T
	t := task{op: op, run: func() {
		if err := ctx.Err(); err != nil {
			f.resolve(zero, m.reject(op, err))
			return
		}
		runCtx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		f.resolve(fn(runCtx))
	}}
	if err := m.enqueue(ctx, t); err != nil {
		f.resolve(zero, m.reject(op, err))
	}
	return f
}

// reject reports an operation that never ran.
func (m *Model) reject(op string, err error) error {
	m.metrics.operations.WithLabelValues(op, "rejected").Inc()
	return classify(op, err, nil)
}

// Execute queues cmd. The future resolves once it has committed or rolled
// back.
func (m *Model) Execute(ctx context.Context, cmd *command.Command) *Future[Result] {
	if cmd == nil {
		f := newFuture[Result]()
		f.resolve(Result{}, classify(opExecute, fmt.Errorf("%w: command is required", command.ErrInvalidArgument), nil))
		return f
	}
	return submit(m, ctx, opExecute, func(ctx context.Context) (Result, error) {
		return m.execute(ctx, cmd)
	})
}

// Undo queues an undo of the newest undo-ledger entry.
func (m *Model) Undo(ctx context.Context) *Future[Result] {
	return submit(m, ctx, opUndo, func(ctx context.Context) (Result, error) {
		return m.replay(ctx, opUndo, store.UndoLedger, store.RedoLedger)
	})
}

// Redo queues a redo of the most recently undone entry.
func (m *Model) Redo(ctx context.Context) *Future[Result] {
	return submit(m, ctx, opRedo, func(ctx context.Context) (Result, error) {
		return m.replay(ctx, opRedo, store.RedoLedger, store.UndoLedger)
	})
}

// Compact queues a compaction: both ledgers are truncated and blobs no
// image references are deleted.
func (m *Model) Compact(ctx context.Context) *Future[CompactResult] {
	return submit(m, ctx, opCompact, m.compact)
}

// History queues a read of both ledgers.
func (m *Model) History(ctx context.Context) *Future[History] {
	return submit(m, ctx, opHistory, m.history)
}

// Refresh queues a recomputation of every observable view.
func (m *Model) Refresh(ctx context.Context) *Future[*State] {
	return submit(m, ctx, opRefresh, func(ctx context.Context) (*State, error) {
		start := time.Now()
		ctx, span := m.tracer.Start(ctx, "model.Refresh")
		defer span.End()
		state, err := m.refresh(ctx, command.ViewAll)
		if err != nil {
			return nil, m.fail(ctx, span, opRefresh, start, err)
		}
		m.succeed(opRefresh, "ok", start)
		return state, nil
	})
}

func (m *Model) newEnv(tx *store.Tx) *command.Env {
	return &command.Env{
		Tx:       tx,
		Blobs:    m.blobs,
		Attrs:    m.attrs,
		Progress: m.events.Publish,
	}
}

func (m *Model) execute(ctx context.Context, cmd *command.Command) (Result, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "model.Execute", trace.WithAttributes(
		attribute.String("command.type", cmd.Type()),
	))
	defer span.End()

	m.attrs.Clear()
	m.attrs.Set("command", cmd.Type())

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return Result{}, m.fail(ctx, span, opExecute, start, err)
	}
	defer tx.Rollback()

	undoable, err := cmd.Execute(ctx, m.newEnv(tx))
	if err != nil {
		return Result{}, m.fail(ctx, span, opExecute, start, err)
	}

	description := cmd.Describe()
	if undoable == command.IsUndoable {
		payload, err := cmd.Encode()
		if err != nil {
			return Result{}, m.fail(ctx, span, opExecute, start, err)
		}
		entry := &models.LedgerEntry{Description: description, Payload: payload}
		if err := tx.AppendLedger(ctx, store.UndoLedger, entry); err != nil {
			return Result{}, m.fail(ctx, span, opExecute, start, fmt.Errorf("append undo entry: %w", err))
		}
		if _, err := tx.ClearLedger(ctx, store.RedoLedger); err != nil {
			return Result{}, m.fail(ctx, span, opExecute, start, fmt.Errorf("clear redo ledger: %w", err))
		}
		span.SetAttributes(attribute.Int64("ledger.entry_id", entry.ID))
	}
	if err := tx.Commit(); err != nil {
		return Result{}, m.fail(ctx, span, opExecute, start, fmt.Errorf("commit: %w", err))
	}

	state := m.refreshAfterCommit(ctx, cmd.Views())
	span.SetAttributes(attribute.Bool("command.undoable", undoable == command.IsUndoable))
	outcome := "ok"
	if undoable != command.IsUndoable {
		outcome = "noop"
	}
	m.succeed(opExecute, outcome, start)
	m.logger.Info("command executed", "type", cmd.Type(), "description", description, "undoable", undoable == command.IsUndoable)

	return Result{
		Op:          opExecute,
		Type:        cmd.Type(),
		Description: description,
		Undoable:    undoable,
		Command:     cmd,
		State:       state,
	}, nil
}

// replay pops the tip of from, runs its undo or redo, and moves the entry
// to the other ledger. A decode failure leaves the entry where it is.
func (m *Model) replay(ctx context.Context, op string, from, to store.Ledger) (Result, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "model."+spanSuffix(op))
	defer span.End()

	m.attrs.Clear()

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return Result{}, m.fail(ctx, span, op, start, err)
	}
	defer tx.Rollback()

	entry, err := tx.LedgerTip(ctx, from)
	if err != nil {
		return Result{}, m.fail(ctx, span, op, start, err)
	}
	if entry == nil {
		m.succeed(op, "noop", start)
		return Result{Op: op, NoOp: true, State: m.State()}, nil
	}
	m.attrs.Set("ledger_entry_id", strconv.FormatInt(entry.ID, 10))
	m.attrs.Set("description", entry.Description)
	span.SetAttributes(attribute.Int64("ledger.entry_id", entry.ID))

	cmd, err := m.registry.Decode(entry.Payload)
	if err != nil {
		return Result{}, m.fail(ctx, span, op, start, err)
	}
	m.attrs.Set("command", cmd.Type())
	span.SetAttributes(attribute.String("command.type", cmd.Type()))

	env := m.newEnv(tx)
	if op == opUndo {
		err = cmd.Undo(ctx, env)
	} else {
		err = cmd.Redo(ctx, env)
	}
	if err != nil {
		return Result{}, m.fail(ctx, span, op, start, err)
	}
	if err := tx.MoveLedgerEntry(ctx, from, to, entry.ID); err != nil {
		return Result{}, m.fail(ctx, span, op, start, fmt.Errorf("move ledger entry: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return Result{}, m.fail(ctx, span, op, start, fmt.Errorf("commit: %w", err))
	}

	state := m.refreshAfterCommit(ctx, cmd.Views())
	m.succeed(op, "ok", start)
	m.logger.Info("command replayed", "op", op, "type", cmd.Type(), "description", entry.Description, "entry_id", entry.ID)

	return Result{
		Op:          op,
		Type:        cmd.Type(),
		Description: entry.Description,
		Undoable:    command.IsUndoable,
		Command:     cmd,
		State:       state,
	}, nil
}

func (m *Model) compact(ctx context.Context) (CompactResult, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "model.Compact")
	defer span.End()

	m.attrs.Clear()
	defer m.clearHistoryState()

	var result CompactResult
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return result, m.fail(ctx, span, opCompact, start, err)
	}
	defer tx.Rollback()

	if result.UndoEntries, err = tx.ClearLedger(ctx, store.UndoLedger); err != nil {
		return result, m.fail(ctx, span, opCompact, start, err)
	}
	if result.RedoEntries, err = tx.ClearLedger(ctx, store.RedoLedger); err != nil {
		return result, m.fail(ctx, span, opCompact, start, err)
	}
	orphans, err := tx.ListUnreferencedBlobs(ctx, 0)
	if err != nil {
		return result, m.fail(ctx, span, opCompact, start, err)
	}
	for _, blob := range orphans {
		m.attrs.Set("blob_id", blob.ID)
		if _, err := tx.DeleteBlob(ctx, blob.ID); err != nil {
			return result, m.fail(ctx, span, opCompact, start, err)
		}
		result.BlobBytes += blob.SizeBytes
	}
	m.attrs.Delete("blob_id")
	live, err := tx.ListBlobKeys(ctx)
	if err != nil {
		return result, m.fail(ctx, span, opCompact, start, err)
	}
	if err := tx.Commit(); err != nil {
		return result, m.fail(ctx, span, opCompact, start, fmt.Errorf("commit: %w", err))
	}
	result.Blobs = len(orphans)

	// Rows are gone; bytes are deleted after commit so a rollback never
	// leaves rows pointing at missing payloads.
	if m.blobs != nil {
		for _, blob := range orphans {
			if err := m.blobs.Delete(ctx, blob.BlobKey); err != nil {
				result.BlobDeleteErrors++
				m.logger.Warn("compact delete blob", "blob_id", blob.ID, "blob_key", blob.BlobKey, "error", err)
			}
		}
		result.StrayBlobs = m.sweepStrayBlobs(ctx, live)
	}
	m.metrics.compactedBlobs.Add(float64(len(orphans)))

	span.SetAttributes(
		attribute.Int64("ledger.undo_removed", result.UndoEntries),
		attribute.Int64("ledger.redo_removed", result.RedoEntries),
		attribute.Int("blobs.removed", result.Blobs),
		attribute.Int("blobs.stray_removed", result.StrayBlobs),
	)
	m.succeed(opCompact, "ok", start)
	m.logger.Info("compacted", "undo_entries", result.UndoEntries, "redo_entries", result.RedoEntries,
		"blobs", result.Blobs, "blob_bytes", result.BlobBytes, "stray_blobs", result.StrayBlobs)
	m.events.Publish(events.Progress(fmt.Sprintf("compacted %d history entries and %d blobs",
		result.UndoEntries+result.RedoEntries, result.Blobs)))
	return result, nil
}

// sweepStrayBlobs deletes stored bytes that no blob row refers to. They are
// left behind when a command stores image bytes and then rolls back.
func (m *Model) sweepStrayBlobs(ctx context.Context, live map[string]struct{}) int {
	keys, err := m.blobs.Keys(ctx)
	if err != nil {
		m.logger.Warn("compact list blobs", "error", err)
		return 0
	}
	removed := 0
	for _, key := range keys {
		if _, ok := live[key]; ok {
			continue
		}
		if err := m.blobs.Delete(ctx, key); err != nil {
			m.logger.Warn("compact delete stray blob", "blob_key", key, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// clearHistoryState drops the undo/redo descriptions from the snapshot.
func (m *Model) clearHistoryState() {
	prev := m.State()
	next := *prev
	next.Version = prev.Version + 1
	next.NextUndo, next.NextRedo = "", ""
	next.UndoDepth, next.RedoDepth = 0, 0
	m.state.Store(&next)
	m.metrics.observeLedgers(&next)
}

func (m *Model) history(ctx context.Context) (History, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "model.History")
	defer span.End()

	var h History
	err := m.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if h.Undo, err = tx.ListLedger(ctx, store.UndoLedger); err != nil {
			return err
		}
		h.Redo, err = tx.ListLedger(ctx, store.RedoLedger)
		return err
	})
	if err != nil {
		return History{}, m.fail(ctx, span, opHistory, start, err)
	}
	m.succeed(opHistory, "ok", start)
	return h, nil
}

// refresh rebuilds views from a read-only transaction and publishes the
// new snapshot.
func (m *Model) refresh(ctx context.Context, views command.ViewSet) (*State, error) {
	var next *State
	err := m.store.View(ctx, func(tx *store.Tx) error {
		var err error
		next, err = buildState(ctx, tx, m.State(), views)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.state.Store(next)
	m.metrics.observeLedgers(next)
	return next, nil
}

// refreshAfterCommit refreshes views once the change is durable. A failed
// read keeps the previous snapshot and is reported as a failure event.
func (m *Model) refreshAfterCommit(ctx context.Context, views command.ViewSet) *State {
	state, err := m.refresh(ctx, views)
	if err == nil {
		return state
	}
	modelErr := classify(opRefresh, err, nil)
	m.logger.Error("refresh views", "views", views, "error", err)
	m.events.Publish(events.Failure(modelErr.Message, string(modelErr.Code), nil, modelErr.Remediation, err))
	return m.State()
}

// fail rolls the span and metrics into a structured error and publishes
// one failure event per failed item, or one for the whole operation.
func (m *Model) fail(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	modelErr := classify(op, err, m.attrs.Snapshot())

	span.RecordError(err)
	span.SetStatus(codes.Error, string(modelErr.Code))
	span.SetAttributes(attribute.String("error.code", string(modelErr.Code)))
	m.metrics.operations.WithLabelValues(op, "error").Inc()
	m.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	var batchErr *command.BatchError
	if errors.As(err, &batchErr) {
		m.metrics.itemFailures.Add(float64(len(batchErr.Failures)))
		for _, failure := range batchErr.Failures {
			m.events.Publish(events.Failure(
				fmt.Sprintf("%s: %s: %v", batchErr.Op, failure.Item, failure.Err),
				string(codeFor(failure.Err)),
				failure.Attributes,
				remediations[codeFor(failure.Err)],
				failure.Err,
			))
		}
	} else {
		m.events.Publish(events.Failure(modelErr.Error(), string(modelErr.Code), modelErr.Attributes, modelErr.Remediation, err))
	}

	m.logger.LogAttrs(ctx, slog.LevelWarn, "operation failed",
		slog.String("op", op),
		slog.String("code", string(modelErr.Code)),
		slog.Any("attributes", modelErr.Attributes),
		slog.String("error", err.Error()),
	)
	return modelErr
}

func (m *Model) succeed(op, outcome string, start time.Time) {
	m.metrics.operations.WithLabelValues(op, outcome).Inc()
	m.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func spanSuffix(op string) string {
	switch op {
	case opUndo:
		return "Undo"
	case opRedo:
		return "Redo"
	default:
		return op
	}
}
