package command

import (
	"fmt"
	"maps"
	"strings"
)

// ItemFailure is one failed item of a multi-item command.
type ItemFailure struct {
	Item       string
	Attributes map[string]string
	Err        error
}

// BatchError reports every failed item of a multi-item command. The
// command's transaction is rolled back when it is returned.
type BatchError struct {
	Op       string
	Total    int
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Failures[0].Item, e.Failures[0].Err)
	}
	return fmt.Sprintf("%s: %d of %d items failed", e.Op, len(e.Failures), e.Total)
}

// Unwrap exposes the per-item causes to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// batch drives one pass over independent items: skips are reported as
// progress, failures are recorded and processing continues.
type batch struct {
	env      *Env
	op       string
	count    int
	failures []ItemFailure
	// base is the error context from before the first item; each item
	// starts from it so keys never leak into the next item.
	base map[string]string
}

func newBatch(env *Env, op string, count int) *batch {
	b := &batch{env: env, op: op, count: count}
	if env != nil && env.Attrs != nil {
		b.base = env.Attrs.Snapshot()
	}
	return b
}

// item marks the start of item index and records it as error context.
func (b *batch) item(index int, key, value string) {
	if b.env != nil && b.env.Attrs != nil {
		b.env.Attrs.Restore(b.base)
	}
	b.env.set(key, value)
	b.env.set("item", fmt.Sprintf("%d/%d", index+1, b.count))
}

func (b *batch) done(index int, format string, args ...any) {
	b.env.progressAt(fmt.Sprintf(format, args...), index, b.count)
}

func (b *batch) skip(index int, format string, args ...any) {
	b.env.progressAt("skipped: "+fmt.Sprintf(format, args...), index, b.count)
}

func (b *batch) fail(item string, err error) {
	attrs := map[string]string{}
	if b.env != nil && b.env.Attrs != nil {
		attrs = b.env.Attrs.Snapshot()
	}
	b.failures = append(b.failures, ItemFailure{Item: item, Attributes: maps.Clone(attrs), Err: err})
}

func (b *batch) merge(err error) bool {
	be, ok := err.(*BatchError)
	if !ok {
		return false
	}
	b.failures = append(b.failures, be.Failures...)
	return true
}

func (b *batch) err() error {
	if len(b.failures) == 0 {
		return nil
	}
	return &BatchError{Op: b.op, Total: b.count, Failures: b.failures}
}

func undoableIf(changed bool) Undoable {
	if changed {
		return IsUndoable
	}
	return NotUndoable
}

// normalizeIDs trims and dedupes ids, keeping first-seen order.
func normalizeIDs(kind string, raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: empty %s id", ErrInvalidArgument, kind)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func requireIDs(kind string, raw []string) ([]string, error) {
	ids, err := normalizeIDs(kind, raw)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one %s id is required", ErrInvalidArgument, kind)
	}
	return ids, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return fmt.Sprintf("%d %s", n, many)
}
