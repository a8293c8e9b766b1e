// Package command defines the undoable command envelope, the registry that
// rebuilds commands from ledger payloads, and every dataset mutation.
package command

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"capset/internal/blobstore"
	"capset/internal/events"
	"capset/internal/store"
)

var (
	// ErrInvalidArgument marks parameter validation failures. They are
	// returned by constructors before any transaction opens.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a referenced row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a change that would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrExport marks a failure writing an export.
	ErrExport = errors.New("export failed")
)

// Undoable reports whether an execution changed durable state.
type Undoable int

const (
	NotUndoable Undoable = iota
	IsUndoable
)

func (u Undoable) String() string {
	if u == IsUndoable {
		return "undoable"
	}
	return "not undoable"
}

// ViewSet names the observable views a command touches.
type ViewSet uint16

const (
	ViewImages ViewSet = 1 << iota
	ViewCaptions
	ViewCategories
	ViewTags
	ViewMetadata
	ViewSelection
	ViewValidation

	ViewNone ViewSet = 0
	ViewAll          = ViewImages | ViewCaptions | ViewCategories | ViewTags | ViewMetadata | ViewSelection | ViewValidation
)

// Has reports whether every view in other is in v.
func (v ViewSet) Has(other ViewSet) bool {
	return v&other == other
}

// Env is what an action sees while it runs. It is valid for one operation.
type Env struct {
	Tx       *store.Tx
	Blobs    blobstore.BlobStore
	Attrs    *Attributes
	Progress func(events.Event)
}

func (e *Env) progress(message string) {
	if e == nil || e.Progress == nil {
		return
	}
	e.Progress(events.Progress(message))
}

func (e *Env) progressAt(message string, index, count int) {
	if e == nil || e.Progress == nil {
		return
	}
	e.Progress(events.ProgressAt(message, index, count))
}

func (e *Env) set(key, value string) {
	if e == nil || e.Attrs == nil {
		return
	}
	e.Attrs.Set(key, value)
}

// Attributes accumulates error context for one operation. It is not safe
// for concurrent use; the owning operation passes it down explicitly.
type Attributes struct {
	values map[string]string
}

// NewAttributes returns an empty accumulator.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Set records key=value, replacing any previous value.
func (a *Attributes) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	a.values[key] = value
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	delete(a.values, key)
}

// Clear drops every attribute.
func (a *Attributes) Clear() {
	clear(a.values)
}

// Restore replaces every attribute with values.
func (a *Attributes) Restore(values map[string]string) {
	clear(a.values)
	for key, value := range values {
		a.Set(key, value)
	}
}

// Snapshot returns a copy of the current attributes.
func (a *Attributes) Snapshot() map[string]string {
	if len(a.values) == 0 {
		return map[string]string{}
	}
	return maps.Clone(a.values)
}

// Action is implemented by every command variant. Exported fields are the
// persisted payload: parameters plus the state captured by Execute.
type Action interface {
	Type() string
	Execute(ctx context.Context, env *Env) (Undoable, error)
	Undo(ctx context.Context, env *Env) error
	Redo(ctx context.Context, env *Env) error
	Describe() string
	Views() ViewSet
}

type lifecycle int

const (
	pending lifecycle = iota
	executed
	executedNoop
)

// Command wraps an Action with the executed-flag bookkeeping. Misuse is a
// programming error and panics.
type Command struct {
	action Action
	state  lifecycle
}

// New wraps a not yet executed action.
func New(action Action) *Command {
	if action == nil {
		panic("command: nil action")
	}
	return &Command{action: action}
}

// restored wraps an action decoded from a ledger; it has already run and
// reported IsUndoable.
func restored(action Action) *Command {
	return &Command{action: action, state: executed}
}

// Action returns the wrapped action.
func (c *Command) Action() Action { return c.action }

// Type returns the registry identifier of the action.
func (c *Command) Type() string { return c.action.Type() }

// Describe returns the label stored in the ledger and shown in the UI.
func (c *Command) Describe() string { return c.action.Describe() }

// Views returns the observable views the command touches.
func (c *Command) Views() ViewSet { return c.action.Views() }

// Executed reports whether Execute has run.
func (c *Command) Executed() bool { return c.state != pending }

// Execute runs the action once. A second call panics.
func (c *Command) Execute(ctx context.Context, env *Env) (Undoable, error) {
	if c.state != pending {
		panic(fmt.Sprintf("command %s: execute called twice", c.Type()))
	}
	c.state = executedNoop
	result, err := c.action.Execute(ctx, env)
	if err != nil {
		return NotUndoable, err
	}
	if result == IsUndoable {
		c.state = executed
	}
	return result, nil
}

// Undo reverses the captured effect.
func (c *Command) Undo(ctx context.Context, env *Env) error {
	c.mustBeUndoable("undo")
	return c.action.Undo(ctx, env)
}

// Redo re-applies the captured effect.
func (c *Command) Redo(ctx context.Context, env *Env) error {
	c.mustBeUndoable("redo")
	return c.action.Redo(ctx, env)
}

func (c *Command) mustBeUndoable(op string) {
	switch c.state {
	case pending:
		panic(fmt.Sprintf("command %s: %s before execute", c.Type(), op))
	case executedNoop:
		panic(fmt.Sprintf("command %s: %s of a command that was not undoable", c.Type(), op))
	}
}
