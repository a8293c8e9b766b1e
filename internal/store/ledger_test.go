package store

import (
	"context"
	"testing"
	"time"

	"capset/internal/models"
)

func TestLedgerTipOrdering(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	tx := testTx(t, st)

	var ids []int64
	for _, description := range []string{"first", "second", "third"} {
		entry := &models.LedgerEntry{Description: description, Payload: []byte(description)}
		if err := tx.AppendLedger(ctx, UndoLedger, entry); err != nil {
			t.Fatalf("append %s: %v", description, err)
		}
		ids = append(ids, entry.ID)
	}

	tip, err := tx.LedgerTip(ctx, UndoLedger)
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if tip == nil || tip.Description != "third" {
		t.Fatalf("expected newest entry at undo tip, got %+v", tip)
	}

	// Undo third then second: the redo tip is the most recently moved one.
	if err := tx.MoveLedgerEntry(ctx, UndoLedger, RedoLedger, ids[2]); err != nil {
		t.Fatalf("move third: %v", err)
	}
	if err := tx.MoveLedgerEntry(ctx, UndoLedger, RedoLedger, ids[1]); err != nil {
		t.Fatalf("move second: %v", err)
	}
	redoTip, err := tx.LedgerTip(ctx, RedoLedger)
	if err != nil {
		t.Fatalf("redo tip: %v", err)
	}
	if redoTip == nil || redoTip.ID != ids[1] || string(redoTip.Payload) != "second" {
		t.Fatalf("expected second at redo tip, got %+v", redoTip)
	}

	undoTip, err := tx.LedgerTip(ctx, UndoLedger)
	if err != nil || undoTip == nil || undoTip.ID != ids[0] {
		t.Fatalf("expected first at undo tip, got %+v err=%v", undoTip, err)
	}
}

func TestMoveLedgerEntryPreservesFields(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	tx := testTx(t, st)

	entry := &models.LedgerEntry{Description: "Add caption cat", Payload: []byte(`{"@Type":"caption.add"}`)}
	if err := tx.AppendLedger(ctx, UndoLedger, entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	original, err := tx.GetLedgerEntry(ctx, UndoLedger, entry.ID)
	if err != nil || original == nil {
		t.Fatalf("get: %+v err=%v", original, err)
	}

	if err := tx.MoveLedgerEntry(ctx, UndoLedger, RedoLedger, entry.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	moved, err := tx.GetLedgerEntry(ctx, RedoLedger, entry.ID)
	if err != nil || moved == nil {
		t.Fatalf("get moved: %+v err=%v", moved, err)
	}
	if moved.Description != original.Description || string(moved.Payload) != string(original.Payload) || !moved.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("moved entry changed: original=%+v moved=%+v", original, moved)
	}

	count, err := tx.CountLedger(ctx, UndoLedger)
	if err != nil || count != 0 {
		t.Fatalf("expected empty undo ledger, got %d err=%v", count, err)
	}

	if err := tx.MoveLedgerEntry(ctx, UndoLedger, RedoLedger, entry.ID); err != ErrLedgerEntryNotFound {
		t.Fatalf("expected ErrLedgerEntryNotFound, got %v", err)
	}
}

func TestLedgerClockIsMonotonic(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	tx := testTx(t, st)

	future := time.Now().Add(time.Hour)
	if err := tx.AppendLedger(ctx, UndoLedger, &models.LedgerEntry{Description: "skewed", CreatedAt: future, Payload: []byte("x")}); err != nil {
		t.Fatalf("append skewed: %v", err)
	}
	next := &models.LedgerEntry{Description: "after", Payload: []byte("y")}
	if err := tx.AppendLedger(ctx, UndoLedger, next); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !next.CreatedAt.After(future) {
		t.Fatalf("expected created_at after %v, got %v", future, next.CreatedAt)
	}

	tip, err := tx.LedgerTip(ctx, UndoLedger)
	if err != nil || tip == nil || tip.Description != "after" {
		t.Fatalf("expected latest append at tip, got %+v err=%v", tip, err)
	}
}

func TestRedoEntriesRequireID(t *testing.T) {
	st := testStore(t)
	tx := testTx(t, st)

	if err := tx.AppendLedger(context.Background(), RedoLedger, &models.LedgerEntry{Description: "x", Payload: []byte("x")}); err == nil {
		t.Fatal("expected error for redo entry without id")
	}
	if err := tx.AppendLedger(context.Background(), Ledger("bogus"), &models.LedgerEntry{}); err == nil {
		t.Fatal("expected error for unknown ledger")
	}
}
