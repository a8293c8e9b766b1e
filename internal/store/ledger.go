package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"capset/internal/models"
)

// Ledger names one of the two persisted command ledgers.
type Ledger string

const (
	UndoLedger Ledger = "undo_ledger"
	RedoLedger Ledger = "redo_ledger"
)

// ErrLedgerEntryNotFound is returned when a ledger entry id is absent.
var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

func (l Ledger) table() (string, error) {
	switch l {
	case UndoLedger, RedoLedger:
		return string(l), nil
	default:
		return "", fmt.Errorf("unknown ledger %q", string(l))
	}
}

// popOrder is the ORDER BY clause that puts the ledger tip first. The undo
// tip is the newest entry; the redo tip is the oldest one, which is the most
// recently moved because moves keep created_at.
func (l Ledger) popOrder() string {
	if l == UndoLedger {
		return "ORDER BY created_at DESC, id DESC"
	}
	return "ORDER BY created_at ASC, id ASC"
}

// AppendLedger inserts entry. A zero ID is assigned by the store; a zero
// CreatedAt is taken from a clock that is strictly after every entry in
// either ledger.
func (t *Tx) AppendLedger(ctx context.Context, ledger Ledger, entry *models.LedgerEntry) error {
	table, err := ledger.table()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("ledger entry is required")
	}
	if entry.CreatedAt.IsZero() {
		next, err := t.nextLedgerTime(ctx)
		if err != nil {
			return err
		}
		entry.CreatedAt = next
	}

	if entry.ID == 0 {
		if ledger != UndoLedger {
			return fmt.Errorf("%s entries must carry an id", table)
		}
		res, err := t.tx.ExecContext(ctx, `INSERT INTO undo_ledger (description, created_at, payload) VALUES (?, ?, ?)`,
			entry.Description, entry.CreatedAt.UnixNano(), entry.Payload)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `INSERT INTO `+table+` (id, description, created_at, payload) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Description, entry.CreatedAt.UnixNano(), entry.Payload)
	return err
}

// LedgerTip returns the entry the next undo or redo pops, or nil when empty.
func (t *Tx) LedgerTip(ctx context.Context, ledger Ledger) (*models.LedgerEntry, error) {
	table, err := ledger.table()
	if err != nil {
		return nil, err
	}
	row := t.tx.QueryRowContext(ctx, `SELECT id, description, created_at, payload FROM `+table+` `+ledger.popOrder()+` LIMIT 1`)
	return scanLedgerEntry(row)
}

// GetLedgerEntry returns one entry by id, or nil when absent.
func (t *Tx) GetLedgerEntry(ctx context.Context, ledger Ledger, id int64) (*models.LedgerEntry, error) {
	table, err := ledger.table()
	if err != nil {
		return nil, err
	}
	row := t.tx.QueryRowContext(ctx, `SELECT id, description, created_at, payload FROM `+table+` WHERE id = ?`, id)
	return scanLedgerEntry(row)
}

// MoveLedgerEntry moves one entry to the other ledger, keeping id,
// description, created_at and payload.
func (t *Tx) MoveLedgerEntry(ctx context.Context, from, to Ledger, id int64) error {
	fromTable, err := from.table()
	if err != nil {
		return err
	}
	if _, err := to.table(); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("cannot move ledger entry within %s", fromTable)
	}

	entry, err := t.GetLedgerEntry(ctx, from, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrLedgerEntryNotFound
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+fromTable+` WHERE id = ?`, id); err != nil {
		return err
	}
	return t.AppendLedger(ctx, to, entry)
}

// ClearLedger deletes every entry of one ledger.
func (t *Tx) ClearLedger(ctx context.Context, ledger Ledger) (int64, error) {
	table, err := ledger.table()
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListLedger lists one ledger in pop order.
func (t *Tx) ListLedger(ctx context.Context, ledger Ledger) ([]models.LedgerEntry, error) {
	table, err := ledger.table()
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT id, description, created_at, payload FROM `+table+` `+ledger.popOrder())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// CountLedger returns the number of entries in one ledger.
func (t *Tx) CountLedger(ctx context.Context, ledger Ledger) (int, error) {
	table, err := ledger.table()
	if err != nil {
		return 0, err
	}
	var count int
	err = t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	return count, err
}

func (t *Tx) nextLedgerTime(ctx context.Context) (time.Time, error) {
	var latest sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM (
			SELECT MAX(created_at) AS created_at FROM undo_ledger
			UNION ALL
			SELECT MAX(created_at) AS created_at FROM redo_ledger
		)`).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC().UnixNano()
	if latest.Valid && now <= latest.Int64 {
		now = latest.Int64 + 1
	}
	return time.Unix(0, now).UTC(), nil
}

func scanLedgerEntry(scanner rowScanner) (*models.LedgerEntry, error) {
	entry := models.LedgerEntry{}
	var createdAt int64
	if err := scanner.Scan(&entry.ID, &entry.Description, &createdAt, &entry.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return &entry, nil
}
