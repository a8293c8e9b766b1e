package store

import (
	"context"
	"database/sql"
	"errors"
)

// Tx is one open transaction against the dataset. Writes are visible to
// later reads on the same Tx and are discarded unless Commit succeeds.
type Tx struct {
	tx     *sql.Tx
	closed bool
}

// Commit commits the transaction. A second Commit returns ErrTxClosed.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	return t.tx.Commit()
}

// Rollback discards the transaction. It is a no-op after Commit or Rollback.
func (t *Tx) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}

// Closed reports whether Commit or Rollback has been called.
func (t *Tx) Closed() bool {
	return t.closed
}

func (t *Tx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tx) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tx) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}
