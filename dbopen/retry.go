package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrRetriesExhausted wraps the last BUSY error once a Retry gives up.
var ErrRetriesExhausted = errors.New("dbopen: retries exhausted")

// Retry is a BUSY retry policy. Attempt n waits n*Backoff before the next
// one.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry is used by RunTx and Exec.
var DefaultRetry = Retry{Attempts: 3, Backoff: 100 * time.Millisecond}

// IsBusy reports whether err indicates an SQLite BUSY or LOCKED condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func (r Retry) do(ctx context.Context, op func() error) error {
	attempts := max(r.Attempts, 1)
	var err error
	for i := range attempts {
		if err = op(); err == nil || !IsBusy(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(time.Duration(i+1) * r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// on BUSY. fn may run more than once.
func (r Retry) RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return r.do(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes one statement, retrying on BUSY.
func (r Retry) Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := r.do(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunTx is DefaultRetry.RunTx.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return DefaultRetry.RunTx(ctx, db, fn)
}

// Exec is DefaultRetry.Exec.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return DefaultRetry.Exec(ctx, db, query, args...)
}
