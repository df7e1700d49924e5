package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/movewatch/dbopen"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// JournalSchema creates the dispatches table.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL DEFAULT '',
	seq        INTEGER NOT NULL,
	moves      TEXT NOT NULL,
	plies      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at DESC, seq DESC);
`

// journalRetry outlasts a concurrent writer: a failed insert loses the
// record.
var journalRetry = dbopen.Retry{Attempts: 5, Backoff: 50 * time.Millisecond}

// Journal records every update in sqlite so the dispatch history can be
// inspected after the fact.
type Journal struct {
	db *sql.DB
}

// NewJournal applies the schema to db and returns the sink. The caller owns
// db.
func NewJournal(ctx context.Context, db *sql.DB) (*Journal, error) {
	if _, err := db.ExecContext(ctx, JournalSchema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Send(ctx context.Context, u moves.Update) error {
	mv, _ := json.Marshal(u.Moves.Strings())
	_, err := journalRetry.Exec(ctx, j.db, `
		INSERT INTO dispatches (id, page_id, seq, moves, plies, created_at)
		VALUES (?,?,?,?,?,?)`,
		u.ID, u.PageID, u.Seq, string(mv), len(u.Moves), u.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", u.ID, err)
	}
	return nil
}

// Recent returns up to limit updates, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]moves.Update, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, page_id, seq, moves, created_at
		FROM dispatches ORDER BY created_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []moves.Update
	for rows.Next() {
		var u moves.Update
		var mv string
		if err := rows.Scan(&u.ID, &u.PageID, &u.Seq, &mv, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		var ss []string
		json.Unmarshal([]byte(mv), &ss)
		u.Moves = moves.FromStrings(ss...)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the number of recorded updates.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatches`).Scan(&n)
	return n, err
}

// Close is a no-op: the database belongs to the caller.
func (j *Journal) Close() error { return nil }
