package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/movewatch/dbopen"
	"github.com/hazyhaar/movewatch/horosafe"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
)

// Schema for the selector_sets table.
const Schema = `
CREATE TABLE IF NOT EXISTS selector_sets (
	version      TEXT PRIMARY KEY,
	move_list    TEXT NOT NULL,
	move_rows    TEXT NOT NULL,
	white_move   TEXT NOT NULL,
	black_move   TEXT NOT NULL,
	board_anchor TEXT NOT NULL DEFAULT '',
	host_anchor  TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL
);
`

// ErrNoSelectorSet is returned when no matching selector set exists.
var ErrNoSelectorSet = errors.New("config: no selector set")

// SelectorSet is one version of the host page's markup table.
type SelectorSet struct {
	Version   string            `yaml:"version" json:"version"`
	Selectors extract.Selectors `yaml:"selectors" json:"selectors"`
	Anchors   AnchorConfig      `yaml:"anchors" json:"anchors"`
	Active    bool              `yaml:"active" json:"active"`
	UpdatedAt int64             `yaml:"-" json:"updated_at"`
}

// LoadSelectorSet reads one version, or the active set when version is "".
func LoadSelectorSet(ctx context.Context, db *sql.DB, version string) (*SelectorSet, error) {
	q := `SELECT version, move_list, move_rows, white_move, black_move,
	             board_anchor, host_anchor, active, updated_at
	      FROM selector_sets `
	var args []any
	if version == "" {
		q += `WHERE active = 1 ORDER BY updated_at DESC LIMIT 1`
	} else {
		q += `WHERE version = ?`
		args = append(args, version)
	}

	var s SelectorSet
	var active int
	err := db.QueryRowContext(ctx, q, args...).Scan(
		&s.Version, &s.Selectors.MoveList, &s.Selectors.MoveRows,
		&s.Selectors.WhiteMove, &s.Selectors.BlackMove,
		&s.Anchors.Board, &s.Anchors.Host, &active, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if version == "" {
			return nil, fmt.Errorf("%w: none active", ErrNoSelectorSet)
		}
		return nil, fmt.Errorf("%w: %q", ErrNoSelectorSet, version)
	}
	if err != nil {
		return nil, fmt.Errorf("config: load selector set: %w", err)
	}
	s.Active = active != 0
	return &s, nil
}

// SaveSelectorSet validates and upserts s. Saving an active set
// deactivates every other version.
func SaveSelectorSet(ctx context.Context, db *sql.DB, s *SelectorSet) error {
	if err := horosafe.ValidateIdentifier(s.Version); err != nil {
		return fmt.Errorf("config: selector set version: %w", err)
	}
	if _, err := extract.New(s.Selectors); err != nil {
		return fmt.Errorf("config: selector set %s: %w", s.Version, err)
	}
	s.UpdatedAt = time.Now().UnixMilli()

	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if s.Active {
			if _, err := tx.ExecContext(ctx, `UPDATE selector_sets SET active = 0 WHERE version != ?`, s.Version); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO selector_sets
				(version, move_list, move_rows, white_move, black_move,
				 board_anchor, host_anchor, active, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(version) DO UPDATE SET
				move_list = excluded.move_list,
				move_rows = excluded.move_rows,
				white_move = excluded.white_move,
				black_move = excluded.black_move,
				board_anchor = excluded.board_anchor,
				host_anchor = excluded.host_anchor,
				active = excluded.active,
				updated_at = excluded.updated_at`,
			s.Version, s.Selectors.MoveList, s.Selectors.MoveRows,
			s.Selectors.WhiteMove, s.Selectors.BlackMove,
			s.Anchors.Board, s.Anchors.Host, boolInt(s.Active), s.UpdatedAt,
		)
		return err
	})
}

// Apply overrides the file configuration with s. Empty anchors keep the
// configured ones.
func (c *Config) Apply(s *SelectorSet) {
	c.Selectors = s.Selectors
	if s.Anchors.Board != "" {
		c.Anchors.Board = s.Anchors.Board
	}
	if s.Anchors.Host != "" {
		c.Anchors.Host = s.Anchors.Host
	}
}

// OpenSelectorDB opens the selector database and applies the schema.
func OpenSelectorDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
