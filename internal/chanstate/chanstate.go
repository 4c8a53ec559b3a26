// Package chanstate is an opt-in, process-level persistence layer for
// channel.Channel's pid_map and map-rule bindings, backed by
// modernc.org/sqlite (a pure-Go sqlite3 driver, no cgo).
//
// This is deliberately NOT part of channel.Channel's own contract — the
// spec's core semantics treat a channel as starting clean on every process
// restart, the same way stream_reload clears things in-process. chanstate
// exists for the ts-channel CLI's -statedb flag: an operator who restarts
// the process between TV-guide windows doesn't want every map rule
// renegotiated against the next PMT from scratch when the last binding is
// still almost certainly correct.
//
// Grounded on the teacher's internal/dvbdb JSON-file persistence shape
// (load-on-start, save-on-change, missing file is not an error) adapted to
// a small sqlite schema instead of a flat JSON blob, since bindings are
// naturally keyed rows rather than one document.
package chanstate

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Binding is one persisted PID mapping for a channel.
type Binding struct {
	Channel  string
	PID      uint16
	Selector string
	CustomPID uint16
}

// Store is a handle to the sqlite-backed binding store. The zero value is
// not usable; construct with Open.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pid_bindings (
	channel    TEXT NOT NULL,
	pid        INTEGER NOT NULL,
	selector   TEXT NOT NULL,
	custom_pid INTEGER NOT NULL,
	PRIMARY KEY (channel, pid)
);
`

// Open creates or opens the sqlite database at path and ensures the schema
// exists. path may be ":memory:" for a throwaway store in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chanstate: open %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chanstate: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the current pid_map bindings for a channel, replacing any
// bindings previously saved for that channel name.
func (s *Store) Save(ctx context.Context, channel string, bindings []Binding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chanstate: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pid_bindings WHERE channel = ?`, channel); err != nil {
		return fmt.Errorf("chanstate: clear %q: %w", channel, err)
	}
	for _, b := range bindings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pid_bindings (channel, pid, selector, custom_pid) VALUES (?, ?, ?, ?)`,
			channel, b.PID, b.Selector, b.CustomPID,
		); err != nil {
			return fmt.Errorf("chanstate: insert %q pid=%d: %w", channel, b.PID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chanstate: commit: %w", err)
	}
	return nil
}

// Load returns the bindings previously saved for channel, or an empty slice
// if none were ever saved (not an error — the channel simply starts clean).
func (s *Store) Load(ctx context.Context, channel string) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, selector, custom_pid FROM pid_bindings WHERE channel = ? ORDER BY pid`, channel)
	if err != nil {
		return nil, fmt.Errorf("chanstate: query %q: %w", channel, err)
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		b.Channel = channel
		if err := rows.Scan(&b.PID, &b.Selector, &b.CustomPID); err != nil {
			return nil, fmt.Errorf("chanstate: scan %q: %w", channel, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
