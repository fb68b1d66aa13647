// Package persistence keeps world snapshots in SQLite. A snapshot is an
// exported world file plus the clock and generation it was taken at.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot describes a stored world file.
type Snapshot struct {
	ID         string
	Label      string
	SimTime    time.Time
	Generation uint64
	CreatedAt  time.Time
	Size       int64
}

type snapshotRow struct {
	ID         string `db:"id"`
	Label      string `db:"label"`
	SimTime    string `db:"sim_time"`
	Generation int64  `db:"generation"`
	CreatedAt  string `db:"created_at"`
	Size       int64  `db:"size"`
}

func (r snapshotRow) snapshot() (Snapshot, error) {
	sim, err := time.Parse(time.RFC3339Nano, r.SimTime)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: sim_time: %w", r.ID, err)
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: created_at: %w", r.ID, err)
	}
	return Snapshot{
		ID:         r.ID,
		Label:      r.Label,
		SimTime:    sim,
		Generation: uint64(r.Generation),
		CreatedAt:  created,
		Size:       r.Size,
	}, nil
}

// DB wraps a SQLite connection holding snapshots.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates the snapshot database at path, creating its
// directory if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL,
		sim_time TEXT NOT NULL,
		generation INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		size INTEGER NOT NULL,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_label ON snapshots(label, seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Save stores a world file and returns its descriptor.
func (db *DB) Save(ctx context.Context, label string, simTime time.Time, generation uint64, data string) (Snapshot, error) {
	snap := Snapshot{
		ID:         uuid.NewString(),
		Label:      label,
		SimTime:    simTime.UTC(),
		Generation: generation,
		CreatedAt:  db.now().UTC(),
		Size:       int64(len(data)),
	}
	_, err := db.conn.ExecContext(ctx, `INSERT INTO snapshots
		(id, label, sim_time, generation, created_at, size, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Label,
		snap.SimTime.Format(time.RFC3339Nano),
		int64(snap.Generation),
		snap.CreatedAt.Format(time.RFC3339Nano),
		snap.Size, []byte(data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

const snapshotColumns = `id, label, sim_time, generation, created_at, size`

// List returns snapshots newest first. An empty label lists every label.
func (db *DB) List(ctx context.Context, label string) ([]Snapshot, error) {
	var rows []snapshotRow
	var err error
	if label == "" {
		err = db.conn.SelectContext(ctx, &rows,
			`SELECT `+snapshotColumns+` FROM snapshots ORDER BY seq DESC`)
	} else {
		err = db.conn.SelectContext(ctx, &rows,
			`SELECT `+snapshotColumns+` FROM snapshots WHERE label = ? ORDER BY seq DESC`, label)
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		s, err := r.snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Load returns the world file of snapshot id.
func (db *DB) Load(ctx context.Context, id string) (string, error) {
	var data []byte
	err := db.conn.GetContext(ctx, &data, `SELECT data FROM snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("load snapshot: %w", err)
	}
	return string(data), nil
}

// Latest returns the newest snapshot with label (any label if empty) and
// its world file.
func (db *DB) Latest(ctx context.Context, label string) (Snapshot, string, error) {
	var row snapshotRow
	var err error
	if label == "" {
		err = db.conn.GetContext(ctx, &row,
			`SELECT `+snapshotColumns+` FROM snapshots ORDER BY seq DESC LIMIT 1`)
	} else {
		err = db.conn.GetContext(ctx, &row,
			`SELECT `+snapshotColumns+` FROM snapshots WHERE label = ? ORDER BY seq DESC LIMIT 1`, label)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, "", ErrNotFound
	}
	if err != nil {
		return Snapshot{}, "", fmt.Errorf("latest snapshot: %w", err)
	}
	snap, err := row.snapshot()
	if err != nil {
		return Snapshot{}, "", err
	}
	data, err := db.Load(ctx, snap.ID)
	if err != nil {
		return Snapshot{}, "", err
	}
	return snap, data, nil
}

// Prune keeps the newest keep snapshots of label and deletes the rest.
func (db *DB) Prune(ctx context.Context, label string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := db.conn.ExecContext(ctx, `DELETE FROM snapshots
		WHERE label = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE label = ? ORDER BY seq DESC LIMIT ?
		)`, label, label, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
