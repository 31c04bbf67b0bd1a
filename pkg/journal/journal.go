// Package journal keeps a local sqlite record of submitted bundles so their
// outcome can be looked up after the process that sent them has exited.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS bundles (
	bundle_id  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	mint       TEXT NOT NULL,
	status     TEXT NOT NULL,
	slot       INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	signatures TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bundles_created ON bundles(created_at);
CREATE INDEX IF NOT EXISTS idx_bundles_mint ON bundles(mint);
`

// Entry is one journaled bundle.
type Entry struct {
	BundleID   string
	Kind       string
	Mint       string
	Status     string
	Slot       uint64
	Error      string
	Signatures []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Journal is a sqlite-backed bundle log. Safe for concurrent use.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, types.NewValidationError("journal.path", "is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts e, or replaces the mutable fields of an existing entry
// with the same bundle id.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.BundleID == "" {
		return types.NewValidationError("bundle_id", "is required")
	}
	now := j.now().UnixMilli()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO bundles (bundle_id, kind, mint, status, slot, error, signatures, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bundle_id) DO UPDATE SET
			status = excluded.status,
			slot = excluded.slot,
			error = excluded.error,
			signatures = excluded.signatures,
			updated_at = excluded.updated_at`,
		e.BundleID, e.Kind, e.Mint, e.Status, int64(e.Slot), e.Error,
		strings.Join(e.Signatures, ","), now, now)
	if err != nil {
		return fmt.Errorf("record bundle %s: %w", e.BundleID, err)
	}
	return nil
}

// UpdateStatus sets the latest observed state of a journaled bundle.
func (j *Journal) UpdateStatus(ctx context.Context, bundleID, status string, slot uint64, errMsg string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE bundles SET status = ?, slot = ?, error = ?, updated_at = ? WHERE bundle_id = ?`,
		status, int64(slot), errMsg, j.now().UnixMilli(), bundleID)
	if err != nil {
		return fmt.Errorf("update bundle %s: %w", bundleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bundle %s: %w", bundleID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", bundleID, types.ErrBundleRecordNotFound)
	}
	return nil
}

// Get returns the entry for bundleID.
func (j *Journal) Get(ctx context.Context, bundleID string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT bundle_id, kind, mint, status, slot, error, signatures, created_at, updated_at
		FROM bundles WHERE bundle_id = ?`, bundleID)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", bundleID, types.ErrBundleRecordNotFound)
	}
	return e, err
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT bundle_id, kind, mint, status, slot, error, signatures, created_at, updated_at
		FROM bundles ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent bundles: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Entry, error) {
	var (
		e                Entry
		slot             int64
		sigs             string
		created, updated int64
	)
	if err := s.Scan(&e.BundleID, &e.Kind, &e.Mint, &e.Status, &slot, &e.Error, &sigs, &created, &updated); err != nil {
		return Entry{}, err
	}
	e.Slot = uint64(slot)
	if sigs != "" {
		e.Signatures = strings.Split(sigs, ",")
	}
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	return e, nil
}
