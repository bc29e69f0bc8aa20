// Package archive persists fetched timeline snapshots in a local
// SQLite database, one row per account. It is the fetch loop's
// best-effort collaborator: its cursor column also backs the last
// resort of the scheduler's retry resume chain.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"xscraper/pkg/checkpoint"
	"xscraper/pkg/timeline"
)

// Store wraps the snapshot database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the database location inside the data directory.
func DefaultPath() (string, error) {
	dir, err := checkpoint.DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure archive database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
	  account_key TEXT PRIMARY KEY,
	  display_name TEXT NOT NULL DEFAULT '',
	  nice_name TEXT NOT NULL DEFAULT '',
	  avatar_url TEXT NOT NULL DEFAULT '',
	  total_count INTEGER NOT NULL DEFAULT 0,
	  snapshot BLOB,
	  media_type TEXT NOT NULL DEFAULT '',
	  cursor TEXT NOT NULL DEFAULT '',
	  completed INTEGER NOT NULL DEFAULT 0,
	  updated_at INTEGER NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return nil
}

// Save upserts the account's snapshot. The timeline is stored as a
// gzipped JSON blob; the orchestrator never queries inside it.
func (s *Store) Save(ctx context.Context, snap timeline.Snapshot) error {
	blob, err := encodeEntries(snap.Entries)
	if err != nil {
		return err
	}

	completed := 0
	if snap.Completed {
		completed = 1
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO snapshots(account_key, display_name, nice_name, avatar_url,
	  total_count, snapshot, media_type, cursor, completed, updated_at)
	VALUES(?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(account_key) DO UPDATE SET
	  display_name=excluded.display_name,
	  nice_name=excluded.nice_name,
	  avatar_url=excluded.avatar_url,
	  total_count=excluded.total_count,
	  snapshot=excluded.snapshot,
	  media_type=excluded.media_type,
	  cursor=excluded.cursor,
	  completed=excluded.completed,
	  updated_at=excluded.updated_at`,
		snap.AccountKey, snap.DisplayName, snap.NiceName, snap.AvatarURL,
		snap.TotalCount, blob, snap.MediaType, snap.Cursor, completed,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.AccountKey, err)
	}
	return nil
}

// Load returns the stored snapshot for an account, or (nil, nil) when
// none exists.
func (s *Store) Load(ctx context.Context, accountKey string) (*timeline.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT display_name, nice_name, avatar_url, total_count, snapshot,
	  media_type, cursor, completed
	FROM snapshots WHERE account_key = ?`, accountKey)

	snap := timeline.Snapshot{AccountKey: accountKey}
	var blob []byte
	var completed int
	err := row.Scan(&snap.DisplayName, &snap.NiceName, &snap.AvatarURL,
		&snap.TotalCount, &blob, &snap.MediaType, &snap.Cursor, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", accountKey, err)
	}

	snap.Completed = completed != 0
	snap.Entries, err = decodeEntries(blob)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LastCursor returns the cursor of the last saved snapshot, or empty
// when the account has none or its fetch already completed.
func (s *Store) LastCursor(ctx context.Context, accountKey string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cursor, completed FROM snapshots WHERE account_key = ?`, accountKey)

	var cursor string
	var completed int
	err := row.Scan(&cursor, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cursor for %s: %w", accountKey, err)
	}
	if completed != 0 {
		return "", nil
	}
	return cursor, nil
}

// Accounts lists all archived account keys, most recently updated
// first.
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_key FROM snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived accounts: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete removes an account's snapshot.
func (s *Store) Delete(ctx context.Context, accountKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE account_key = ?`, accountKey)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for %s: %w", accountKey, err)
	}
	return nil
}

func encodeEntries(entries []timeline.Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot blob: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntries(blob []byte) ([]timeline.Entry, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot blob: %w", err)
	}
	defer zr.Close()

	var entries []timeline.Entry
	if err := json.NewDecoder(zr).Decode(&entries); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode snapshot blob: %w", err)
	}
	return entries, nil
}
