package sharedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DatabaseFileName is the database the SQLite backend keeps in the container.
const DatabaseFileName = "shared.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS shared_bools (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	writer TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS shared_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	writer TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const upsertBool = `
INSERT INTO shared_bools (key, value, writer, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, writer = excluded.writer, updated_at = excluded.updated_at`

const upsertMeta = `
INSERT INTO shared_meta (id, writer, updated_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET writer = excluded.writer, updated_at = excluded.updated_at`

// SQLiteStore keeps records in a SQLite database inside the container. WAL
// mode and a busy timeout let the extension and the host app keep the same
// database open.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options

	mu   sync.Mutex
	last map[string]bool // last value seen per key, served when a read fails
}

var (
	_ Store     = (*SQLiteStore)(nil)
	_ Watchable = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (and migrates) the database in dir.
func NewSQLiteStore(dir string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating container %s: %w", dir, err)
	}

	path := filepath.Join(dir, DatabaseFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, opts: buildOptions(opts), last: map[string]bool{}}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize sets pragmas and creates the tables.
func (s *SQLiteStore) initialize() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.opts.writeTimeout().Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*s.opts.lockTimeout)
}

func (s *SQLiteStore) writeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.writeTimeout()+s.opts.lockTimeout)
}

// GetBool returns the stored value for key, or false if there is none.
func (s *SQLiteStore) GetBool(key string) bool {
	v, _ := s.LookupBool(key)
	return v
}

// LookupBool returns the stored value for key and whether it exists.
func (s *SQLiteStore) LookupBool(key string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	var value bool
	err := s.db.QueryRowContext(ctx, `SELECT value FROM shared_bools WHERE key = ?`, key).Scan(&value)
	switch {
	case err == nil:
		s.last[key] = value
		return value, true
	case errors.Is(err, sql.ErrNoRows):
		delete(s.last, key)
		return false, false
	default:
		s.opts.logger.Warn("sharedstore: query failed, serving last value", "key", key, "err", err)
		value, ok := s.last[key]
		return value, ok
	}
}

// SetBool writes one record.
func (s *SQLiteStore) SetBool(key string, value bool) {
	s.SetBools(map[string]bool{key: value})
}

// SetBools writes every value in one transaction.
func (s *SQLiteStore) SetBools(values map[string]bool) {
	s.inTx("set", func(ctx context.Context, tx *sql.Tx, now int64) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, upsertBool, k, v, s.opts.writerID, now); err != nil {
				return err
			}
		}
		return nil
	}, func() {
		for k, v := range values {
			s.last[k] = v
		}
	})
}

// ClearAllSharedData deletes every record.
func (s *SQLiteStore) ClearAllSharedData() {
	s.inTx("clear", func(ctx context.Context, tx *sql.Tx, _ int64) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM shared_bools`)
		return err
	}, func() {
		clear(s.last)
	})
}

// Keys returns the sorted keys with a record.
func (s *SQLiteStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM shared_bools ORDER BY key`)
	if err != nil {
		s.opts.logger.Warn("sharedstore: list failed", "err", err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			s.opts.logger.Warn("sharedstore: scan failed", "err", err)
			return keys
		}
		keys = append(keys, k)
	}
	return keys
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WatchPath returns the database path. WAL commits touch the -wal sibling.
func (s *SQLiteStore) WatchPath() string {
	return s.path
}

// WriterID returns the ID this handle records with its commits.
func (s *SQLiteStore) WriterID() string {
	return s.opts.writerID
}

// LastWriter returns the writer of the latest commit, or "".
func (s *SQLiteStore) LastWriter() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	var writer string
	if err := s.db.QueryRowContext(ctx, `SELECT writer FROM shared_meta WHERE id = 1`).Scan(&writer); err != nil {
		return ""
	}
	return writer
}

// inTx runs fn in a transaction and records this handle as the last writer.
// committed runs under s.mu once the commit succeeds. Failures are logged and
// dropped.
func (s *SQLiteStore) inTx(op string, fn func(ctx context.Context, tx *sql.Tx, now int64) error, committed func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.writeCtx()
	defer cancel()

	err := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := s.opts.now().UnixNano()
		if err := fn(ctx, tx, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertMeta, s.opts.writerID, now); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		s.opts.logger.Warn("sharedstore: write dropped", "op", op, "path", s.path, "err", err)
		return
	}
	committed()
}
