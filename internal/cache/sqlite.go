package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
)

// DatabaseFile is the SQLite artifact inside the cache directory.
const DatabaseFile = "embeddings.db"

// SQLiteBackend stores the cache as an identifier-keyed table. The database is
// opened lazily so a cache directory is never created by a read.
type SQLiteBackend struct {
	dir  string
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// NewSQLiteBackend returns a backend writing dir/embeddings.db.
func NewSQLiteBackend(dir string) *SQLiteBackend {
	return &SQLiteBackend{dir: dir, path: filepath.Join(dir, DatabaseFile)}
}

// Name returns "sqlite".
func (b *SQLiteBackend) Name() string { return string(BackendSQLite) }

// Paths returns the database file and its WAL companions.
func (b *SQLiteBackend) Paths() []string {
	return []string{b.path, b.path + "-wal", b.path + "-shm"}
}

func (b *SQLiteBackend) open() (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := sql.Open("sqlite3", b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	b.db = db
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_position ON embeddings(position);
	`
	_, err := db.Exec(schema)
	return err
}

// Load reads every row ordered by position. A missing database returns nil.
func (b *SQLiteBackend) Load(ctx context.Context) (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok, err := exists(b.path)
	if err != nil || !ok {
		return nil, err
	}
	db, err := b.open()
	if err != nil {
		return nil, models.NewCacheCorruptError(b.path, "cannot open database", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT id, dim, vector FROM embeddings ORDER BY position`)
	if err != nil {
		return nil, models.NewCacheCorruptError(b.path, "cannot query embeddings", err)
	}
	defer rows.Close()

	var ids []string
	var data []float32
	dim := -1
	for rows.Next() {
		var id string
		var d int
		var blob []byte
		if err := rows.Scan(&id, &d, &blob); err != nil {
			return nil, models.NewCacheCorruptError(b.path, "cannot scan row", err)
		}
		if dim < 0 {
			dim = d
		}
		if d != dim {
			return nil, models.NewCacheCorruptError(b.path, fmt.Sprintf("row %q has dimension %d, expected %d", id, d, dim), nil)
		}
		vec, err := vector.DecodeVector(blob)
		if err != nil || len(vec) != d {
			return nil, models.NewCacheCorruptError(b.path, fmt.Sprintf("row %q vector length does not match dimension %d", id, d), err)
		}
		ids = append(ids, id)
		data = append(data, vec...)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewCacheCorruptError(b.path, "row iteration", err)
	}
	if dim < 0 {
		return EmptyStore(), nil
	}
	features, err := vector.FromData(len(ids), dim, data)
	if err != nil {
		return nil, models.NewCacheCorruptError(b.path, "shape", err)
	}
	return &Store{IDs: ids, Features: features}, nil
}

// Save replaces the table contents in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, s *Store) error {
	if len(s.IDs) != s.Features.Rows() {
		return fmt.Errorf("refusing to save misaligned store: %d identifiers, %d features", len(s.IDs), s.Features.Rows())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := b.open()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (id, position, dim, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	dim := s.Features.Dim()
	for i, id := range s.IDs {
		if _, err := stmt.ExecContext(ctx, id, i, dim, vector.EncodeVector(s.Features.Row(i))); err != nil {
			return fmt.Errorf("insert %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear closes the database and removes its files.
func (b *SQLiteBackend) Clear() error {
	if err := b.Close(); err != nil {
		return err
	}
	for _, p := range b.Paths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close closes the database if it was opened.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
