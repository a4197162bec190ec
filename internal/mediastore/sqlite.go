package mediastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Register the sqlite driver
)

// migrations are applied in order; the database's user_version records how
// many have run. Each statement must be idempotent so two processes opening
// the same file at once both succeed.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS imagesStore (
		id         TEXT PRIMARY KEY,
		mime_type  TEXT NOT NULL DEFAULT '',
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audioStore (
		id         TEXT PRIMARY KEY,
		mime_type  TEXT NOT NULL DEFAULT '',
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

// SQLiteBackend stores blobs in a versioned sqlite database with one table per
// partition. The database is opened lazily on first use.
type SQLiteBackend struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend returns a backend for the database file at path. Nothing is
// opened until the first operation.
func NewSQLiteBackend(path string, logger *slog.Logger) *SQLiteBackend {
	return &SQLiteBackend{path: path, logger: logger}
}

// Open opens the database and runs pending migrations. It is safe to call
// concurrently and more than once.
func (b *SQLiteBackend) Open(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return b.db, nil
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := b.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if b.logger != nil {
		b.logger.Info("SQLite media store opened", "path", b.path, "schema_version", SchemaVersion)
	}

	b.db = db
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// BEGIN IMMEDIATE takes the write lock before reading the version, so a
	// concurrent opener waits instead of running the same migration.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		if _, err := conn.ExecContext(ctx, migrations[v]); err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
	}
	if version < len(migrations) {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// withTx acquires a connection, runs fn in one transaction and releases the
// connection. No connection outlives the call.
func (b *SQLiteBackend) withTx(ctx context.Context, readOnly bool, fn func(tx *sql.Tx) error) error {
	db, err := b.Open(ctx)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Put implements Backend.
func (b *SQLiteBackend) Put(ctx context.Context, p Partition, id string, blob Blob) error {
	if err := checkKey(p, id); err != nil {
		return err
	}
	//nolint:gosec // table name is a validated Partition constant
	query := fmt.Sprintf(`INSERT INTO %s (id, mime_type, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data`, p)

	return b.withTx(ctx, false, func(tx *sql.Tx) error {
		data := blob.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, query, id, blob.MIMEType, data, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("store %s/%s: %w", p, id, err)
		}
		return nil
	})
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, p Partition, id string) (*Blob, error) {
	if err := checkKey(p, id); err != nil {
		return nil, err
	}
	//nolint:gosec // table name is a validated Partition constant
	query := fmt.Sprintf(`SELECT mime_type, data FROM %s WHERE id = ?`, p)

	var blob Blob
	err := b.withTx(ctx, true, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, id).Scan(&blob.MIMEType, &blob.Data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s/%s: %w", p, id, err)
	}
	return &blob, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, p Partition, id string) error {
	if err := checkKey(p, id); err != nil {
		return err
	}
	//nolint:gosec // table name is a validated Partition constant
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, p)

	return b.withTx(ctx, false, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("remove %s/%s: %w", p, id, err)
		}
		return nil
	})
}

// Exists implements Backend.
func (b *SQLiteBackend) Exists(ctx context.Context, p Partition, id string) (bool, error) {
	if err := checkKey(p, id); err != nil {
		return false, err
	}
	//nolint:gosec // table name is a validated Partition constant
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)`, p)

	var exists bool
	err := b.withTx(ctx, true, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, id).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", p, id, err)
	}
	return exists, nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context, p Partition) ([]string, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown partition %q", p)
	}
	//nolint:gosec // table name is a validated Partition constant
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, p)

	var ids []string
	err := b.withTx(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	return ids, nil
}

// Close implements Backend.
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
