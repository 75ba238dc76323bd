// Package db opens the encrypted SQLite (SQLCipher) database that holds notes
// and preferences.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxOpenConns caps connections to the single database file.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 4

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns = 2

	// KeySize is the SQLCipher raw key size in bytes.
	KeySize = 32
)

// DB wraps the notes database connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewFromSQL wraps an existing sql.DB whose schema is already applied.
func NewFromSQL(sqlDB *sql.DB, path string) *DB {
	return &DB{db: sqlDB, path: path}
}

// Open opens (creating if needed) the encrypted database at path using key.
// A wrong key surfaces here as an error rather than on first query.
func Open(path string, key []byte) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("database key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	dsn = AppendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	// SQLCipher only checks the key when a page is read.
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT count(*) FROM sqlite_master").Scan(new(int)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to read database %s (wrong key or corrupt file): %w", path, err)
	}
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify database %s: %w", path, err)
	}

	d := NewFromSQL(sqlDB, path)
	if err := d.Init(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Init applies the schema and migrations.
func (d *DB) Init(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d.Migrate(ctx)
}

// Migrate applies idempotent schema migrations to an existing database.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Migrations, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SQL returns the underlying connection pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path ("" for in-memory databases).
func (d *DB) Path() string {
	return d.path
}

// Ping checks the database is reachable and readable.
func (d *DB) Ping(ctx context.Context) error {
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM notes").Scan(&n); err != nil {
		return fmt.Errorf("notes table unreadable: %w", err)
	}
	return nil
}

// IntegrityCheck runs PRAGMA quick_check and returns an error unless it reports ok.
func (d *DB) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := d.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check reported: %s", result)
	}
	return nil
}

// NotesChecksum returns a SHA3-256 digest over all notes ordered by id, computed
// inside SQLite. Two databases with the same notes produce the same checksum.
func (d *DB) NotesChecksum(ctx context.Context) (string, error) {
	const q = `
SELECT lower(hex(sha3(coalesce(group_concat(row, char(30)), ''), 256)))
FROM (
    SELECT id || char(31) || title || char(31) || content || char(31) || is_pinned AS row
    FROM notes ORDER BY id
)`
	var sum string
	if err := d.db.QueryRowContext(ctx, q).Scan(&sum); err != nil {
		return "", fmt.Errorf("notes checksum: %w", err)
	}
	return sum, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

// AppendSQLiteParams appends query parameters to a DSN.
func AppendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
