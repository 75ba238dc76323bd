// Package testdb opens throwaway encrypted databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/kuitang/notelytic/internal/db"
)

var (
	seq        atomic.Int64
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// testKey is a fixed SQLCipher key for in-memory databases.
var testKey = strings.Repeat("ab", db.KeySize)

// NewInMemory returns an encrypted in-memory database with the schema applied.
// Each call gets a distinct shared-cache name so parallel tests stay isolated.
func NewInMemory(name string) (*db.DB, error) {
	if name == "" {
		name = "notes"
	}
	name = fmt.Sprintf("%s-%d", unsafeName.ReplaceAllString(name, "_"), seq.Add(1))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, testKey)

	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// Shared-cache memory databases vanish when the last connection closes.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(0)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	d := db.NewFromSQL(sqlDB, "")
	if err := d.Init(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Key returns the raw key used by NewInMemory, for tests that open files.
func Key() []byte {
	k, _ := hex.DecodeString(testKey)
	return k
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
