package db

import (
	"crypto/sha3"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// SQLiteDriverName is SQLCipher with the notelytic SQL functions:
//
//	sha3(x, bits)                digest of a text or blob value
//	note_revision(title, content) hex revision hash of a note
const SQLiteDriverName = "sqlite3_notelytic"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{ConnectHook: registerFuncs})
}

func registerFuncs(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		{"sha3", sqlSHA3},
		{"note_revision", RevisionHash},
	}
	for _, f := range funcs {
		err := conn.RegisterFunc(f.name, f.impl, true)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return fmt.Errorf("register %s(): %w", f.name, err)
		}
	}
	return nil
}

// RevisionHash is the hex SHA3-256 of title, a NUL byte and content.
func RevisionHash(title, content string) string {
	sum := sha3.Sum256([]byte(title + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

func sqlSHA3(v any, bits int64) ([]byte, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, fmt.Errorf("sha3: unsupported input type %T", v)
	}

	switch bits {
	case 224:
		s := sha3.Sum224(data)
		return s[:], nil
	case 256:
		s := sha3.Sum256(data)
		return s[:], nil
	case 384:
		s := sha3.Sum384(data)
		return s[:], nil
	case 512:
		s := sha3.Sum512(data)
		return s[:], nil
	}
	return nil, fmt.Errorf("sha3: unsupported size %d", bits)
}
