package notes

import "github.com/kuitang/notelytic/internal/db"

// RevisionHash identifies the title and content of a note. It is served as the
// note ETag and used to detect identical records on import. SQL queries compute
// the same value with note_revision(title, content).
func RevisionHash(title, content string) string {
	return db.RevisionHash(title, content)
}
