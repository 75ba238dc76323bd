package notes

import (
	"errors"
	"time"
)

// IntroNoteID is the id of the seeded welcome note.
const IntroNoteID = "1"

var (
	// ErrNotFound is returned when no note has the requested id.
	ErrNotFound = errors.New("note not found")

	// ErrInvalidID is returned for empty note ids.
	ErrInvalidID = errors.New("note id is required")

	// ErrEmptyNote is returned when a new note is saved without a title or content.
	ErrEmptyNote = errors.New("title and content are required")

	// ErrPriorHashRequired is returned when a conditional update omits the
	// revision it was based on.
	ErrPriorHashRequired = errors.New("prior revision hash is required")

	// ErrRevisionConflict is returned when a note changed since the revision a
	// conditional update was based on.
	ErrRevisionConflict = errors.New("note revision conflict")

	// ErrCorruptPayload is returned when a legacy notes dump cannot be parsed.
	ErrCorruptPayload = errors.New("notes payload is corrupt")
)

// Record is the stored form of a note. Content is serialized rich text (HTML).
type Record struct {
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
	IsPinned bool   `json:"isPinned,omitempty" yaml:"isPinned,omitempty"`
}

// Note is a record with its id and storage timestamps.
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	IsPinned  bool      `json:"isPinned" yaml:"isPinned"`
	Revision  string    `json:"revision" yaml:"-"`
	CreatedAt time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
}

// Record returns the storable part of n.
func (n Note) Record() Record {
	return Record{Title: n.Title, Content: n.Content, IsPinned: n.IsPinned}
}

// ListItem is a note in the list view, with a plain-text preview.
type ListItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Preview  string `json:"preview"`
	IsPinned bool   `json:"isPinned"`
}

// Stats are the counters shown under the editor.
type Stats struct {
	Characters int `json:"characters"`
	Words      int `json:"words"`
	MaxChars   int `json:"maxChars"`
}

// Share is a ready-to-send message and the chat share link that carries it.
type Share struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// Health describes whether the backing store is usable.
type Health struct {
	Degraded  bool      `json:"degraded"`
	Reason    string    `json:"reason,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	Failures  int64     `json:"failures"`
	CheckedAt time.Time `json:"checkedAt,omitzero"`
}

// ImportResult reports what a legacy import did.
type ImportResult struct {
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	Corrupt   bool   `json:"corrupt"`
	BackupKey string `json:"backupKey,omitempty"`
}
