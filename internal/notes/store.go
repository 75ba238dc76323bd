package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/notelytic/internal/db"
	"github.com/kuitang/notelytic/internal/obs"
)

// Store maps note ids to records. Operations are synchronous and take effect
// immediately.
type Store interface {
	// GetAll returns every note. When the backing medium is unavailable or
	// corrupt it returns an empty mapping instead of failing.
	GetAll(ctx context.Context) map[string]Record
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Record, error)
	// Put creates or replaces the record stored under id.
	Put(ctx context.Context, id string, rec Record) error
	// Delete removes id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// Health reports whether the last storage access succeeded.
	Health() Health
}

// SQLStore is a Store backed by the encrypted SQLite database.
type SQLStore struct {
	db  *db.DB
	now func() time.Time

	mu     sync.Mutex
	health Health
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a store over d.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d, now: time.Now}
}

// GetAll implements Store.
func (s *SQLStore) GetAll(ctx context.Context) map[string]Record {
	notes, err := s.List(ctx)
	if err != nil {
		obs.From(ctx).Warn("notes_storage_unavailable", "op", "get_all", "error", err)
		return map[string]Record{}
	}
	out := make(map[string]Record, len(notes))
	for _, n := range notes {
		out[n.ID] = n.Record()
	}
	return out
}

// List returns all notes with timestamps, pinned first then by id.
func (s *SQLStore) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT id, title, content, is_pinned, created_at, updated_at FROM notes ORDER BY is_pinned DESC, id`)
	if err != nil {
		s.markFailure(err)
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			s.markFailure(err)
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		s.markFailure(err)
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	s.markSuccess()
	return out, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	n, err := s.GetNote(ctx, id)
	if err != nil {
		return Record{}, err
	}
	return n.Record(), nil
}

// GetNote returns the note with timestamps and revision hash.
func (s *SQLStore) GetNote(ctx context.Context, id string) (Note, error) {
	if id == "" {
		return Note{}, ErrInvalidID
	}
	row := s.db.SQL().QueryRowContext(ctx,
		`SELECT id, title, content, is_pinned, created_at, updated_at FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.markSuccess()
		return Note{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		s.markFailure(err)
		return Note{}, fmt.Errorf("read note %s: %w", id, err)
	}
	s.markSuccess()
	return n, nil
}

// Put implements Store. created_at is kept on replace.
func (s *SQLStore) Put(ctx context.Context, id string, rec Record) error {
	if id == "" {
		return ErrInvalidID
	}
	now := s.now().UTC().Unix()
	_, err := s.db.SQL().ExecContext(ctx, `
INSERT INTO notes (id, title, content, is_pinned, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    content = excluded.content,
    is_pinned = excluded.is_pinned,
    updated_at = excluded.updated_at`,
		id, rec.Title, rec.Content, boolToInt(rec.IsPinned), now, now)
	if err != nil {
		s.markFailure(err)
		return fmt.Errorf("write note %s: %w", id, err)
	}
	s.markSuccess()
	return nil
}

// SetField overwrites the title or content column of an existing note and
// returns the stored record. Unlike Put it never creates a note: a missing id
// returns ErrNotFound.
func (s *SQLStore) SetField(ctx context.Context, id, field, value string) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidID
	}
	var q string
	switch field {
	case "title":
		q = `UPDATE notes SET title = ?, updated_at = ? WHERE id = ?`
	case "content":
		q = `UPDATE notes SET content = ?, updated_at = ? WHERE id = ?`
	default:
		return Record{}, fmt.Errorf("unknown note field %q", field)
	}
	res, err := s.db.SQL().ExecContext(ctx, q, value, s.now().UTC().Unix(), id)
	if err != nil {
		s.markFailure(err)
		return Record{}, fmt.Errorf("write note %s: %w", id, err)
	}
	s.markSuccess()
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

// PutIfRevision replaces an existing note only while its stored title and
// content still hash to prior. The comparison runs inside the UPDATE.
func (s *SQLStore) PutIfRevision(ctx context.Context, id, prior string, rec Record) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.SQL().ExecContext(ctx, `
UPDATE notes SET title = ?, content = ?, is_pinned = ?, updated_at = ?
WHERE id = ? AND note_revision(title, content) = ?`,
		rec.Title, rec.Content, boolToInt(rec.IsPinned), s.now().UTC().Unix(), id, prior)
	if err != nil {
		s.markFailure(err)
		return fmt.Errorf("write note %s: %w", id, err)
	}
	s.markSuccess()
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	if _, err := s.GetNote(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrRevisionConflict, id)
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := s.db.SQL().ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		s.markFailure(err)
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	s.markSuccess()
	return nil
}

// Health implements Store.
func (s *SQLStore) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Check probes the database, runs a quick integrity check and updates Health.
func (s *SQLStore) Check(ctx context.Context) Health {
	err := s.db.Ping(ctx)
	if err == nil {
		err = s.db.IntegrityCheck(ctx)
	}
	if err != nil {
		s.markFailure(err)
	} else {
		s.markSuccess()
	}
	return s.Health()
}

// Checksum digests every note's id, title, content and pin flag. Stores
// holding the same notes agree regardless of timestamps.
func (s *SQLStore) Checksum(ctx context.Context) (string, error) {
	return s.db.NotesChecksum(ctx)
}

// Seeded reports whether the named one-shot seed was applied.
func (s *SQLStore) Seeded(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.SQL().QueryRowContext(ctx, `SELECT count(*) FROM seeds WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read seed %s: %w", name, err)
	}
	return n > 0, nil
}

// MarkSeeded records that the named seed was applied.
func (s *SQLStore) MarkSeeded(ctx context.Context, name string) error {
	_, err := s.db.SQL().ExecContext(ctx,
		`INSERT INTO seeds (name, applied_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, name, s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("mark seed %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) markFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if !s.health.Degraded {
		s.health.Since = now
	}
	s.health.Degraded = true
	s.health.Reason = err.Error()
	s.health.Failures++
	s.health.CheckedAt = now
}

func (s *SQLStore) markSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.Degraded = false
	s.health.Reason = ""
	s.health.Since = time.Time{}
	s.health.CheckedAt = s.now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (Note, error) {
	var (
		n                    Note
		pinned               int64
		createdAt, updatedAt int64
	)
	if err := r.Scan(&n.ID, &n.Title, &n.Content, &pinned, &createdAt, &updatedAt); err != nil {
		return Note{}, err
	}
	n.IsPinned = pinned != 0
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	n.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	n.Revision = RevisionHash(n.Title, n.Content)
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
