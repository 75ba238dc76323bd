package notes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kuitang/notelytic/internal/obs"
)

// ShareBaseURL is the chat platform's share endpoint.
const ShareBaseURL = "https://t.me/share/url?url="

// ErrContentTooLong is returned when content of an existing note would exceed
// the edit cap.
var ErrContentTooLong = errors.New("content exceeds the character limit")

// Seeder records one-shot seeds. SQLStore implements it; stores that do not
// re-seed the intro note whenever it is missing.
type Seeder interface {
	Seeded(ctx context.Context, name string) (bool, error)
	MarkSeeded(ctx context.Context, name string) error
}

// Archiver keeps a copy of payloads that could not be parsed.
type Archiver interface {
	ArchiveCorrupt(ctx context.Context, name string, payload []byte) (string, error)
}

type noteGetter interface {
	GetNote(ctx context.Context, id string) (Note, error)
}

// Service implements the note list and note page operations over a Store.
type Service struct {
	store        Store
	editMaxChars int
	archiver     Archiver
	newID        func() string
}

// NewService returns a Service. editMaxChars caps content of existing notes.
func NewService(store Store, editMaxChars int) *Service {
	return &Service{
		store:        store,
		editMaxChars: editMaxChars,
		newID:        func() string { return uuid.NewString() },
	}
}

// WithArchiver sets where corrupt import payloads are preserved.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// EditMaxChars returns the content cap for existing notes.
func (s *Service) EditMaxChars() int {
	return s.editMaxChars
}

// Health reports the store health.
func (s *Service) Health() Health {
	return s.store.Health()
}

// EnsureIntro writes the welcome note under IntroNoteID if it was never seeded.
// Nothing is written while the store is failing, so a transient error cannot
// overwrite a user's note "1".
func (s *Service) EnsureIntro(ctx context.Context) error {
	seeder, hasSeeder := s.store.(Seeder)
	if hasSeeder {
		done, err := seeder.Seeded(ctx, introSeedName)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	_, err := s.store.Get(ctx, IntroNoteID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if err := s.store.Put(ctx, IntroNoteID, IntroNote()); err != nil {
			return err
		}
		obs.From(ctx).Info("intro_note_seeded")
	default:
		return err
	}

	if hasSeeder {
		return seeder.MarkSeeded(ctx, introSeedName)
	}
	return nil
}

// List returns notes matching query (case-insensitive substring of the title
// or the plain-text content), pinned notes first. The intro note is seeded on
// first use.
func (s *Service) List(ctx context.Context, query string) []ListItem {
	if err := s.EnsureIntro(ctx); err != nil {
		obs.From(ctx).Warn("intro_note_seed_failed", "error", err)
	}

	all := s.store.GetAll(ctx)
	needle := strings.ToLower(strings.TrimSpace(query))

	items := make([]ListItem, 0, len(all))
	for id, rec := range all {
		if needle != "" &&
			!strings.Contains(strings.ToLower(rec.Title), needle) &&
			!strings.Contains(strings.ToLower(PlainText(rec.Content)), needle) {
			continue
		}
		items = append(items, ListItem{
			ID:       id,
			Title:    rec.Title,
			Preview:  Preview(rec.Content),
			IsPinned: rec.IsPinned,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsPinned != items[j].IsPinned {
			return items[i].IsPinned
		}
		return idLess(items[i].ID, items[j].ID)
	})
	return items
}

// idLess orders numeric ids numerically before all other ids, which sort
// lexically. Timestamp ids from the browser-storage era keep creation order.
func idLess(a, b string) bool {
	na, aNum := numericID(a)
	nb, bNum := numericID(b)
	switch {
	case aNum && bNum:
		if na != nb {
			return na < nb
		}
		return a < b
	case aNum:
		return true
	case bNum:
		return false
	default:
		return a < b
	}
}

func numericID(id string) (uint64, bool) {
	if id == "" || (len(id) > 1 && id[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	return n, err == nil
}

// Get returns one note.
func (s *Service) Get(ctx context.Context, id string) (Note, error) {
	if g, ok := s.store.(noteGetter); ok {
		return g.GetNote(ctx, id)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Note{}, err
	}
	return Note{
		ID:       id,
		Title:    rec.Title,
		Content:  rec.Content,
		IsPinned: rec.IsPinned,
		Revision: RevisionHash(rec.Title, rec.Content),
	}, nil
}

// Create stores a new note under a fresh id. Title and content must be
// non-empty after trimming; new notes have no length cap.
func (s *Service) Create(ctx context.Context, rec Record) (string, error) {
	if err := ValidateNew(rec); err != nil {
		return "", err
	}
	id := s.newID()
	if err := s.store.Put(ctx, id, rec); err != nil {
		return "", err
	}
	obs.From(obs.WithNoteID(ctx, id)).Info("note_created", "content_chars", utf8.RuneCountInString(rec.Content))
	return id, nil
}

// ValidateNew checks the save precondition of the create flow.
func ValidateNew(rec Record) error {
	if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(PlainText(rec.Content)) == "" {
		return ErrEmptyNote
	}
	return nil
}

// Replace overwrites an existing note. The edit cap applies.
func (s *Service) Replace(ctx context.Context, id string, rec Record) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.checkCap(rec); err != nil {
		return err
	}
	return s.store.Put(ctx, id, rec)
}

func (s *Service) checkCap(rec Record) error {
	if n := utf8.RuneCountInString(rec.Content); s.editMaxChars > 0 && n > s.editMaxChars {
		return fmt.Errorf("%w: %d > %d", ErrContentTooLong, n, s.editMaxChars)
	}
	return nil
}

type revisionPutter interface {
	PutIfRevision(ctx context.Context, id, prior string, rec Record) error
}

// Update replaces title and content of a note whose current revision is
// priorHash. Nil fields keep their stored value. The edit cap applies.
func (s *Service) Update(ctx context.Context, id, priorHash string, title, content *string) (Note, error) {
	if strings.TrimSpace(priorHash) == "" {
		return Note{}, ErrPriorHashRequired
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Note{}, err
	}
	if cur.Revision != priorHash {
		return Note{}, fmt.Errorf("%w: have %s", ErrRevisionConflict, cur.Revision)
	}
	rec := cur.Record()
	if title != nil {
		rec.Title = *title
	}
	if content != nil {
		rec.Content = *content
	}
	if err := s.checkCap(rec); err != nil {
		return Note{}, err
	}

	// A write between the read above and this one must not be overwritten.
	if rp, ok := s.store.(revisionPutter); ok {
		err = rp.PutIfRevision(ctx, id, priorHash, rec)
	} else {
		err = s.store.Put(ctx, id, rec)
	}
	if err != nil {
		return Note{}, err
	}
	obs.From(obs.WithNoteID(ctx, id)).Info("note_updated", "prior_revision", priorHash)
	return s.Get(ctx, id)
}

// Delete removes an existing note.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	obs.From(obs.WithNoteID(ctx, id)).Info("note_deleted")
	return nil
}

// TogglePin flips the pinned flag and returns the new value.
func (s *Service) TogglePin(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	rec.IsPinned = !rec.IsPinned
	if err := s.store.Put(ctx, id, rec); err != nil {
		return false, err
	}
	return rec.IsPinned, nil
}

// Stats returns the editor counters of a stored note.
func (s *Service) Stats(ctx context.Context, id string) (Stats, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(rec.Content, s.editMaxChars), nil
}

// ComputeStats counts runes of the serialized content and whitespace-separated
// words, the same numbers the editor shows while typing.
func ComputeStats(content string, maxChars int) Stats {
	return Stats{
		Characters: utf8.RuneCountInString(content),
		Words:      len(strings.Fields(content)),
		MaxChars:   maxChars,
	}
}

// Share builds the share message for a stored note.
func (s *Service) Share(ctx context.Context, id string) (Share, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Share{}, err
	}
	return BuildShare(rec), nil
}

// BuildShare formats "**title**", a blank line and the content without markup.
func BuildShare(rec Record) Share {
	msg := "**" + rec.Title + "**\n\n" + PlainText(rec.Content)
	return Share{
		Message: msg,
		URL:     ShareBaseURL + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20"),
	}
}

// Export renders a stored note for download. format is "txt" (the content as
// stored) or "html" (a standalone page).
func (s *Service) Export(ctx context.Context, id, format, lang string) (filename, contentType string, body []byte, err error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", "", nil, err
	}
	base := DownloadName(rec.Title)
	switch format {
	case "", "txt":
		return base + ".txt", "text/plain; charset=utf-8", []byte(rec.Content), nil
	case "html":
		return base + ".html", "text/html; charset=utf-8", RenderDocument(rec.Title, rec.Content, lang), nil
	default:
		return "", "", nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// DownloadName turns a title into a file name without path separators or
// quotes.
func DownloadName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "note"
	}
	return name
}

// Import merges a browser-storage dump into the store. Existing notes are kept
// unless overwrite is set. A corrupt payload imports nothing; it is archived
// when an Archiver is configured and reported through ImportResult.Corrupt.
func (s *Service) Import(ctx context.Context, payload []byte, overwrite bool) (ImportResult, error) {
	records, err := ParseLegacy(payload)
	if errors.Is(err, ErrCorruptPayload) {
		res := ImportResult{Corrupt: true}
		obs.From(ctx).Warn("legacy_import_corrupt", "error", err, "bytes", len(payload))
		if s.archiver != nil {
			key, aerr := s.archiver.ArchiveCorrupt(ctx, "legacy-notes", payload)
			if aerr != nil {
				obs.From(ctx).Warn("legacy_import_archive_failed", "error", aerr)
			} else {
				res.BackupKey = key
			}
		}
		return res, nil
	}
	if err != nil {
		return ImportResult{}, err
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	var res ImportResult
	for _, id := range ids {
		rec := records[id]
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			if existing == rec || !overwrite {
				res.Skipped++
				continue
			}
		case errors.Is(err, ErrNotFound):
		default:
			return res, err
		}
		if err := s.store.Put(ctx, id, rec); err != nil {
			return res, err
		}
		res.Imported++
	}
	obs.From(ctx).Info("legacy_import_done", "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
