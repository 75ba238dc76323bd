// Package editor implements the per-note editing session: a view/edit state
// machine with undo history, write-through autosave and AI drafting.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kuitang/notelytic/internal/assist"
	"github.com/kuitang/notelytic/internal/dictation"
	"github.com/kuitang/notelytic/internal/history"
	"github.com/kuitang/notelytic/internal/nav"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

var (
	// ErrNotEditing is returned for edits, undo and redo outside Editing.
	ErrNotEditing = errors.New("session is not editing")

	// ErrEditRejected is returned when an edit would exceed the content cap.
	// The edit is not applied, saved or recorded.
	ErrEditRejected = errors.New("edit rejected")

	// ErrUnknownField is returned for fields other than title and content.
	ErrUnknownField = errors.New("unknown field")

	// ErrSessionClosed is returned by every operation after Close or Cancel.
	ErrSessionClosed = errors.New("session is closed")
)

// State is the session mode.
type State string

const (
	StateViewing State = "viewing"
	StateEditing State = "editing"
)

// Surface displays field values. The session calls Set when it changes a
// value the user did not type: undo, redo, dictation and AI drafts.
type Surface interface {
	Set(field history.Field, value string)
}

// Navigator moves the client to another page.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ID         string        `json:"id"`
	NoteID     string        `json:"noteId,omitempty"`
	Draft      bool          `json:"draft"`
	State      State         `json:"state"`
	Focus      history.Field `json:"focus,omitempty"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	IsPinned   bool          `json:"isPinned"`
	CanUndo    bool          `json:"canUndo"`
	CanRedo    bool          `json:"canRedo"`
	CanSave    bool          `json:"canSave"`
	Stats      notes.Stats   `json:"stats"`
	Generation assist.Status `json:"generation"`
	// Navigate is set when the last operation moved the client.
	Navigate string `json:"navigate,omitempty"`
	Closed   bool   `json:"closed,omitempty"`
}

// Session edits one note, or a draft that becomes a note on Save.
//
// Lock order: the generation coordinator's lock is taken before s.mu, so s.mu
// is never held while calling into s.gen.
type Session struct {
	id       string
	svc      *notes.Service
	autosave *Autosaver
	maxChars int
	aiChars  int
	surface  Surface
	nav      Navigator
	gen      *assist.Coordinator
	now      func() time.Time

	mu         sync.Mutex
	noteID     string
	draft      bool
	record     notes.Record
	state      State
	focus      history.Field
	history    *history.Tracker
	navigate   string
	closed     bool
	lastActive time.Time
}

func (s *Session) ID() string { return s.id }

// LastActive returns the time of the last operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	ctx = obs.WithSessionID(ctx, s.id)
	if s.noteID != "" {
		ctx = obs.WithNoteID(ctx, s.noteID)
	}
	return obs.From(ctx)
}

// checkLocked validates the session may accept edits. s.mu must be held.
func (s *Session) checkLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateEditing {
		return ErrNotEditing
	}
	return nil
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
	s.navigate = ""
}

// BeginEdit switches to Editing with focus on the given field. Calling it
// while already editing only moves the focus.
func (s *Session) BeginEdit(ctx context.Context, focus history.Field) (Snapshot, error) {
	if focus == "" {
		focus = history.FieldContent
	}
	if !focus.Valid() {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownField, focus)
	}
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	s.touchLocked()
	if s.state != StateEditing {
		s.state = StateEditing
		s.logger(ctx).Debug("editor_begin_edit", "focus", string(focus))
	}
	s.focus = focus
	return s.snapshotLocked(gen), nil
}

// ApplyEdit accepts a value typed on the surface. Existing notes are written
// through immediately; drafts are kept until Save.
func (s *Session) ApplyEdit(ctx context.Context, field history.Field, value string) (Snapshot, error) {
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked()
	if err := s.applyLocked(ctx, field, value); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(gen), nil
}

// applyLocked records and persists one edit. Nothing changes on error.
func (s *Session) applyLocked(ctx context.Context, field history.Field, value string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if !s.draft && field == history.FieldContent && s.maxChars > 0 {
		if n := utf8.RuneCountInString(value); n > s.maxChars {
			s.logger(ctx).Info("editor_edit_rejected", "chars", n, "max_chars", s.maxChars)
			return fmt.Errorf("%w: %d characters exceeds the limit of %d", ErrEditRejected, n, s.maxChars)
		}
	}

	before := fieldValue(s.record, field)
	if before == value {
		return nil
	}
	if s.draft {
		s.record = Merge(s.record, field, value)
	} else {
		merged, err := s.autosave.Persist(ctx, s.noteID, field, value)
		if err != nil {
			return err
		}
		s.record = merged
	}
	s.history.Record(field, before, value)
	return nil
}

// Undo restores the value before the latest edit. With nothing to undo it
// returns the unchanged state.
func (s *Session) Undo(ctx context.Context) (Snapshot, error) {
	return s.step(ctx, true)
}

// Redo re-applies the most recently undone edit.
func (s *Session) Redo(ctx context.Context) (Snapshot, error) {
	return s.step(ctx, false)
}

func (s *Session) step(ctx context.Context, undo bool) (Snapshot, error) {
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked()

	var (
		entry history.Entry
		ok    bool
		value string
	)
	if undo {
		entry, ok = s.history.Undo()
		value = entry.Before
	} else {
		entry, ok = s.history.Redo()
		value = entry.After
	}
	if !ok {
		return s.snapshotLocked(gen), nil
	}

	if s.draft {
		s.record = Merge(s.record, entry.Field, value)
	} else {
		merged, err := s.autosave.Persist(ctx, s.noteID, entry.Field, value)
		if err != nil {
			// Put the entry back where it was.
			if undo {
				s.history.Redo()
			} else {
				s.history.Undo()
			}
			return Snapshot{}, err
		}
		s.record = merged
	}
	s.setSurface(entry.Field, value)
	return s.snapshotLocked(gen), nil
}

// Dictate applies a speech transcript to the content as one edit.
func (s *Session) Dictate(ctx context.Context, transcript string) (Snapshot, error) {
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked()

	value := dictation.Apply(s.record.Content, dictation.Process(transcript))
	if err := s.applyLocked(ctx, history.FieldContent, value); err != nil {
		return Snapshot{}, err
	}
	s.setSurface(history.FieldContent, s.record.Content)
	return s.snapshotLocked(gen), nil
}

// Generate starts an AI draft from prompt and returns immediately. The
// result is appended to the content as one edit once it arrives.
func (s *Session) Generate(ctx context.Context, prompt string) (Snapshot, error) {
	s.mu.Lock()
	err := s.checkLocked()
	if err == nil {
		s.touchLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	if _, err := s.gen.Start(obs.WithSessionID(ctx, s.id), prompt, s.applyGenerated); err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// applyGenerated runs on the coordinator goroutine with its lock held.
func (s *Session) applyGenerated(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	ctx := obs.WithSessionID(context.Background(), s.id)
	value := assist.AppendGenerated(s.record.Content, text, s.aiChars)
	if err := s.applyLocked(ctx, history.FieldContent, value); err != nil {
		return err
	}
	s.lastActive = s.now()
	s.setSurface(history.FieldContent, s.record.Content)
	return nil
}

// CancelGeneration aborts a pending AI draft. It is idempotent.
func (s *Session) CancelGeneration() Snapshot {
	s.gen.Cancel()
	return s.Snapshot()
}

// WaitGeneration blocks until the current AI draft settles.
func (s *Session) WaitGeneration(ctx context.Context) error {
	return s.gen.Wait(ctx)
}

// Save leaves Editing. An existing note is flushed and stays open in Viewing.
// A draft must have a title and content; it is stored under a new id and
// the client is sent to the note list.
func (s *Session) Save(ctx context.Context) (Snapshot, error) {
	s.gen.Cancel()
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked()

	if !s.draft {
		rec, err := s.autosave.Flush(ctx, s.noteID)
		if err != nil {
			return Snapshot{}, err
		}
		s.record = rec
		s.state = StateViewing
		s.logger(ctx).Info("editor_saved")
		return s.snapshotLocked(gen), nil
	}

	id, err := s.svc.Create(ctx, s.record)
	if err != nil {
		return Snapshot{}, err
	}
	s.noteID = id
	s.draft = false
	s.state = StateViewing
	s.history.Reset()
	s.navigateLocked(ctx, nav.ListPath)
	s.logger(ctx).Info("editor_draft_saved")
	return s.snapshotLocked(gen), nil
}

// Cancel abandons the session. A draft is discarded without writing; edits
// to an existing note were already saved. The client returns to the list.
func (s *Session) Cancel(ctx context.Context) (Snapshot, error) {
	s.gen.Cancel()
	gen := s.gen.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	s.touchLocked()
	s.closed = true
	s.state = StateViewing
	s.navigateLocked(ctx, nav.ListPath)
	s.logger(ctx).Debug("editor_cancelled", "draft", s.draft)
	return s.snapshotLocked(gen), nil
}

// Close releases the session and aborts any pending generation.
func (s *Session) Close() {
	s.gen.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	gen := s.gen.Status()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(gen)
}

func (s *Session) snapshotLocked(gen assist.Status) Snapshot {
	undo, redo := s.history.CanUndo(), s.history.CanRedo()
	return Snapshot{
		ID:         s.id,
		NoteID:     s.noteID,
		Draft:      s.draft,
		State:      s.state,
		Focus:      s.focus,
		Title:      s.record.Title,
		Content:    s.record.Content,
		IsPinned:   s.record.IsPinned,
		CanUndo:    undo && s.state == StateEditing,
		CanRedo:    redo && s.state == StateEditing,
		CanSave:    s.state == StateEditing && (!s.draft || notes.ValidateNew(s.record) == nil),
		Stats:      notes.ComputeStats(s.record.Content, s.statsLimit()),
		Generation: gen,
		Navigate:   s.navigate,
		Closed:     s.closed,
	}
}

func (s *Session) statsLimit() int {
	if s.draft {
		return 0
	}
	return s.maxChars
}

func (s *Session) navigateLocked(ctx context.Context, path string) {
	s.navigate = path
	if s.nav != nil {
		s.nav.Navigate(ctx, path)
	}
}

func (s *Session) setSurface(field history.Field, value string) {
	if s.surface != nil {
		s.surface.Set(field, value)
	}
}

func fieldValue(rec notes.Record, field history.Field) string {
	if field == history.FieldTitle {
		return rec.Title
	}
	return rec.Content
}
