package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notelytic/internal/assist"
	"github.com/kuitang/notelytic/internal/history"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Config holds session tunables.
type Config struct {
	// EditMaxChars caps content of existing notes, in runes.
	EditMaxChars int
	// AIMaxChars caps content plus appended generated text.
	AIMaxChars int
	// GenerateTimeout bounds each AI draft.
	GenerateTimeout time.Duration
	// IdleTimeout closes sessions without activity. Zero disables cleanup.
	IdleTimeout time.Duration
}

// Manager owns the open sessions.
type Manager struct {
	svc       *notes.Service
	autosave  *Autosaver
	generator assist.Generator
	cfg       Config
	now       func() time.Time
	newID     func() string

	// NewSurface and NewNavigator, when set, attach collaborators to each
	// new session.
	NewSurface   func(sessionID string) Surface
	NewNavigator func(sessionID string) Navigator

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager returns a manager and starts idle cleanup when configured.
func NewManager(svc *notes.Service, generator assist.Generator, cfg Config) *Manager {
	m := &Manager{
		svc:       svc,
		autosave:  NewAutosaver(svc.Store()),
		generator: generator,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		sessions:  make(map[string]*Session),
		stopCh:    make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go m.cleanupLoop(cleanupInterval(cfg.IdleTimeout))
	}
	return m
}

func cleanupInterval(idle time.Duration) time.Duration {
	if iv := idle / 4; iv > time.Second {
		return iv
	}
	return time.Second
}

// Open starts a session on an existing note, in Viewing.
func (m *Manager) Open(ctx context.Context, noteID string) (*Session, error) {
	note, err := m.svc.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	s := m.newSession(note.ID, note.Record(), false)
	obs.From(obs.WithNoteID(obs.WithSessionID(ctx, s.id), noteID)).Info("editor_session_opened")
	return s, nil
}

// OpenDraft starts a create-note session. Drafts start in Editing with the
// title focused and write nothing until Save.
func (m *Manager) OpenDraft(ctx context.Context) *Session {
	s := m.newSession("", notes.Record{}, true)
	s.state = StateEditing
	s.focus = history.FieldTitle
	obs.From(obs.WithSessionID(ctx, s.id)).Info("editor_draft_opened")
	return s
}

func (m *Manager) newSession(noteID string, rec notes.Record, draft bool) *Session {
	id := m.newID()
	s := &Session{
		id:         id,
		svc:        m.svc,
		autosave:   m.autosave,
		maxChars:   m.cfg.EditMaxChars,
		aiChars:    m.cfg.AIMaxChars,
		gen:        assist.NewCoordinator(m.generator, m.cfg.GenerateTimeout),
		now:        m.now,
		noteID:     noteID,
		draft:      draft,
		record:     rec,
		state:      StateViewing,
		history:    history.New(),
		lastActive: m.now(),
	}
	if m.NewSurface != nil {
		s.surface = m.NewSurface(id)
	}
	if m.NewNavigator != nil {
		s.nav = m.NewNavigator(id)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session. Closing an unknown id returns ErrSessionNotFound.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup closes sessions idle for longer than the idle timeout, and
// sessions already closed by Cancel.
func (m *Manager) Cleanup() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.closed || (m.cfg.IdleTimeout > 0 && s.lastActive.Before(cutoff))
		s.mu.Unlock()
		if stale {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		obs.Pkg("editor").Debug("editor_sessions_expired", "count", len(expired))
	}
	return len(expired)
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// Stop halts cleanup and closes every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
