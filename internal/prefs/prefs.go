// Package prefs stores the user's settings next to the notes.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/notelytic/internal/db"
	"github.com/kuitang/notelytic/internal/locale"
)

// Keys of the preferences table.
const (
	KeyAppLanguage    = "appLanguage"
	KeySpeechLanguage = "speechLanguage"
	KeyUserID         = "userId"
)

var (
	// ErrUnsupportedLanguage is returned for display languages outside
	// locale.Supported.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidUserID is returned when registering a blank user id.
	ErrInvalidUserID = errors.New("user id is required")
)

// Preferences are the stored settings with defaults applied.
type Preferences struct {
	AppLanguage    string `json:"appLanguage"`
	SpeechLanguage string `json:"speechLanguage"`
	// UserID is the registered-user marker; empty until registration.
	UserID string `json:"userId,omitempty"`
}

// Registered reports whether the registration marker is set.
func (p Preferences) Registered() bool {
	return p.UserID != ""
}

// Update is a partial change. Nil fields are left alone.
type Update struct {
	AppLanguage    *string `json:"appLanguage,omitempty"`
	SpeechLanguage *string `json:"speechLanguage,omitempty"`
}

// Store reads and writes the preferences table.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore returns a store over d.
func NewStore(d *db.DB) *Store {
	return &Store{db: d, now: time.Now}
}

// Get returns all preferences. Missing keys take their defaults.
func (s *Store) Get(ctx context.Context) (Preferences, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	defer rows.Close()

	p := Preferences{AppLanguage: "en", SpeechLanguage: locale.DefaultSpeechLanguage}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Preferences{}, fmt.Errorf("scan preference: %w", err)
		}
		switch key {
		case KeyAppLanguage:
			p.AppLanguage = value
		case KeySpeechLanguage:
			p.SpeechLanguage = value
		case KeyUserID:
			p.UserID = value
		}
	}
	if err := rows.Err(); err != nil {
		return Preferences{}, fmt.Errorf("iterate preferences: %w", err)
	}
	return p, nil
}

// Apply validates and stores u, then returns the resulting preferences.
func (s *Store) Apply(ctx context.Context, u Update) (Preferences, error) {
	if u.AppLanguage != nil {
		lang := strings.TrimSpace(*u.AppLanguage)
		if !locale.IsSupported(lang) {
			return Preferences{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
		}
		if err := s.set(ctx, KeyAppLanguage, locale.Match(lang).String()); err != nil {
			return Preferences{}, err
		}
	}
	if u.SpeechLanguage != nil {
		if err := s.set(ctx, KeySpeechLanguage, locale.NormalizeSpeech(*u.SpeechLanguage)); err != nil {
			return Preferences{}, err
		}
	}
	return s.Get(ctx)
}

// Register stores the registered-user marker.
func (s *Store) Register(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}
	return s.set(ctx, KeyUserID, userID)
}

// UserID returns the registered-user marker, or "" before registration.
func (s *Store) UserID(ctx context.Context) (string, error) {
	var v string
	err := s.db.SQL().QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, KeyUserID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read user id: %w", err)
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.SQL().ExecContext(ctx, `
INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}
