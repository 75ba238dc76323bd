package editor

import (
	"context"
	"fmt"

	"github.com/kuitang/notelytic/internal/history"
	"github.com/kuitang/notelytic/internal/notes"
)

// Autosaver writes each accepted edit through to the store.
type Autosaver struct {
	store notes.Store
}

// NewAutosaver returns an Autosaver over store.
func NewAutosaver(store notes.Store) *Autosaver {
	return &Autosaver{store: store}
}

// fieldSetter overwrites one column of an existing note in a single statement.
type fieldSetter interface {
	SetField(ctx context.Context, id, field, value string) (notes.Record, error)
}

// Merge returns rec with field set to value. The other field is untouched.
func Merge(rec notes.Record, field history.Field, value string) notes.Record {
	switch field {
	case history.FieldTitle:
		rec.Title = value
	case history.FieldContent:
		rec.Content = value
	}
	return rec
}

// Persist writes one field of an existing note and returns the stored record.
// The edit is merged into the row as stored now, so concurrent changes to the
// other field or the pin survive. A deleted note is not recreated: the edit
// fails with notes.ErrNotFound.
func (a *Autosaver) Persist(ctx context.Context, id string, field history.Field, value string) (notes.Record, error) {
	if fs, ok := a.store.(fieldSetter); ok {
		rec, err := fs.SetField(ctx, id, string(field), value)
		if err != nil {
			return notes.Record{}, fmt.Errorf("autosave %s: %w", field, err)
		}
		return rec, nil
	}

	cur, err := a.store.Get(ctx, id)
	if err != nil {
		return notes.Record{}, fmt.Errorf("autosave %s: %w", field, err)
	}
	merged := Merge(cur, field, value)
	if err := a.store.Put(ctx, id, merged); err != nil {
		return notes.Record{}, fmt.Errorf("autosave %s: %w", field, err)
	}
	return merged, nil
}

// Flush confirms the note still exists and returns it as stored. Edits were
// already written through, so nothing is written.
func (a *Autosaver) Flush(ctx context.Context, id string) (notes.Record, error) {
	rec, err := a.store.Get(ctx, id)
	if err != nil {
		return notes.Record{}, fmt.Errorf("flush: %w", err)
	}
	return rec, nil
}
