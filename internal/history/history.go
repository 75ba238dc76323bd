// Package history tracks field-level undo and redo for one open note.
package history

// Field names a note field that can be edited.
type Field string

const (
	FieldTitle   Field = "title"
	FieldContent Field = "content"
)

// Valid reports whether f is an editable field.
func (f Field) Valid() bool {
	return f == FieldTitle || f == FieldContent
}

// Entry is one confirmed edit. Undo applies Before, redo applies After.
type Entry struct {
	Field  Field  `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Tracker holds the undo and redo stacks of a session. It is not safe for
// concurrent use; the owning session serializes access.
type Tracker struct {
	undo []Entry
	// redo is kept in pop order: the next entry to redo is the last element.
	redo []Entry
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Record pushes an edit and clears the redo stack.
func (t *Tracker) Record(field Field, before, after string) {
	t.undo = append(t.undo, Entry{Field: field, Before: before, After: after})
	t.redo = t.redo[:0]
}

// Undo moves the latest edit to the redo stack and returns it. The caller
// applies entry.Before. ok is false when there is nothing to undo.
func (t *Tracker) Undo() (entry Entry, ok bool) {
	n := len(t.undo)
	if n == 0 {
		return Entry{}, false
	}
	entry = t.undo[n-1]
	t.undo = t.undo[:n-1]
	t.redo = append(t.redo, entry)
	return entry, true
}

// Redo moves the most recently undone edit back to the undo stack and returns
// it. The caller applies entry.After.
func (t *Tracker) Redo() (entry Entry, ok bool) {
	n := len(t.redo)
	if n == 0 {
		return Entry{}, false
	}
	entry = t.redo[n-1]
	t.redo = t.redo[:n-1]
	t.undo = append(t.undo, entry)
	return entry, true
}

// CanUndo reports whether an edit is available to undo.
func (t *Tracker) CanUndo() bool { return len(t.undo) > 0 }

// CanRedo reports whether an undone edit is available to redo.
func (t *Tracker) CanRedo() bool { return len(t.redo) > 0 }

// Len returns the sizes of the undo and redo stacks.
func (t *Tracker) Len() (undo, redo int) {
	return len(t.undo), len(t.redo)
}

// Reset drops all history.
func (t *Tracker) Reset() {
	t.undo = nil
	t.redo = nil
}
