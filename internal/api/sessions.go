package api

import (
	"net/http"

	"github.com/kuitang/notelytic/internal/editor"
	"github.com/kuitang/notelytic/internal/history"
	"github.com/kuitang/notelytic/internal/obs"
)

// SessionResponse is a session snapshot with the localized generation
// message.
type SessionResponse struct {
	editor.Snapshot
	GenerationMessage string `json:"generationMessage,omitempty"`
}

// OpenSessionRequest opens a note, or a draft when NoteID is empty.
type OpenSessionRequest struct {
	NoteID string `json:"noteId"`
}

// EditRequest is the body of POST /api/sessions/{sid}/edit.
type EditRequest struct {
	Focus history.Field `json:"focus"`
}

// ChangeRequest is one typed value.
type ChangeRequest struct {
	Field history.Field `json:"field"`
	Value string        `json:"value"`
}

// DictationRequest carries a speech transcript.
type DictationRequest struct {
	Transcript string `json:"transcript"`
}

// GenerateRequest carries the AI prompt.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, snap editor.Snapshot) {
	h.writeJSON(w, r, status, SessionResponse{
		Snapshot:          snap,
		GenerationMessage: generationMessage(snap.Generation, h.language(r)),
	})
}

// session resolves {sid} and tags the request context with it.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, *http.Request, bool) {
	s, err := h.sessions.Get(r.PathValue("sid"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, r, false
	}
	return s, r.WithContext(obs.WithSessionID(r.Context(), s.ID())), true
}

// OpenSession handles POST /api/sessions.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.NoteID == "" {
		s := h.sessions.OpenDraft(r.Context())
		h.writeSnapshot(w, r, http.StatusCreated, s.Snapshot())
		return
	}
	s, err := h.sessions.Open(r.Context(), req.NoteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusCreated, s.Snapshot())
}

// GetSession handles GET /api/sessions/{sid}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, s.Snapshot())
}

// CloseSession handles DELETE /api/sessions/{sid}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.PathValue("sid")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BeginEdit handles POST /api/sessions/{sid}/edit.
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := s.BeginEdit(r.Context(), req.Focus)
	h.respond(w, r, snap, err)
}

// ApplyChange handles POST /api/sessions/{sid}/changes.
func (h *Handler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := s.ApplyEdit(r.Context(), req.Field, req.Value)
	h.respond(w, r, snap, err)
}

// Undo handles POST /api/sessions/{sid}/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Undo(r.Context())
	h.respond(w, r, snap, err)
}

// Redo handles POST /api/sessions/{sid}/redo.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Redo(r.Context())
	h.respond(w, r, snap, err)
}

// SaveSession handles POST /api/sessions/{sid}/save.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Save(r.Context())
	h.respond(w, r, snap, err)
}

// CancelSession handles POST /api/sessions/{sid}/cancel. The session is
// closed and removed.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Cancel(r.Context())
	if err == nil {
		_ = h.sessions.Close(s.ID())
	}
	h.respond(w, r, snap, err)
}

// Dictate handles POST /api/sessions/{sid}/dictation.
func (h *Handler) Dictate(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	var req DictationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := s.Dictate(r.Context(), req.Transcript)
	h.respond(w, r, snap, err)
}

// Generate handles POST /api/sessions/{sid}/generate. It returns 202 with
// the pending status; poll the session for the outcome.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := s.Generate(r.Context(), req.Prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusAccepted, snap)
}

// CancelGeneration handles DELETE /api/sessions/{sid}/generate.
func (h *Handler) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	s, r, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, s.CancelGeneration())
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, snap editor.Snapshot, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, snap)
}
