package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/kuitang/notelytic/internal/errs"
	"github.com/kuitang/notelytic/internal/notes"
)

// ListNotesResponse is the note list page.
type ListNotesResponse struct {
	Notes    []notes.ListItem `json:"notes"`
	Degraded bool             `json:"degraded"`
}

// NoteRequest is the body of create and replace.
type NoteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPinned bool   `json:"isPinned"`
}

func (req NoteRequest) record() notes.Record {
	return notes.Record{Title: req.Title, Content: req.Content, IsPinned: req.IsPinned}
}

// ListNotes handles GET /api/notes?q=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items := h.notes.List(r.Context(), r.URL.Query().Get("q"))
	h.writeJSON(w, r, http.StatusOK, ListNotesResponse{
		Notes:    items,
		Degraded: h.notes.Health().Degraded,
	})
}

// GetNote handles GET /api/notes/{id}. The revision is served as the ETag.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	etag := strconv.Quote(note.Revision)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	h.writeJSON(w, r, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.notes.Create(r.Context(), req.record())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	note, err := h.notes.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/notes/"+id)
	h.writeJSON(w, r, http.StatusCreated, note)
}

// ReplaceNote handles PUT /api/notes/{id}. If-Match, when present, must name
// the current revision.
func (h *Handler) ReplaceNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		prior, err := strconv.Unquote(ifMatch)
		if err != nil {
			prior = ifMatch
		}
		cur, err := h.notes.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if cur.Revision != prior {
			h.writeError(w, r, notes.ErrRevisionConflict)
			return
		}
	}
	if err := h.notes.Replace(r.Context(), id, req.record()); err != nil {
		h.writeError(w, r, err)
		return
	}

	note, err := h.notes.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(note.Revision))
	h.writeJSON(w, r, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePin handles PATCH /api/notes/{id}/pin.
func (h *Handler) TogglePin(w http.ResponseWriter, r *http.Request) {
	pinned, err := h.notes.TogglePin(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"id": r.PathValue("id"), "isPinned": pinned})
}

// NoteStats handles GET /api/notes/{id}/stats.
func (h *Handler) NoteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.notes.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// ShareNote handles GET /api/notes/{id}/share.
func (h *Handler) ShareNote(w http.ResponseWriter, r *http.Request) {
	share, err := h.notes.Share(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, share)
}

// DownloadNote handles GET /api/notes/{id}/download?format=txt|html.
func (h *Handler) DownloadNote(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "txt", "html":
	default:
		h.writeError(w, r, errs.New(errs.InvalidArgument, "format must be txt or html"))
		return
	}
	name, contentType, body, err := h.notes.Export(r.Context(), r.PathValue("id"), format, h.language(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// ImportNotes handles POST /api/notes/import?overwrite=true. The body is a
// browser-storage notes dump. A corrupt dump imports nothing and is reported
// with corrupt=true.
func (h *Handler) ImportNotes(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, errs.New(errs.InvalidArgument, "import payload too large"))
			return
		}
		h.writeError(w, r, errs.Wrap(errs.InvalidArgument, "failed to read import payload", err))
		return
	}
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	res, err := h.notes.Import(r.Context(), payload, overwrite)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}
