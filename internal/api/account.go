package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kuitang/notelytic/internal/errs"
	"github.com/kuitang/notelytic/internal/nav"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/prefs"
)

// StartRequest registers the host-provided user.
type StartRequest struct {
	UserID string `json:"userId"`
}

// StartResponse tells the client where to go after registration.
type StartResponse struct {
	Redirect    string            `json:"redirect"`
	Preferences prefs.Preferences `json:"preferences"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status   string       `json:"status"`
	Version  string       `json:"version,omitempty"`
	Storage  notes.Health `json:"storage"`
	Sessions int          `json:"sessions"`
	Backup   bool         `json:"backup"`
}

type healthChecker interface {
	Check(ctx context.Context) notes.Health
}

// Health handles GET /api/health. Degraded storage is reported, not failed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.notes.Health()
	if c, ok := h.notes.Store().(healthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		health = c.Check(ctx)
		cancel()
	}
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Storage: health,
		Backup:  h.backup != nil,
	}
	if health.Degraded {
		resp.Status = "degraded"
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// Start handles POST /api/start. The body's userId, or the X-User-Id header,
// becomes the registration marker.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		req.UserID = userIDFromRequest(r)
	}
	if err := h.prefs.Register(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.prefs.Get(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, StartResponse{Redirect: nav.ListPath, Preferences: p})
}

// Navigate handles GET /api/nav?path=. It resolves the path through the
// route guard for the requesting user.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	registered, err := h.registered(r)
	if err != nil {
		h.writeError(w, r, errs.Wrap(errs.Unavailable, "preferences unavailable", err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, nav.Resolve(r.URL.Query().Get("path"), registered))
}

// GetPreferences handles GET /api/preferences. The registration marker is
// not echoed.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Get(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p.UserID = ""
	h.writeJSON(w, r, http.StatusOK, p)
}

// UpdatePreferences handles PUT /api/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var u prefs.Update
	if err := decodeJSON(w, r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.prefs.Apply(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p.UserID = ""
	h.writeJSON(w, r, http.StatusOK, p)
}

// BackupResponse names the written snapshot.
type BackupResponse struct {
	Key   string `json:"key"`
	Notes int    `json:"notes"`
}

// CreateBackup handles POST /api/backup.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeError(w, r, errs.New(errs.FailedPrecondition, "backups are not configured"))
		return
	}
	records := h.notes.Store().GetAll(r.Context())
	if h.notes.Health().Degraded {
		h.writeError(w, r, errs.New(errs.Unavailable, "notes storage is unavailable"))
		return
	}
	key, err := h.backup.Snapshot(r.Context(), records)
	if err != nil {
		h.writeError(w, r, errs.Wrap(errs.Unavailable, "backup failed", err))
		return
	}
	h.writeJSON(w, r, http.StatusCreated, BackupResponse{Key: key, Notes: len(records)})
}

// ListBackups handles GET /api/backup.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeError(w, r, errs.New(errs.FailedPrecondition, "backups are not configured"))
		return
	}
	keys, err := h.backup.Snapshots(r.Context())
	if err != nil {
		h.writeError(w, r, errs.Wrap(errs.Unavailable, "list backups failed", err))
		return
	}
	if keys == nil {
		keys = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"snapshots": keys})
}
