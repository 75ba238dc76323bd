package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kuitang/notelytic/internal/backup"
	"github.com/kuitang/notelytic/internal/editor"
	"github.com/kuitang/notelytic/internal/errs"
	"github.com/kuitang/notelytic/internal/locale"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
	"github.com/kuitang/notelytic/internal/prefs"
	"github.com/kuitang/notelytic/internal/ratelimit"
)

const (
	// UserHeader carries the host-provided user id.
	UserHeader = "X-User-Id"
	// DegradedHeader is set on note responses while storage is failing.
	DegradedHeader = "X-Notes-Degraded"

	maxJSONBodyBytes   = 1 << 20
	maxImportBodyBytes = 8 << 20
)

// Deps are the services behind the HTTP surface. Backup and MCP are optional.
type Deps struct {
	Notes    *notes.Service
	Sessions *editor.Manager
	Prefs    *prefs.Store
	Backup   *backup.Service
	Limiter  *ratelimit.RateLimiter
	MCP      http.Handler
	Version  string
}

// Handler serves the JSON API.
type Handler struct {
	notes    *notes.Service
	sessions *editor.Manager
	prefs    *prefs.Store
	backup   *backup.Service
	limiter  *ratelimit.RateLimiter
	mcp      http.Handler
	version  string
}

// NewHandler creates the API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		notes:    d.Notes,
		sessions: d.Sessions,
		prefs:    d.Prefs,
		backup:   d.Backup,
		limiter:  d.Limiter,
		mcp:      d.MCP,
		version:  d.Version,
	}
}

// Routes returns the complete handler with request correlation and access
// logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("api", mux))
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Open routes.
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/start", h.Start)
	mux.HandleFunc("GET /api/nav", h.Navigate)
	mux.HandleFunc("GET /api/preferences", h.GetPreferences)
	mux.HandleFunc("PUT /api/preferences", h.UpdatePreferences)

	// Notes.
	mux.Handle("GET /api/notes", h.protect(ratelimit.ClassAPI, h.ListNotes))
	mux.Handle("POST /api/notes", h.protect(ratelimit.ClassAPI, h.CreateNote))
	mux.Handle("POST /api/notes/import", h.protect(ratelimit.ClassAPI, h.ImportNotes))
	mux.Handle("GET /api/notes/{id}", h.protect(ratelimit.ClassAPI, h.GetNote))
	mux.Handle("PUT /api/notes/{id}", h.protect(ratelimit.ClassAPI, h.ReplaceNote))
	mux.Handle("DELETE /api/notes/{id}", h.protect(ratelimit.ClassAPI, h.DeleteNote))
	mux.Handle("PATCH /api/notes/{id}/pin", h.protect(ratelimit.ClassAPI, h.TogglePin))
	mux.Handle("GET /api/notes/{id}/stats", h.protect(ratelimit.ClassAPI, h.NoteStats))
	mux.Handle("GET /api/notes/{id}/share", h.protect(ratelimit.ClassAPI, h.ShareNote))
	mux.Handle("GET /api/notes/{id}/download", h.protect(ratelimit.ClassAPI, h.DownloadNote))

	// Backups.
	mux.Handle("POST /api/backup", h.protect(ratelimit.ClassAPI, h.CreateBackup))
	mux.Handle("GET /api/backup", h.protect(ratelimit.ClassAPI, h.ListBackups))

	// Editor sessions.
	mux.Handle("POST /api/sessions", h.protect(ratelimit.ClassAPI, h.OpenSession))
	mux.Handle("GET /api/sessions/{sid}", h.protect(ratelimit.ClassAPI, h.GetSession))
	mux.Handle("DELETE /api/sessions/{sid}", h.protect(ratelimit.ClassAPI, h.CloseSession))
	mux.Handle("POST /api/sessions/{sid}/edit", h.protect(ratelimit.ClassAPI, h.BeginEdit))
	mux.Handle("POST /api/sessions/{sid}/changes", h.protect(ratelimit.ClassAPI, h.ApplyChange))
	mux.Handle("POST /api/sessions/{sid}/undo", h.protect(ratelimit.ClassAPI, h.Undo))
	mux.Handle("POST /api/sessions/{sid}/redo", h.protect(ratelimit.ClassAPI, h.Redo))
	mux.Handle("POST /api/sessions/{sid}/save", h.protect(ratelimit.ClassAPI, h.SaveSession))
	mux.Handle("POST /api/sessions/{sid}/cancel", h.protect(ratelimit.ClassAPI, h.CancelSession))
	mux.Handle("POST /api/sessions/{sid}/dictation", h.protect(ratelimit.ClassAPI, h.Dictate))
	mux.Handle("POST /api/sessions/{sid}/generate", h.protect(ratelimit.ClassGenerate, h.Generate))
	mux.Handle("DELETE /api/sessions/{sid}/generate", h.protect(ratelimit.ClassAPI, h.CancelGeneration))

	if h.mcp != nil {
		mux.Handle("/mcp", h.protectHandler(ratelimit.ClassAPI, h.mcp))
	}
}

func userIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (h *Handler) protect(class ratelimit.Class, fn http.HandlerFunc) http.Handler {
	return h.protectHandler(class, fn)
}

// protectHandler applies the registration guard, then the rate limit.
func (h *Handler) protectHandler(class ratelimit.Class, next http.Handler) http.Handler {
	if h.limiter != nil {
		next = ratelimit.Middleware(h.limiter, class, userIDFromRequest)(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := h.registered(r)
		if err != nil {
			h.writeError(w, r, errs.Wrap(errs.Unavailable, "preferences unavailable", err))
			return
		}
		if !ok {
			h.writeJSON(w, r, http.StatusForbidden, ErrorResponse{
				Error:    "registration required",
				Code:     string(errs.PermissionDenied),
				Redirect: "/",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registered reports whether the request's user id matches the stored
// registration marker.
func (h *Handler) registered(r *http.Request) (bool, error) {
	marker, err := h.prefs.UserID(r.Context())
	if err != nil {
		return false, err
	}
	uid := userIDFromRequest(r)
	return marker != "" && uid == marker, nil
}

// language returns the display language for messages: the stored
// preference, else the Accept-Language header.
func (h *Handler) language(r *http.Request) string {
	if h.prefs != nil {
		if p, err := h.prefs.Get(r.Context()); err == nil {
			return p.AppLanguage
		}
	}
	return r.Header.Get("Accept-Language")
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Redirect string `json:"redirect,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Storage
// degradation is reported on every response.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if h.notes != nil && h.notes.Health().Degraded {
		w.Header().Set(DegradedHeader, locale.Sprintf(h.language(r), locale.MsgStorageDegraded))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		obs.From(r.Context()).Warn("api_response_encode_failed", "error", err)
	}
}

// writeError classifies err and writes a coded, localized error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	coded := classifyError(err, h.language(r), h.editMaxChars())
	code := errs.CodeOf(coded)
	log := obs.From(r.Context()).With("pkg", "api")
	if code == errs.Internal || code == errs.Unavailable {
		log.Error("api_request_failed", "path", r.URL.Path, "code", string(code), "error", err)
	} else {
		log.Info("api_request_rejected", "path", r.URL.Path, "code", string(code), "error", err)
	}
	h.writeJSON(w, r, errs.HTTPStatus(code), ErrorResponse{
		Error: errs.MessageOf(coded),
		Code:  string(code),
	})
}

func (h *Handler) editMaxChars() int {
	if h.notes == nil {
		return 0
	}
	return h.notes.EditMaxChars()
}

// decodeJSON strictly decodes a bounded request body. An empty body decodes
// as an empty object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.New(errs.InvalidArgument, "request body too large")
		}
		return errs.Wrap(errs.InvalidArgument, "failed to read request body", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid JSON: "+err.Error(), err)
	}
	return nil
}
