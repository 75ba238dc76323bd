package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notelytic/internal/assist"
	"github.com/kuitang/notelytic/internal/backup"
	"github.com/kuitang/notelytic/internal/db"
	"github.com/kuitang/notelytic/internal/editor"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/prefs"
	"github.com/kuitang/notelytic/internal/ratelimit"
	"github.com/kuitang/notelytic/internal/testdb"
)

const testUser = "4242"

type testEnv struct {
	handler  http.Handler
	notesDB  *db.DB
	store    *notes.SQLStore
	sessions *editor.Manager
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	notesDB, err := testdb.NewInMemory(t.Name() + "-notes")
	require.NoError(t, err)
	t.Cleanup(func() { notesDB.Close() })
	prefsDB, err := testdb.NewInMemory(t.Name() + "-prefs")
	require.NoError(t, err)
	t.Cleanup(func() { prefsDB.Close() })

	store := notes.NewSQLStore(notesDB)
	backups := backup.NewService(backup.TestClient(t, "notelytic-test"), "backups")
	svc := notes.NewService(store, 3000).WithArchiver(backups)
	sessions := editor.NewManager(svc, &assist.CannedGenerator{Text: "Generated text"}, editor.Config{
		EditMaxChars:    3000,
		AIMaxChars:      30000,
		GenerateTimeout: 5 * time.Second,
	})
	t.Cleanup(sessions.Stop)

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultConfig)
	t.Cleanup(limiter.Stop)

	deps := Deps{
		Notes:    svc,
		Sessions: sessions,
		Prefs:    prefs.NewStore(prefsDB),
		Backup:   backups,
		Limiter:  limiter,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &testEnv{
		handler:  NewHandler(deps).Routes(),
		notesDB:  notesDB,
		store:    store,
		sessions: sessions,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// as sends the request as the registered test user.
func (e *testEnv) as(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, append([]string{UserHeader, testUser}, headers...)...)
}

func (e *testEnv) register(t *testing.T) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/start", StartRequest{UserID: testUser})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func TestGuard_RedirectsUntilRegistered(t *testing.T) {
	env := newTestEnv(t)

	resp := env.as(t, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusForbidden, resp.Code)
	errResp := decode[ErrorResponse](t, resp)
	require.Equal(t, "permission_denied", errResp.Code)
	require.Equal(t, "/", errResp.Redirect)

	nav := env.as(t, http.MethodGet, "/api/nav?path=/note/42", nil)
	require.Equal(t, http.StatusOK, nav.Code)
	require.Contains(t, nav.Body.String(), `"redirect":"/"`)

	start := env.do(t, http.MethodPost, "/api/start", StartRequest{UserID: testUser})
	require.Equal(t, http.StatusOK, start.Code)
	require.Equal(t, "/index", decode[StartResponse](t, start).Redirect)

	require.Equal(t, http.StatusOK, env.as(t, http.MethodGet, "/api/notes", nil).Code)
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/notes", nil, UserHeader, "someone-else").Code)
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/notes", nil).Code)

	nav = env.as(t, http.MethodGet, "/api/nav?path=/", nil)
	require.Contains(t, nav.Body.String(), `"redirect":"/index"`)
	nav = env.as(t, http.MethodGet, "/api/nav?path=/note/42", nil)
	require.Contains(t, nav.Body.String(), `"noteId":"42"`)
	require.NotContains(t, nav.Body.String(), "redirect")

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/start", StartRequest{UserID: "  "}).Code)
}

func TestNotes_ListSeedsIntro(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.as(t, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[ListNotesResponse](t, resp)
	require.Len(t, list.Notes, 1)
	require.Equal(t, notes.IntroNoteID, list.Notes[0].ID)
	require.False(t, list.Degraded)
	require.Empty(t, resp.Header().Get(DegradedHeader))
}

func TestNotes_CRUD(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/notes", NoteRequest{Title: "Trip", Content: "<p>Pack the passport</p>"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[notes.Note](t, resp)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "/api/notes/"+created.ID, resp.Header().Get("Location"))

	resp = env.as(t, http.MethodGet, "/api/notes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	etag := resp.Header().Get("ETag")
	require.NotEmpty(t, etag)
	require.Equal(t, http.StatusNotModified, env.as(t, http.MethodGet, "/api/notes/"+created.ID, nil, "If-None-Match", etag).Code)

	resp = env.as(t, http.MethodPut, "/api/notes/"+created.ID, NoteRequest{Title: "Trip", Content: "<p>Pack</p>"}, "If-Match", `"stale"`)
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = env.as(t, http.MethodPut, "/api/notes/"+created.ID, NoteRequest{Title: "Trip", Content: "<p>Pack</p>"}, "If-Match", etag)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, "<p>Pack</p>", decode[notes.Note](t, resp).Content)

	resp = env.as(t, http.MethodPut, "/api/notes/"+created.ID, NoteRequest{Title: "Trip", Content: strings.Repeat("x", 3001)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Equal(t, "Content exceeds the 3,000 character limit.", decode[ErrorResponse](t, resp).Error)

	resp = env.as(t, http.MethodPatch, "/api/notes/"+created.ID+"/pin", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"isPinned":true`)

	resp = env.as(t, http.MethodGet, "/api/notes/"+created.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, notes.Stats{Characters: 11, Words: 1, MaxChars: 3000}, decode[notes.Stats](t, resp))

	resp = env.as(t, http.MethodGet, "/api/notes/"+created.ID+"/share", nil)
	require.Equal(t, "**Trip**\n\nPack", decode[notes.Share](t, resp).Message)

	resp = env.as(t, http.MethodGet, "/api/notes/"+created.ID+"/download?format=html", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "text/html; charset=utf-8", resp.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename=Trip.html`, resp.Header().Get("Content-Disposition"))
	require.Contains(t, resp.Body.String(), "<p>Pack</p>")
	require.Equal(t, http.StatusBadRequest, env.as(t, http.MethodGet, "/api/notes/"+created.ID+"/download?format=pdf", nil).Code)

	require.Equal(t, http.StatusNoContent, env.as(t, http.MethodDelete, "/api/notes/"+created.ID, nil).Code)
	resp = env.as(t, http.MethodGet, "/api/notes/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "Note not found.", decode[ErrorResponse](t, resp).Error)
}

func TestNotes_CreateValidatesAndLocalizes(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/notes", NoteRequest{Title: " ", Content: "<p>x</p>"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "Title and content are required.", decode[ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPut, "/api/preferences", map[string]string{"appLanguage": "de"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, "de", decode[prefs.Preferences](t, resp).AppLanguage)

	resp = env.as(t, http.MethodGet, "/api/notes/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "Notiz nicht gefunden.", decode[ErrorResponse](t, resp).Error)

	require.Equal(t, http.StatusBadRequest, env.as(t, http.MethodPost, "/api/notes", `{"title":"a","bogus":1}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/preferences", map[string]string{"appLanguage": "xx"}).Code)
}

func TestPreferences_DefaultsAndSpeechNormalization(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.do(t, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	p := decode[prefs.Preferences](t, resp)
	require.Equal(t, "en", p.AppLanguage)
	require.Equal(t, "en-US", p.SpeechLanguage)
	require.Empty(t, p.UserID, "the registration marker is never echoed")

	resp = env.do(t, http.MethodPut, "/api/preferences", map[string]string{"speechLanguage": "de-DE"})
	require.Equal(t, "de-DE", decode[prefs.Preferences](t, resp).SpeechLanguage)
}

func TestSessions_DraftSaveNavigatesToList(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	snap := decode[SessionResponse](t, resp)
	require.True(t, snap.Draft)
	require.Equal(t, editor.StateEditing, snap.State)
	base := "/api/sessions/" + snap.ID

	resp = env.as(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code, "empty draft cannot be saved")

	require.Equal(t, http.StatusOK, env.as(t, http.MethodPost, base+"/changes", ChangeRequest{Field: "title", Value: "Ideas"}).Code)
	require.Equal(t, http.StatusOK, env.as(t, http.MethodPost, base+"/changes", ChangeRequest{Field: "content", Value: "<p>one</p>"}).Code)
	require.Len(t, env.store.GetAll(context.Background()), 0, "drafts write nothing before save")

	resp = env.as(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	snap = decode[SessionResponse](t, resp)
	require.Equal(t, "/index", snap.Navigate)
	require.NotEmpty(t, snap.NoteID)

	rec, err := env.store.Get(context.Background(), snap.NoteID)
	require.NoError(t, err)
	require.Equal(t, notes.Record{Title: "Ideas", Content: "<p>one</p>"}, rec)
}

func TestSessions_EditUndoAndGenerate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)
	ctx := context.Background()
	require.NoError(t, env.store.Put(ctx, "7", notes.Record{Title: "Plan", Content: "<p>a</p>"}))

	resp := env.as(t, http.MethodPost, "/api/sessions", OpenSessionRequest{NoteID: "7"})
	require.Equal(t, http.StatusCreated, resp.Code)
	snap := decode[SessionResponse](t, resp)
	base := "/api/sessions/" + snap.ID

	resp = env.as(t, http.MethodPost, base+"/changes", ChangeRequest{Field: "content", Value: "<p>b</p>"})
	require.Equal(t, http.StatusConflict, resp.Code, "edits need edit mode")
	resp = env.as(t, http.MethodPost, base+"/generate", GenerateRequest{Prompt: "more"})
	require.Equal(t, http.StatusConflict, resp.Code)

	require.Equal(t, http.StatusOK, env.as(t, http.MethodPost, base+"/edit", EditRequest{}).Code)
	resp = env.as(t, http.MethodPost, base+"/changes", ChangeRequest{Field: "content", Value: "<p>b</p>"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, decode[SessionResponse](t, resp).CanUndo)

	resp = env.as(t, http.MethodPost, base+"/changes", ChangeRequest{Field: "content", Value: strings.Repeat("x", 3001)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.as(t, http.MethodPost, base+"/undo", nil)
	require.Equal(t, "<p>a</p>", decode[SessionResponse](t, resp).Content)
	resp = env.as(t, http.MethodPost, base+"/redo", nil)
	require.Equal(t, "<p>b</p>", decode[SessionResponse](t, resp).Content)

	resp = env.as(t, http.MethodPost, base+"/dictation", DictationRequest{Transcript: "hello comma world period"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, decode[SessionResponse](t, resp).Content, "hello, world.")

	resp = env.as(t, http.MethodPost, base+"/generate", GenerateRequest{Prompt: "continue"})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	s, err := env.sessions.Get(snap.ID)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitGeneration(waitCtx))

	resp = env.as(t, http.MethodGet, base, nil)
	got := decode[SessionResponse](t, resp)
	require.Equal(t, assist.StateSucceeded, got.Generation.State)
	require.True(t, strings.HasSuffix(got.Content, "\n\nGenerated text"), got.Content)

	stored, err := env.store.Get(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, got.Content, stored.Content, "edits of existing notes are saved immediately")

	resp = env.as(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, "/index", decode[SessionResponse](t, resp).Navigate)
	require.Equal(t, http.StatusNotFound, env.as(t, http.MethodGet, base, nil).Code)
}

func TestSessions_CancelledGenerationIsReported(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Sessions = editor.NewManager(d.Notes, &assist.CannedGenerator{Delay: time.Minute}, editor.Config{
			EditMaxChars:    3000,
			GenerateTimeout: time.Minute,
		})
		t.Cleanup(d.Sessions.Stop)
	})
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/sessions", OpenSessionRequest{NoteID: notes.IntroNoteID})
	require.Equal(t, http.StatusNotFound, resp.Code, "intro is seeded by the list, not by opening")

	env.as(t, http.MethodGet, "/api/notes", nil)
	resp = env.as(t, http.MethodPost, "/api/sessions", OpenSessionRequest{NoteID: notes.IntroNoteID})
	require.Equal(t, http.StatusCreated, resp.Code)
	base := "/api/sessions/" + decode[SessionResponse](t, resp).ID
	env.as(t, http.MethodPost, base+"/edit", EditRequest{})

	resp = env.as(t, http.MethodPost, base+"/generate", GenerateRequest{Prompt: "x"})
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Equal(t, http.StatusConflict, env.as(t, http.MethodPost, base+"/generate", GenerateRequest{Prompt: "y"}).Code)

	resp = env.as(t, http.MethodDelete, base+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[SessionResponse](t, resp)
	require.Equal(t, assist.StateCancelled, got.Generation.State)
	require.Equal(t, "Generation cancelled.", got.GenerationMessage)
	require.Equal(t, http.StatusNoContent, env.as(t, http.MethodDelete, base, nil).Code)
}

func TestImportAndBackup(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/notes/import", `{"1700000000000":{"title":"Old","content":"<p>x</p>"}}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, notes.ImportResult{Imported: 1}, decode[notes.ImportResult](t, resp))

	resp = env.as(t, http.MethodPost, "/api/notes/import", `{"broken":`)
	require.Equal(t, http.StatusOK, resp.Code)
	res := decode[notes.ImportResult](t, resp)
	require.True(t, res.Corrupt)
	require.True(t, strings.HasPrefix(res.BackupKey, "backups/corrupt/"), res.BackupKey)

	resp = env.as(t, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	b := decode[BackupResponse](t, resp)
	require.Equal(t, 1, b.Notes)

	resp = env.as(t, http.MethodGet, "/api/backup", nil)
	require.Contains(t, resp.Body.String(), b.Key)
}

func TestBackup_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Backup = nil })
	env.register(t)
	require.Equal(t, http.StatusConflict, env.as(t, http.MethodPost, "/api/backup", nil).Code)
}

func TestRateLimit_GenerateBudget(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		cfg := ratelimit.DefaultConfig
		cfg.GenerateRPS = 0.001
		cfg.GenerateBurst = 1
		d.Limiter = ratelimit.NewRateLimiter(cfg)
		t.Cleanup(d.Limiter.Stop)
	})
	env.register(t)

	resp := env.as(t, http.MethodPost, "/api/sessions/none/generate", GenerateRequest{Prompt: "x"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	resp = env.as(t, http.MethodPost, "/api/sessions/none/generate", GenerateRequest{Prompt: "x"})
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Equal(t, "1", resp.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, env.as(t, http.MethodGet, "/api/notes", nil).Code, "api budget is separate")
}

func TestHealth_ReportsDegradedStorage(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "ok", decode[HealthResponse](t, resp).Status)

	env.notesDB.Close()

	resp = env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	h := decode[HealthResponse](t, resp)
	require.Equal(t, "degraded", h.Status)
	require.True(t, h.Storage.Degraded)

	resp = env.as(t, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, decode[ListNotesResponse](t, resp).Degraded)
	require.NotEmpty(t, resp.Header().Get(DegradedHeader))
}

func TestMCP_MountedBehindGuard(t *testing.T) {
	called := false
	env := newTestEnv(t, func(d *Deps) {
		d.MCP = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	})
	require.Equal(t, http.StatusForbidden, env.as(t, http.MethodPost, "/mcp", `{}`).Code)
	require.False(t, called)

	env.register(t)
	require.Equal(t, http.StatusOK, env.as(t, http.MethodPost, "/mcp", `{}`).Code)
	require.True(t, called)
}
