package mcp

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func testFormatMCPHeadersForLog_RedactsSensitiveHeaders(t *rapid.T) {
	token := rapid.StringMatching(`[A-Za-z0-9._=-]{10,40}`).Draw(t, "token")

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Cookie", "session="+token)
	headers.Set("X-User-Id", "12345")
	headers.Set("Content-Type", "application/json")

	formatted := formatMCPHeadersForLog(headers)
	lower := strings.ToLower(formatted)
	if strings.Contains(formatted, token) {
		t.Fatalf("sensitive token leaked in header log: %q", formatted)
	}
	for _, key := range []string{"authorization", "cookie", "x-user-id", "content-type"} {
		if !strings.Contains(lower, key) {
			t.Fatalf("expected key %q in formatted headers: %q", key, formatted)
		}
	}
	if !strings.Contains(formatted, "[REDACTED]") {
		t.Fatalf("expected redaction marker in header log: %q", formatted)
	}
}

func TestFormatMCPHeadersForLog_RedactsSensitiveHeaders(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testFormatMCPHeadersForLog_RedactsSensitiveHeaders)
}

func testIsASCII_RejectsControlsAndWhitespaceOnly(t *rapid.T) {
	printable := rapid.StringMatching(`[A-Za-z0-9._:-]{1,64}`).Draw(t, "printable")
	if !isASCII(printable) {
		t.Fatalf("expected printable ASCII to pass, got %q", printable)
	}

	bad := rapid.SampledFrom([]string{
		"",
		"   ",
		"abc\tdef",
		"abc\n",
		"ümlaut",
	}).Draw(t, "bad")
	if isASCII(bad) {
		t.Fatalf("expected non-ASCII/control value to fail, got %q", bad)
	}
}

func TestIsASCII_RejectsControlsAndWhitespaceOnly(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testIsASCII_RejectsControlsAndWhitespaceOnly)
}

func newDelegateServer(t *testing.T, h http.HandlerFunc) *Server {
	t.Helper()
	return &Server{httpHandler: h}
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestServeHTTP_RequestBodyTooLargeReturns413(t *testing.T) {
	t.Parallel()
	server := newDelegateServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("delegate should not be called when request is oversized")
	})

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, postJSON(strings.Repeat("a", maxMCPBodyBytes+1)))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized request, got %d", resp.Code)
	}
}

func TestServeHTTP_GETReturns405WithAllowHeader(t *testing.T) {
	t.Parallel()
	server := newDelegateServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("delegate should not be called for GET")
	})

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d body=%q", resp.Code, resp.Body.String())
	}
	allow := resp.Header().Get("Allow")
	if !strings.Contains(allow, "POST") || !strings.Contains(allow, "DELETE") {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
}

func TestServeHTTP_RejectsControlCharsInSessionID(t *testing.T) {
	t.Parallel()
	server := newDelegateServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("delegate should not be called for a bad session id")
	})
	req := postJSON(`{}`)
	req.Header["Mcp-Session-Id"] = []string{"abc\x01"}
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestServeHTTP_RecoversPanicWith500(t *testing.T) {
	t.Parallel()
	server := newDelegateServer(t, func(http.ResponseWriter, *http.Request) {
		panic("simulated panic")
	})

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, postJSON(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%q", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "Internal server error") {
		t.Fatalf("expected internal error body, got %q", resp.Body.String())
	}
}

func TestServeHTTP_NoWriteFromDelegateReturns500(t *testing.T) {
	t.Parallel()
	server := newDelegateServer(t, func(http.ResponseWriter, *http.Request) {})

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, postJSON(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%q", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "MCP handler returned without writing response") {
		t.Fatalf("expected no-response fallback body, got %q", resp.Body.String())
	}
}

func TestServeHTTP_DelegatesBodyIntact(t *testing.T) {
	t.Parallel()
	const body = `{"jsonrpc":"2.0","method":"tools/list","id":1}`
	server := newDelegateServer(t, func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(r.Body); err != nil {
			t.Errorf("read body: %v", err)
		}
		if buf.String() != body {
			t.Errorf("delegate body = %q", buf.String())
		}
		w.WriteHeader(http.StatusAccepted)
	})
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, postJSON(body))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestServeHTTP_ListsToolsOverHTTP(t *testing.T) {
	svc, _ := newTestNotes(t)
	server := NewServer(svc, "test")

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, postJSON(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d body=%q", resp.Code, resp.Body.String())
	}
	for _, name := range []string{"note_list", "note_view", "note_create", "note_update", "note_delete"} {
		if !strings.Contains(resp.Body.String(), name) {
			t.Fatalf("tool %s missing from %s", name, resp.Body.String())
		}
	}
}
