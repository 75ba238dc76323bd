package mcp

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/notelytic/internal/logutil"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

const (
	maxMCPBodyBytes           = 1 << 20
	mcpDebugBodyLogLimitBytes = 8 * 1024
	mcpAllowedMethods         = "POST, DELETE, OPTIONS"
)

// Server wraps the MCP server exposing the note tools over Streamable HTTP.
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
}

// NewServer creates the MCP server over notesSvc.
func NewServer(notesSvc *notes.Service, version string) *Server {
	handler := NewHandler(notesSvc)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "notelytic",
			Version: version,
		},
		nil,
	)
	for _, tool := range NoteToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	httpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	return &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func formatMCPHeadersForLog(headers http.Header) string {
	return logutil.FormatHeadersForLog(headers)
}

// isASCII reports whether v is non-blank printable ASCII without control
// characters.
func isASCII(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7e {
			return false
		}
	}
	return true
}

// ServeHTTP implements http.Handler for the Streamable HTTP transport. The
// endpoint is stateless, so GET streams are not offered.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := obs.From(r.Context()).With("pkg", "mcp")

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, X-User-Id")
	w.Header().Set("Access-Control-Allow-Methods", mcpAllowedMethods)

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", mcpAllowedMethods)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sid := r.Header.Get("Mcp-Session-Id"); sid != "" && !isASCII(sid) {
		http.Error(w, "Invalid Mcp-Session-Id header", http.StatusBadRequest)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				log.Warn("mcp_request_too_large", "limit_bytes", maxMCPBodyBytes)
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			log.Error("mcp_request_read_failed", "error", err)
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		reqBody = body
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	log.Debug("mcp_request",
		"method", r.Method,
		"path", r.URL.Path,
		"headers", formatMCPHeadersForLog(r.Header),
		"body", logutil.RedactBodyForLog(r.Header.Get("Content-Type"), truncateBody(reqBody), 200),
	)

	wrapped, recorder := obs.NewResponseRecorder(w)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("mcp_handler_panic", "panic", rec, "method", r.Method)
			if !recorder.WroteHeader() {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}
	}()

	s.httpHandler.ServeHTTP(wrapped, r)

	if !recorder.WroteHeader() {
		log.Error("mcp_handler_no_response", "method", r.Method)
		http.Error(w, "MCP handler returned without writing response", http.StatusInternalServerError)
		return
	}
	if recorder.StatusCode() >= http.StatusBadRequest {
		log.Warn("mcp_request_failed", "method", r.Method, "status", recorder.StatusCode())
	}
}

func truncateBody(b []byte) []byte {
	if len(b) > mcpDebugBodyLogLimitBytes {
		return b[:mcpDebugBodyLogLimitBytes]
	}
	return b
}
