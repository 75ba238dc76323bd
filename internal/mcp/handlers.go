package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/notelytic/internal/errs"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

// Handler implements MCP tool call handling.
type Handler struct {
	notesSvc *notes.Service
}

// NewHandler creates a new MCP handler over the notes service. A nil service
// keeps the tools listed but makes every call fail with failed_precondition.
func NewHandler(notesSvc *notes.Service) *Handler {
	return &Handler{notesSvc: notesSvc}
}

type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type noteViewResult struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	TotalLines   int       `json:"total_lines"`
	LineRange    []int     `json:"line_range,omitempty"`
	IsPinned     bool      `json:"is_pinned"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	RevisionHash string    `json:"revision_hash"`
}

type noteWriteResult struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	TotalLines   int    `json:"total_lines"`
	RevisionHash string `json:"revision_hash"`
}

// createToolHandler returns a tool handler function for the given tool name.
// Failures are reported as IsError results so the client sees a coded payload.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		if err != nil {
			code := errs.CodeOf(err)
			log := obs.From(ctx).With("pkg", "mcp")
			if code == errs.Internal {
				log.Error("mcp_tool_failed", "tool", name, "error", err)
			} else {
				log.Info("mcp_tool_rejected", "tool", name, "code", string(code), "error", err)
			}
			return newToolResultError(err), nil, nil
		}
		return result, nil, nil
	}
}

// HandleToolCall routes tool calls to their handlers. Errors carry an errs code.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case "note_list":
		return h.handleNoteList(ctx, arguments)
	case "note_view":
		return h.handleNoteView(ctx, arguments)
	case "note_create":
		return h.handleNoteCreate(ctx, arguments)
	case "note_update":
		return h.handleNoteUpdate(ctx, arguments)
	case "note_delete":
		return h.handleNoteDelete(ctx, arguments)
	default:
		return nil, errs.New(errs.NotFound, fmt.Sprintf("unknown tool: %s", name))
	}
}

func (h *Handler) requireNotes() (*notes.Service, error) {
	if h == nil || h.notesSvc == nil {
		return nil, errs.New(errs.FailedPrecondition, "notes tools are unavailable on this MCP endpoint")
	}
	return h.notesSvc, nil
}

// decodeToolArgs strictly decodes tool arguments into dst. Unknown fields are
// rejected.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments are not valid JSON", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

// classifyNotesError maps notes sentinels to coded errors. Coded errors pass
// through; everything else is internal.
func classifyNotesError(err error, action string) error {
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, notes.ErrNotFound):
		return errs.Wrap(errs.NotFound, "note not found", err)
	case errors.Is(err, notes.ErrInvalidID),
		errors.Is(err, notes.ErrEmptyNote),
		errors.Is(err, notes.ErrPriorHashRequired):
		return errs.Wrap(errs.InvalidArgument, err.Error(), err)
	case errors.Is(err, notes.ErrRevisionConflict),
		errors.Is(err, notes.ErrContentTooLong):
		return errs.Wrap(errs.FailedPrecondition, err.Error(), err)
	default:
		return errs.Wrap(errs.Internal, fmt.Sprintf("failed to %s", action), err)
	}
}

func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError renders err as a {"code","message"} JSON payload.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{
		Code:    string(errs.CodeOf(err)),
		Message: errs.MessageOf(err),
	}
	text := string(marshalAny(payload))
	if text == "" {
		text = `{"code":"internal","message":"internal error"}`
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// marshalAny returns indented JSON, or nil when value cannot be marshaled.
func marshalAny(value any) []byte {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return data
}

func marshalToolJSON(value any) (*mcp.CallToolResult, error) {
	data := marshalAny(value)
	if data == nil {
		return nil, errs.New(errs.Internal, "failed to marshal response")
	}
	return newToolResultText(string(data)), nil
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	items := svc.List(ctx, in.Query)
	return marshalToolJSON(map[string]any{
		"notes":    items,
		"count":    len(items),
		"degraded": svc.Health().Degraded,
	})
}

func (h *Handler) handleNoteView(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID        string `json:"id"`
		LineRange []int  `json:"line_range"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.LineRange != nil && len(in.LineRange) != 2 {
		return nil, errs.New(errs.InvalidArgument, "line_range must be [start, end]")
	}

	note, err := svc.Get(ctx, in.ID)
	if err != nil {
		return nil, classifyNotesError(err, "read note")
	}

	start, end := 0, -1
	if len(in.LineRange) == 2 {
		start, end = in.LineRange[0], in.LineRange[1]
	}
	formatted, total := notes.FormatWithLineNumbers(note.Content, start, end)
	result := noteViewResult{
		ID:           note.ID,
		Title:        note.Title,
		Content:      formatted,
		TotalLines:   total,
		IsPinned:     note.IsPinned,
		CreatedAt:    note.CreatedAt,
		UpdatedAt:    note.UpdatedAt,
		RevisionHash: note.Revision,
	}
	if len(in.LineRange) == 2 {
		result.LineRange = in.LineRange
	}
	return marshalToolJSON(result)
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	rec := notes.Record{Title: in.Title, Content: in.Content}
	id, err := svc.Create(ctx, rec)
	if err != nil {
		return nil, classifyNotesError(err, "create note")
	}
	return marshalToolJSON(noteWriteResult{
		ID:           id,
		Title:        rec.Title,
		TotalLines:   notes.CountLines(rec.Content),
		RevisionHash: notes.RevisionHash(rec.Title, rec.Content),
	})
}

func (h *Handler) handleNoteUpdate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID        string  `json:"id"`
		PriorHash string  `json:"prior_hash"`
		Title     *string `json:"title"`
		Content   *string `json:"content"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	note, err := svc.Update(ctx, in.ID, in.PriorHash, in.Title, in.Content)
	if err != nil {
		return nil, classifyNotesError(err, "update note")
	}
	return marshalToolJSON(noteWriteResult{
		ID:           note.ID,
		Title:        note.Title,
		TotalLines:   notes.CountLines(note.Content),
		RevisionHash: note.Revision,
	})
}

func (h *Handler) handleNoteDelete(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	if err := svc.Delete(ctx, in.ID); err != nil {
		return nil, classifyNotesError(err, "delete note")
	}
	return marshalToolJSON(map[string]any{"id": in.ID, "deleted": true})
}
