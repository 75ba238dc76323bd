package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// NoteToolDefinitions returns the notes MCP tool definitions.
func NoteToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        "note_list",
			Description: "List notes, pinned first. Each entry has id, title, a plain-text preview and isPinned. Pass query to keep only notes whose title or text contains it (case-insensitive). Use note_view to read a note in full.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Optional case-insensitive search text",
					},
				},
			},
		},
		{
			Name:        "note_view",
			Description: "Read a note's content with line numbers (tab-separated, 1-indexed). Content is rich-text HTML. Optionally pass line_range as [start, end] (1-indexed, inclusive; end=-1 means end of note). The response includes total_lines and revision_hash, which note_update requires as prior_hash.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note",
					},
					"line_range": map[string]any{
						"type":        "array",
						"description": "Optional [start, end] line range (1-indexed, inclusive). end=-1 means end of note.",
						"items":       map[string]any{"type": "integer"},
						"minItems":    2,
						"maxItems":    2,
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "note_create",
			Description: "Create a note. Title and content must both be non-empty; content is HTML such as <p>text</p>. Returns the assigned id and revision_hash.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The note title",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The note body as HTML",
					},
				},
				"required": []string{"title", "content"},
			},
		},
		{
			Name:        "note_update",
			Description: "Replace a note's title and/or content. prior_hash is required: call note_view first and pass its revision_hash. If the note changed since, the update fails with a revision conflict. Content of existing notes is capped; the limit is reported in the error.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note",
					},
					"prior_hash": map[string]any{
						"type":        "string",
						"description": "revision_hash from the latest note_view",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "New title (optional)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "New HTML content (optional)",
					},
				},
				"required": []string{"id", "prior_hash"},
			},
		},
		{
			Name:        "note_delete",
			Description: "Delete a note permanently.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note to delete",
					},
				},
				"required": []string{"id"},
			},
		},
	}
}
