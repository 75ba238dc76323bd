package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const notesWorkflowPromptName = "notes_workflow"

const notesWorkflowText = "Notes are short rich-text documents stored as HTML. Use note_list to find a note (pass query to search), note_view to read it and get its revision_hash, then note_update with that hash as prior_hash to change it. Create notes with note_create; both title and content are required. Edits to existing notes are capped in length, so keep updates concise."

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler)
	}
}

// PromptDefinitions returns the MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        notesWorkflowPromptName,
			Title:       "Notes workflow",
			Description: "How to read and safely update notes.",
		},
	}
}

func promptHandler(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "How to read and safely update notes.",
		Messages: []*mcp.PromptMessage{
			{
				Role:    mcp.Role("user"),
				Content: &mcp.TextContent{Text: notesWorkflowText},
			},
		},
	}, nil
}
