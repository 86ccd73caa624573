// Package mcp exposes one account's notes as Model Context Protocol tools
// over stdio, so an agent can save and look up notes while it works.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"gptme-server/internal/domain"
	"gptme-server/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverInstructions = `GPTme stores short notes tagged by category. Use these tools to save ` +
	`a note for later, search or list saved notes, and delete notes that are ` +
	`no longer useful. Key tools: save_note, search_notes, list_notes.`

// NewServer registers the note tools for userID on a new MCP server.
func NewServer(notes *service.NoteService, userID, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"gptme",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	srv.AddTool(
		mcp.NewTool("save_note",
			mcp.WithDescription("Save a short note. Returns the saved note with its position in the list."),
			mcp.WithTitleAnnotation("Save Note"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Note text"),
			),
			mcp.WithString("category",
				mcp.Description("Category tag (default: Uncategorized, max 50 characters)"),
			),
		),
		handleSave(notes, userID),
	)

	srv.AddTool(
		mcp.NewTool("search_notes",
			mcp.WithDescription("Search saved notes by text and, optionally, an exact category."),
			mcp.WithTitleAnnotation("Search Notes"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("query",
				mcp.Description("Case-insensitive text matched against content and category"),
			),
			mcp.WithString("category",
				mcp.Description("Only return notes in this category"),
			),
		),
		handleSearch(notes, userID),
	)

	srv.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List every saved note in display order."),
			mcp.WithTitleAnnotation("List Notes"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handleList(notes, userID),
	)

	srv.AddTool(
		mcp.NewTool("delete_note",
			mcp.WithDescription("Delete a note by ID."),
			mcp.WithTitleAnnotation("Delete Note"),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Note ID as shown by list_notes or search_notes"),
			),
		),
		handleDelete(notes, userID),
	)

	return srv
}

func handleSave(notes *service.NoteService, userID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, _ := req.GetArguments()["content"].(string)
		category, _ := req.GetArguments()["category"].(string)

		if strings.TrimSpace(content) == "" {
			return mcp.NewToolResultError("content is required"), nil
		}
		if len(category) > 50 {
			return mcp.NewToolResultError("category must be at most 50 characters"), nil
		}

		list, err := notes.Add(ctx, userID, &domain.SaveNoteRequest{Note: content, Category: category})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to save note: %s", err)), nil
		}

		saved := list[len(list)-1]
		return mcp.NewToolResultText(fmt.Sprintf("Saved note %s in %q (position %d of %d)",
			saved.ID, saved.Category, saved.Order+1, len(list))), nil
	}
}

func handleSearch(notes *service.NoteService, userID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, _ := req.GetArguments()["query"].(string)
		category, _ := req.GetArguments()["category"].(string)

		found, err := notes.Search(ctx, userID, query, category)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Search error: %s", err)), nil
		}
		if len(found) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No notes found for: %q", query)), nil
		}

		return mcp.NewToolResultText(formatNotes(found)), nil
	}
}

func handleList(notes *service.NoteService, userID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		all, err := notes.List(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list notes: %s", err)), nil
		}
		if len(all) == 0 {
			return mcp.NewToolResultText("No notes saved yet."), nil
		}

		return mcp.NewToolResultText(formatNotes(all)), nil
	}
}

func handleDelete(notes *service.NoteService, userID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, _ := req.GetArguments()["id"].(string)
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		if err := notes.Delete(ctx, userID, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete note %s: %s", id, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted note %s", id)), nil
	}
}

func formatNotes(notes []*domain.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes:\n\n", len(notes))
	for i, n := range notes {
		essay := ""
		if n.IsEssay {
			essay = " | essay"
		}
		fmt.Fprintf(&b, "[%d] %s (%s%s)\n    %s\n\n", i+1, n.ID, n.Category, essay, truncate(n.Content, 300))
	}
	return b.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
