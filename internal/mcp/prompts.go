package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// write-note: walks the agent through a moderated write.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("write-note",
			mcplib.WithPromptDescription("Draft and save a note, checking moderation first"),
			mcplib.WithArgument("topic",
				mcplib.ArgumentDescription("What the note is about"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleWriteNotePrompt,
	)

	// notes-setup: system prompt snippet describing the tools.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("notes-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the Tsuzuri notes tools"),
		),
		s.handleSetupPrompt,
	)
}

func (s *Server) handleWriteNotePrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	topic := request.Params.Arguments["topic"]
	if topic == "" {
		return nil, fmt.Errorf("topic argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Write a note about %s", topic),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write a note about %s.

1. CALL notes_search with a short keyword from the topic. If a note with a
   matching title exists, prefer notes_edit on it over creating a duplicate.

2. DRAFT a short, specific title and the content.

3. CALL moderation_check with the draft. If flagged is true, rephrase and
   check again. Flagged text is never saved.

4. SAVE with notes_add (or notes_edit). Confirm committed is true in the
   result before reporting success.`, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleSetupPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Tsuzuri notes tools for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to Tsuzuri, a personal note store shared with the user's
other clients. Changes you make appear on their screens immediately.

## Available Tools

- notes_list: every note, pinned first, then newest first
- notes_search: notes whose title contains a query (case-insensitive)
- notes_get: one note with its full content
- notes_add: create a note (moderated)
- notes_edit: replace a note's title and content (moderated)
- notes_pin: toggle a note's pin
- notes_delete: delete a note
- moderation_check: test a draft against the moderation classifier

## Moderation

Every add and edit is checked first. Flagged text is dropped without an
error: the result says committed=false. Always check committed before
telling the user a note was saved.`,
				},
			},
		},
	}, nil
}
