package mcp

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/tsuzuri/internal/model"
)

// maxCompactContent bounds note content in list and search results. Agents
// read the full body through notes_get or the tsuzuri://notes/{id} resource.
const maxCompactContent = 200

// compactNote returns a minimal representation of a note for MCP responses.
func compactNote(n model.Note) map[string]any {
	m := map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"is_pinned": n.IsPinned,
		"timestamp": n.Timestamp,
	}
	if n.Content != "" {
		content := truncate(n.Content, maxCompactContent)
		m["content"] = content
		if content != n.Content {
			m["content_truncated"] = true
		}
	}
	return m
}

func compactNotes(notes []model.Note) []map[string]any {
	out := make([]map[string]any, len(notes))
	for i, n := range notes {
		out[i] = compactNote(n)
	}
	return out
}

// listSummary is a one-line description of a listing for agents.
func listSummary(notes []model.Note, query string) string {
	pinned := 0
	for _, n := range notes {
		if n.IsPinned {
			pinned++
		}
	}
	var b strings.Builder
	switch len(notes) {
	case 0:
		b.WriteString("No notes")
	case 1:
		b.WriteString("1 note")
	default:
		fmt.Fprintf(&b, "%d notes", len(notes))
	}
	if query != "" {
		fmt.Fprintf(&b, " with %q in the title", query)
	}
	if pinned > 0 {
		fmt.Fprintf(&b, " (%d pinned)", pinned)
	}
	b.WriteString(".")
	return b.String()
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
