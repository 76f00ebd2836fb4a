package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	uriAllNotes    = "tsuzuri://notes/all"
	uriNotesPrefix = "tsuzuri://notes/"
)

func (s *Server) registerResources() {
	// tsuzuri://notes/all: the full listing in listing order.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriAllNotes,
			"All Notes",
			mcplib.WithResourceDescription("Every note, pinned first, then newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAllNotes,
	)

	// tsuzuri://notes/{id}: one note.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			uriNotesPrefix+"{id}",
			"Note",
			mcplib.WithTemplateDescription("A single note by id"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleNoteResource,
	)
}

func (s *Server) handleAllNotes(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	list, err := s.store.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: all notes: %w", err)
	}
	return jsonResource(uriAllNotes, list)
}

func (s *Server) handleNoteResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseNoteURI(uri)
	if err != nil {
		return nil, err
	}
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: note %d: %w", id, err)
	}
	return jsonResource(uri, n)
}

// parseNoteURI extracts the id from tsuzuri://notes/{id}.
func parseNoteURI(uri string) (int64, error) {
	raw, ok := strings.CutPrefix(uri, uriNotesPrefix)
	if !ok || raw == "" {
		return 0, fmt.Errorf("mcp: invalid note URI: %s", uri)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("mcp: invalid note id in URI: %s", uri)
	}
	return id, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
