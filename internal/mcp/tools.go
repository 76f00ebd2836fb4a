package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/tsuzuri/internal/ctxutil"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

func (s *Server) registerTools() {
	// notes_list: every note, pinned first.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_list",
			mcplib.WithDescription(`List every note, pinned notes first, then newest first.

Content is shortened to a preview; set full=true for complete bodies, or
read a single note with notes_get.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithBoolean("full",
				mcplib.Description("Return complete note content instead of previews"),
			),
		),
		s.handleList,
	)

	// notes_search: title substring search.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_search",
			mcplib.WithDescription(`Find notes whose TITLE contains the query, ignoring case.

Content is not searched. An empty query returns every note, like notes_list.
Results keep the listing order: pinned first, then newest first.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Substring to look for in note titles"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("full",
				mcplib.Description("Return complete note content instead of previews"),
			),
		),
		s.handleSearch,
	)

	// notes_get: one note by id.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_get",
			mcplib.WithDescription("Fetch one note by id with its complete content."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("id", mcplib.Description("Note id"), mcplib.Required(), mcplib.Min(1)),
		),
		s.handleGet,
	)

	// notes_add: moderated create.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_add",
			mcplib.WithDescription(`Create a note. The note starts unpinned and is stamped with the current time.

The title and content are checked by the moderation classifier first. If the
text is flagged the note is NOT saved: the result has committed=false and the
verdict explains why. Rephrase and try again, or call moderation_check first.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("title", mcplib.Description("Note title; must not be blank"), mcplib.Required()),
			mcplib.WithString("content", mcplib.Description("Note body")),
		),
		s.handleAdd,
	)

	// notes_edit: moderated update of title and content.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_edit",
			mcplib.WithDescription(`Replace the title and content of an existing note. Pin state and creation
time are kept. Moderated like notes_add: a flagged edit leaves the note unchanged.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithNumber("id", mcplib.Description("Note id"), mcplib.Required(), mcplib.Min(1)),
			mcplib.WithString("title", mcplib.Description("New title; must not be blank"), mcplib.Required()),
			mcplib.WithString("content", mcplib.Description("New body")),
		),
		s.handleEdit,
	)

	// notes_pin: toggle pin.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_pin",
			mcplib.WithDescription("Toggle the pin state of a note. Pinned notes list before unpinned ones."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("id", mcplib.Description("Note id"), mcplib.Required(), mcplib.Min(1)),
		),
		s.handlePin,
	)

	// notes_delete: idempotent delete.
	s.mcpServer.AddTool(
		mcplib.NewTool("notes_delete",
			mcplib.WithDescription("Delete a note. Deleting a note that does not exist succeeds and changes nothing."),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("id", mcplib.Description("Note id"), mcplib.Required(), mcplib.Min(1)),
		),
		s.handleDelete,
	)

	// moderation_check: dry-run the gate.
	s.mcpServer.AddTool(
		mcplib.NewTool("moderation_check",
			mcplib.WithDescription(`Run the moderation classifier on a draft without saving anything.

flagged=true means notes_add or notes_edit would refuse this text.
degraded=true means the classifier could not be reached; writes are allowed
in that case.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("title", mcplib.Description("Draft title")),
			mcplib.WithString("content", mcplib.Description("Draft body")),
		),
		s.handleModerationCheck,
	)
}

func (s *Server) handleList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	list, err := s.store.ListNotes(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(listResult(list, "", request.GetBool("full", false))), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	list, err := s.store.SearchNotes(ctx, query)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(listResult(list, query, request.GetBool("full", false))), nil
}

func (s *Server) handleGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errRes := noteID(request)
	if errRes != nil {
		return errRes, nil
	}
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return lookupError(id, err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) handleAdd(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	title := request.GetString("title", "")
	content := request.GetString("content", "")
	if err := model.ValidateNoteInput(title, content); err != nil {
		return errorResult(err.Error()), nil
	}

	res, err := s.session.AddNote(ctx, title, content)
	if err != nil {
		return errorResult(fmt.Sprintf("add failed: %v", err)), nil
	}
	s.logWrite(ctx, "notes_add", res.Note.ID, res.Committed)
	return jsonResult(writeResult(res.Committed, res.Note, res.Verdict)), nil
}

func (s *Server) handleEdit(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errRes := noteID(request)
	if errRes != nil {
		return errRes, nil
	}
	title := request.GetString("title", "")
	content := request.GetString("content", "")
	if err := model.ValidateNoteInput(title, content); err != nil {
		return errorResult(err.Error()), nil
	}

	existing, err := s.store.GetNote(ctx, id)
	if err != nil {
		return lookupError(id, err), nil
	}
	res, err := s.session.EditNote(ctx, existing, title, content)
	if err != nil {
		return errorResult(fmt.Sprintf("edit failed: %v", err)), nil
	}
	s.logWrite(ctx, "notes_edit", id, res.Committed)
	return jsonResult(writeResult(res.Committed, res.Note, res.Verdict)), nil
}

func (s *Server) handlePin(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errRes := noteID(request)
	if errRes != nil {
		return errRes, nil
	}
	existing, err := s.store.GetNote(ctx, id)
	if err != nil {
		return lookupError(id, err), nil
	}
	n, err := s.session.TogglePin(ctx, existing)
	if err != nil {
		return errorResult(fmt.Sprintf("pin failed: %v", err)), nil
	}
	return jsonResult(n), nil
}

func (s *Server) handleDelete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errRes := noteID(request)
	if errRes != nil {
		return errRes, nil
	}
	if err := s.session.DeleteNote(ctx, model.Note{ID: id}); err != nil {
		return errorResult(fmt.Sprintf("delete failed: %v", err)), nil
	}
	s.logWrite(ctx, "notes_delete", id, true)
	return jsonResult(map[string]any{"id": id, "status": "deleted"}), nil
}

func (s *Server) handleModerationCheck(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	title := request.GetString("title", "")
	content := request.GetString("content", "")
	if title == "" && content == "" {
		return errorResult("title or content is required"), nil
	}
	if len(title) > model.MaxTitleLen || len(content) > model.MaxContentLen {
		return errorResult("draft exceeds maximum length"), nil
	}
	return jsonResult(s.gate.Check(ctx, model.ModerationText(title, content))), nil
}

// logWrite records who changed what through MCP. The client label is empty
// when auth is disabled.
func (s *Server) logWrite(ctx context.Context, tool string, id int64, committed bool) {
	s.logger.Info("mcp: write",
		"tool", tool,
		"note_id", id,
		"committed", committed,
		"client", ctxutil.Client(ctx),
	)
}

func listResult(list []model.Note, query string, full bool) map[string]any {
	out := map[string]any{
		"summary": listSummary(list, query),
		"total":   len(list),
	}
	if full {
		out["notes"] = list
	} else {
		out["notes"] = compactNotes(list)
	}
	return out
}

func writeResult(committed bool, n model.Note, v model.Verdict) map[string]any {
	out := map[string]any{
		"committed": committed,
		"verdict":   v,
	}
	if committed {
		out["note"] = n
	}
	return out
}

// noteID reads the required id argument. MCP numbers arrive as float64.
func noteID(request mcplib.CallToolRequest) (int64, *mcplib.CallToolResult) {
	f := request.GetFloat("id", 0)
	id := int64(f)
	if id <= 0 || float64(id) != f {
		return 0, errorResult("id must be a positive integer")
	}
	return id, nil
}

func lookupError(id int64, err error) *mcplib.CallToolResult {
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult(fmt.Sprintf("note %d not found", id))
	}
	return errorResult(fmt.Sprintf("lookup failed: %v", err))
}
