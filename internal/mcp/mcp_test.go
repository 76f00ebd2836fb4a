package mcp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/storage"
	"github.com/ashita-ai/tsuzuri/internal/testutil"
)

// wordGate flags text containing "abusive".
type wordGate struct{}

func (wordGate) Check(_ context.Context, text string) model.Verdict {
	if strings.Contains(text, "abusive") {
		return model.Flagged("")
	}
	return model.Clean()
}

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	logger := testutil.TestLogger()
	store, err := storage.OpenSQLite(context.Background(), storage.MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	s := New(store, wordGate{}, logger, "test")
	t.Cleanup(s.Close)
	return s, store
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func call(t *testing.T, h func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error), name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), toolRequest(name, args))
	require.NoError(t, err, "handlers report failures as tool errors")
	return result
}

func callJSON[T any](t *testing.T, h func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error), name string, args map[string]any) T {
	t.Helper()
	result := call(t, h, name, args)
	require.False(t, result.IsError, parseToolText(t, result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &v))
	return v
}

type writeResp struct {
	Committed bool          `json:"committed"`
	Note      *model.Note   `json:"note"`
	Verdict   model.Verdict `json:"verdict"`
}

type listResp struct {
	Summary string           `json:"summary"`
	Total   int              `json:"total"`
	Notes   []map[string]any `json:"notes"`
}

func mustAdd(t *testing.T, s *Server, title, content string) model.Note {
	t.Helper()
	res := callJSON[writeResp](t, s.handleAdd, "notes_add", map[string]any{"title": title, "content": content})
	require.True(t, res.Committed)
	require.NotNil(t, res.Note)
	return *res.Note
}

func TestNotesAdd(t *testing.T) {
	s, store := newTestServer(t)

	n := mustAdd(t, s, "Groceries", "milk, eggs")
	assert.Positive(t, n.ID)
	assert.False(t, n.IsPinned)
	assert.WithinDuration(t, time.Now(), n.Timestamp, 5*time.Second)

	got, err := store.GetNote(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "milk, eggs", got.Content)
}

func TestNotesAddFlagged(t *testing.T) {
	s, store := newTestServer(t)

	res := callJSON[writeResp](t, s.handleAdd, "notes_add", map[string]any{"title": "rant", "content": "abusive"})
	assert.False(t, res.Committed)
	assert.Nil(t, res.Note)
	assert.True(t, res.Verdict.Flagged)

	list, err := store.ListNotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotesAddValidation(t *testing.T) {
	s, _ := newTestServer(t)

	result := call(t, s.handleAdd, "notes_add", map[string]any{"title": "  ", "content": "x"})
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "title is required")
}

func TestNotesListAndSearch(t *testing.T) {
	s, _ := newTestServer(t)
	mustAdd(t, s, "Buy milk", strings.Repeat("long ", 100))
	mustAdd(t, s, "Call mom", "")

	all := callJSON[listResp](t, s.handleList, "notes_list", nil)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, "2 notes.", all.Summary)
	require.Len(t, all.Notes, 2)
	assert.Equal(t, "Call mom", all.Notes[0]["title"])
	assert.Equal(t, true, all.Notes[1]["content_truncated"])

	full := callJSON[listResp](t, s.handleList, "notes_list", map[string]any{"full": true})
	_, truncated := full.Notes[1]["content_truncated"]
	assert.False(t, truncated)

	found := callJSON[listResp](t, s.handleSearch, "notes_search", map[string]any{"query": "MILK"})
	assert.Equal(t, 1, found.Total)
	assert.Equal(t, "Buy milk", found.Notes[0]["title"])
	assert.Equal(t, `1 note with "MILK" in the title.`, found.Summary)

	none := callJSON[listResp](t, s.handleSearch, "notes_search", map[string]any{"query": "long"})
	assert.Zero(t, none.Total, "content is not searched")
	assert.NotNil(t, none.Notes)
}

func TestNotesEdit(t *testing.T) {
	s, _ := newTestServer(t)
	n := mustAdd(t, s, "draft", "v1")

	res := callJSON[writeResp](t, s.handleEdit, "notes_edit", map[string]any{"id": float64(n.ID), "title": "final", "content": "v2"})
	require.True(t, res.Committed)
	assert.Equal(t, "final", res.Note.Title)
	assert.True(t, n.Timestamp.Equal(res.Note.Timestamp))

	res = callJSON[writeResp](t, s.handleEdit, "notes_edit", map[string]any{"id": float64(n.ID), "title": "final", "content": "abusive"})
	assert.False(t, res.Committed)

	got := callJSON[model.Note](t, s.handleGet, "notes_get", map[string]any{"id": float64(n.ID)})
	assert.Equal(t, "v2", got.Content)
}

func TestNotesPinAndDelete(t *testing.T) {
	s, store := newTestServer(t)
	n := mustAdd(t, s, "pin me", "")

	pinned := callJSON[model.Note](t, s.handlePin, "notes_pin", map[string]any{"id": float64(n.ID)})
	assert.True(t, pinned.IsPinned)
	unpinned := callJSON[model.Note](t, s.handlePin, "notes_pin", map[string]any{"id": float64(n.ID)})
	assert.False(t, unpinned.IsPinned)

	for range 2 {
		res := callJSON[map[string]any](t, s.handleDelete, "notes_delete", map[string]any{"id": float64(n.ID)})
		assert.Equal(t, "deleted", res["status"])
	}
	_, err := store.GetNote(context.Background(), n.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNoteIDErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing", map[string]any{}, "positive integer"},
		{"negative", map[string]any{"id": -1.0}, "positive integer"},
		{"fractional", map[string]any{"id": 1.5}, "positive integer"},
		{"absent note", map[string]any{"id": 999.0}, "note 999 not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, s.handlePin, "notes_pin", tt.args)
			require.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), tt.want)
		})
	}
}

func TestModerationCheck(t *testing.T) {
	s, store := newTestServer(t)

	v := callJSON[model.Verdict](t, s.handleModerationCheck, "moderation_check", map[string]any{"content": "abusive"})
	assert.True(t, v.Flagged)

	v = callJSON[model.Verdict](t, s.handleModerationCheck, "moderation_check", map[string]any{"title": "hello"})
	assert.False(t, v.Flagged)

	result := call(t, s.handleModerationCheck, "moderation_check", nil)
	assert.True(t, result.IsError)

	list, err := store.ListNotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "checks never write")
}

func TestResources(t *testing.T) {
	s, _ := newTestServer(t)
	n := mustAdd(t, s, "one", "body")

	contents, err := s.handleAllNotes(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcplib.TextResourceContents)
	assert.Equal(t, uriAllNotes, text.URI)
	var list []model.Note
	require.NoError(t, json.Unmarshal([]byte(text.Text), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "body", list[0].Content)

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "tsuzuri://notes/" + strconv.FormatInt(n.ID, 10)
	contents, err = s.handleNoteResource(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcplib.TextResourceContents).Text, `"title": "one"`)
}

func TestParseNoteURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    int64
		wantErr bool
	}{
		{"tsuzuri://notes/42", 42, false},
		{"tsuzuri://notes/", 0, true},
		{"tsuzuri://notes/abc", 0, true},
		{"tsuzuri://notes/0", 0, true},
		{"other://notes/1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := parseNoteURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompts(t *testing.T) {
	s, _ := newTestServer(t)

	req := mcplib.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"topic": "travel"}
	res, err := s.handleWriteNotePrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0].Content.(mcplib.TextContent).Text, "moderation_check")

	_, err = s.handleWriteNotePrompt(context.Background(), mcplib.GetPromptRequest{})
	assert.Error(t, err)

	res, err = s.handleSetupPrompt(context.Background(), mcplib.GetPromptRequest{})
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Content.(mcplib.TextContent).Text, "notes_add")
}

func TestCompactNote(t *testing.T) {
	n := model.Note{ID: 7, Title: "t", Content: strings.Repeat("é", maxCompactContent+5)}
	m := compactNote(n)
	assert.Equal(t, int64(7), m["id"])
	assert.Equal(t, true, m["content_truncated"])
	assert.Equal(t, maxCompactContent+3, len([]rune(m["content"].(string))))

	m = compactNote(model.Note{ID: 8, Title: "empty"})
	_, ok := m["content"]
	assert.False(t, ok)
}

func TestListSummary(t *testing.T) {
	assert.Equal(t, "No notes.", listSummary(nil, ""))
	assert.Equal(t, "2 notes (1 pinned).", listSummary([]model.Note{{IsPinned: true}, {}}, ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
