package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsuzuri/internal/auth"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/moderation"
	"github.com/ashita-ai/tsuzuri/internal/ratelimit"
	"github.com/ashita-ai/tsuzuri/internal/server"
	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
	"github.com/ashita-ai/tsuzuri/internal/testutil"
)

// wordClassifier scores text containing "abusive" as hate speech and fails
// for text containing "outage".
type wordClassifier struct{}

func (wordClassifier) Classify(_ context.Context, text string) ([]moderation.Label, error) {
	switch {
	case strings.Contains(text, "outage"):
		return nil, &moderation.Error{Reason: moderation.ReasonStatus, Err: errors.New("503 Service Unavailable")}
	case strings.Contains(text, "abusive"):
		return []moderation.Label{{Label: "hate", Score: 0.93}, {Label: "nothate", Score: 0.07}}, nil
	default:
		return []moderation.Label{{Label: "nothate", Score: 0.98}, {Label: "hate", Score: 0.02}}, nil
	}
}

func (wordClassifier) Name() string { return "words" }

type testEnv struct {
	srv      *httptest.Server
	store    storage.Store
	registry *notes.Registry
}

type envOption func(*server.ServerConfig)

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := testutil.TestLogger()

	store, err := storage.OpenSQLite(context.Background(), storage.MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	gate := moderation.NewGate(wordClassifier{}, time.Second, logger)
	registry := notes.NewRegistry(store, gate, time.Hour, logger)
	t.Cleanup(registry.CloseAll)

	cfg := server.ServerConfig{
		Store:               store,
		Registry:            registry,
		Logger:              logger,
		ModerationProvider:  gate.Provider(),
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		Keepalive:           50 * time.Millisecond,
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	}
	for _, o := range opts {
		o(&cfg)
	}

	srv := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, registry: registry}
}

type response struct {
	status int
	header http.Header
	data   json.RawMessage
	err    *model.ErrorDetail
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{status: resp.StatusCode, header: resp.Header}
	if len(raw) == 0 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return out
	}
	var envelope struct {
		Data  json.RawMessage    `json:"data"`
		Error *model.ErrorDetail `json:"error"`
		Meta  model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope), string(raw))
	assert.NotEmpty(t, envelope.Meta.RequestID)
	out.data = envelope.Data
	out.err = envelope.Error
	return out
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.data, &v), string(r.data))
	return v
}

func (e *testEnv) openSession(t *testing.T) string {
	t.Helper()
	r := e.do(t, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, r.status)
	return decode[model.OpenSessionResponse](t, r).SessionID.String()
}

func (e *testEnv) addNote(t *testing.T, sid, title, content string) model.Note {
	t.Helper()
	r := e.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", model.NoteInput{Title: title, Content: content})
	require.Equal(t, http.StatusCreated, r.status)
	res := decode[model.WriteResponse](t, r)
	require.True(t, res.Committed)
	require.NotNil(t, res.Note)
	return *res.Note
}

func titles(list []model.Note) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.Title
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	env.addNote(t, sid, "one", "")

	r := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, r.status)
	h := decode[model.HealthResponse](t, r)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "connected", h.Store)
	assert.Equal(t, storage.KindSQLite, h.StoreKind)
	assert.Equal(t, "words", h.Moderation)
	assert.Equal(t, int64(1), h.Notes)
	assert.Equal(t, 1, h.Sessions)
	assert.Equal(t, "test", h.Version)

	assert.Equal(t, "nosniff", r.header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, r.header.Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newEnv(t)
	r := env.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", r.header.Get("X-Request-ID"))
}

func TestOpenAPISpec(t *testing.T) {
	env := newEnv(t)
	resp, err := http.Get(env.srv.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
}

func TestAddListAndGet(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	first := env.addNote(t, sid, "Grocery list", "milk")
	env.addNote(t, sid, "Ideas", "")
	assert.Positive(t, first.ID)
	assert.False(t, first.IsPinned)

	r := env.do(t, http.MethodGet, "/v1/notes", nil)
	require.Equal(t, http.StatusOK, r.status)
	list := decode[model.NotesResponse](t, r)
	assert.Equal(t, []string{"Ideas", "Grocery list"}, titles(list.Notes))

	r = env.do(t, http.MethodGet, "/v1/notes?q=GROC", nil)
	list = decode[model.NotesResponse](t, r)
	assert.Equal(t, "GROC", list.Query)
	assert.Equal(t, []string{"Grocery list"}, titles(list.Notes))

	r = env.do(t, http.MethodGet, fmt.Sprintf("/v1/notes/%d", first.ID), nil)
	require.Equal(t, http.StatusOK, r.status)
	got := decode[model.Note](t, r)
	assert.Equal(t, "milk", got.Content)
}

func TestListEmptyIsArray(t *testing.T) {
	env := newEnv(t)
	r := env.do(t, http.MethodGet, "/v1/notes", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Contains(t, string(r.data), `"notes":[]`)
}

func TestGetNoteErrors(t *testing.T) {
	env := newEnv(t)

	r := env.do(t, http.MethodGet, "/v1/notes/999", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	require.NotNil(t, r.err)
	assert.Equal(t, model.ErrCodeNotFound, r.err.Code)

	r = env.do(t, http.MethodGet, "/v1/notes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, model.ErrCodeInvalidInput, r.err.Code)
}

func TestAddFlaggedIsNotCommitted(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	r := env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", model.NoteInput{Title: "rant", Content: "abusive words"})
	require.Equal(t, http.StatusOK, r.status)
	res := decode[model.WriteResponse](t, r)
	assert.False(t, res.Committed)
	assert.Nil(t, res.Note)
	assert.True(t, res.Verdict.Flagged)
	assert.Equal(t, model.DefaultFlagReason, res.Verdict.Reason)

	counts, err := env.store.CountNotes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestAddFailsOpenWhenClassifierDown(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	r := env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", model.NoteInput{Title: "status", Content: "outage today"})
	require.Equal(t, http.StatusCreated, r.status)
	res := decode[model.WriteResponse](t, r)
	assert.True(t, res.Committed)
	assert.True(t, res.Verdict.Degraded)
	assert.False(t, res.Verdict.Flagged)
}

func TestAddValidation(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	r := env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", model.NoteInput{Title: "   ", Content: "body"})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, model.ErrCodeInvalidInput, r.err.Code)

	r = env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", map[string]string{"title": "x", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, r.status, "unknown fields are rejected")

	r = env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes",
		model.NoteInput{Title: "big", Content: strings.Repeat("a", model.MaxContentLen+1)})
	assert.Equal(t, http.StatusBadRequest, r.status)
}

func TestBodyTooLarge(t *testing.T) {
	env := newEnv(t, func(c *server.ServerConfig) { c.MaxRequestBodyBytes = 64 })
	sid := env.openSession(t)

	r := env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes", model.NoteInput{Title: "t", Content: strings.Repeat("a", 200)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, r.status)
}

func TestEditNote(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	n := env.addNote(t, sid, "draft", "v1")

	r := env.do(t, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/notes/%d/pin", sid, n.ID), nil)
	require.Equal(t, http.StatusOK, r.status)

	r = env.do(t, http.MethodPut, fmt.Sprintf("/v1/sessions/%s/notes/%d", sid, n.ID), model.NoteInput{Title: "final", Content: "v2"})
	require.Equal(t, http.StatusOK, r.status)
	res := decode[model.WriteResponse](t, r)
	require.True(t, res.Committed)
	assert.Equal(t, "final", res.Note.Title)
	assert.True(t, res.Note.IsPinned, "edit keeps the pin")
	assert.True(t, n.Timestamp.Equal(res.Note.Timestamp), "edit keeps the timestamp")

	r = env.do(t, http.MethodPut, fmt.Sprintf("/v1/sessions/%s/notes/%d", sid, n.ID), model.NoteInput{Title: "final", Content: "abusive"})
	require.Equal(t, http.StatusOK, r.status)
	res = decode[model.WriteResponse](t, r)
	assert.False(t, res.Committed)
	assert.True(t, res.Verdict.Flagged)

	stored, err := env.store.GetNote(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Content)
}

func TestEditMissingNote(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	r := env.do(t, http.MethodPut, "/v1/sessions/"+sid+"/notes/42", model.NoteInput{Title: "x"})
	assert.Equal(t, http.StatusNotFound, r.status)

	r = env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/notes/42/pin", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
}

func TestTogglePinReorders(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	old := env.addNote(t, sid, "old", "")
	env.addNote(t, sid, "new", "")

	r := env.do(t, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/notes/%d/pin", sid, old.ID), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.True(t, decode[model.Note](t, r).IsPinned)

	r = env.do(t, http.MethodGet, "/v1/notes", nil)
	assert.Equal(t, []string{"old", "new"}, titles(decode[model.NotesResponse](t, r).Notes))

	r = env.do(t, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/notes/%d/pin", sid, old.ID), nil)
	assert.False(t, decode[model.Note](t, r).IsPinned)
}

func TestDeleteNoteIsIdempotent(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	n := env.addNote(t, sid, "gone", "")

	path := fmt.Sprintf("/v1/sessions/%s/notes/%d", sid, n.ID)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).status)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).status)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/v1/notes/%d", n.ID), nil).status)
}

func TestSessionFilter(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	env.addNote(t, sid, "Buy milk", "")
	env.addNote(t, sid, "Call mom", "")

	r := env.do(t, http.MethodPut, "/v1/sessions/"+sid+"/filter", model.SetFilterRequest{Query: "MILK"})
	require.Equal(t, http.StatusOK, r.status)

	require.Eventually(t, func() bool {
		r := env.do(t, http.MethodGet, "/v1/sessions/"+sid+"/notes", nil)
		got := decode[model.NotesResponse](t, r)
		return got.Query == "MILK" && len(got.Notes) == 1 && got.Notes[0].Title == "Buy milk"
	}, 2*time.Second, 10*time.Millisecond)

	// Another session is unaffected by this filter.
	other := env.openSession(t)
	require.Eventually(t, func() bool {
		r := env.do(t, http.MethodGet, "/v1/sessions/"+other+"/notes", nil)
		return len(decode[model.NotesResponse](t, r).Notes) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPreviewAndVerdict(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	r := env.do(t, http.MethodGet, "/v1/sessions/"+sid+"/verdict", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.False(t, decode[model.Verdict](t, r).Flagged)

	r = env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/preview", model.NoteInput{Title: "", Content: "abusive"})
	require.Equal(t, http.StatusOK, r.status)
	p := decode[model.PreviewResponse](t, r)
	assert.True(t, p.Applied)
	assert.True(t, p.Verdict.Flagged)

	r = env.do(t, http.MethodGet, "/v1/sessions/"+sid+"/verdict", nil)
	assert.True(t, decode[model.Verdict](t, r).Flagged)

	r = env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/preview", model.NoteInput{Title: "kind", Content: "words"})
	require.Equal(t, http.StatusOK, r.status)
	r = env.do(t, http.MethodGet, "/v1/sessions/"+sid+"/verdict", nil)
	assert.False(t, decode[model.Verdict](t, r).Flagged)
}

func TestSessionLifecycle(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	assert.Equal(t, 1, env.registry.Len())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/sessions/"+sid, nil).status)
	assert.Equal(t, 0, env.registry.Len())

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/v1/sessions/"+sid, nil).status)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/sessions/"+sid+"/notes", nil).status)

	r := env.do(t, http.MethodGet, "/v1/sessions/not-a-uuid/notes", nil)
	assert.Equal(t, http.StatusBadRequest, r.status)
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readEvents(ctx context.Context, body io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 64)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case strings.HasPrefix(line, ":"):
				select {
				case out <- sseEvent{name: "keepalive"}:
				case <-ctx.Done():
					return
				}
			case line == "" && ev.name != "":
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func waitEvent(t *testing.T, events <-chan sseEvent, match func(sseEvent) bool) sseEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSessionStream(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)
	env.addNote(t, sid, "Buy milk", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/v1/sessions/"+sid+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(ctx, resp.Body)

	notesWith := func(want ...string) func(sseEvent) bool {
		return func(ev sseEvent) bool {
			if ev.name != "notes" {
				return false
			}
			var list []model.Note
			if err := json.Unmarshal([]byte(ev.data), &list); err != nil {
				return false
			}
			return assert.ObjectsAreEqual(want, titles(list))
		}
	}

	waitEvent(t, events, notesWith("Buy milk"))
	waitEvent(t, events, func(ev sseEvent) bool { return ev.name == "verdict" })

	env.addNote(t, sid, "Call mom", "")
	waitEvent(t, events, notesWith("Call mom", "Buy milk"))

	env.do(t, http.MethodPut, "/v1/sessions/"+sid+"/filter", model.SetFilterRequest{Query: "milk"})
	waitEvent(t, events, notesWith("Buy milk"))

	env.do(t, http.MethodPost, "/v1/sessions/"+sid+"/preview", model.NoteInput{Content: "abusive"})
	waitEvent(t, events, func(ev sseEvent) bool {
		return ev.name == "verdict" && strings.Contains(ev.data, `"flagged":true`)
	})

	waitEvent(t, events, func(ev sseEvent) bool { return ev.name == "keepalive" })
}

func TestSessionStreamEndsWhenSessionCloses(t *testing.T) {
	env := newEnv(t)
	sid := env.openSession(t)

	resp, err := http.Get(env.srv.URL + "/v1/sessions/" + sid + "/stream")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		close(done)
	}()

	env.do(t, http.MethodDelete, "/v1/sessions/"+sid, nil)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream still open after session close")
	}
}

func TestAuth(t *testing.T) {
	hash, err := auth.HashAPIKey("s3cret")
	require.NoError(t, err)
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	env := newEnv(t, func(c *server.ServerConfig) {
		c.JWTMgr = mgr
		c.APIKeyHash = hash
	})

	// Public paths.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).status)

	r := env.do(t, http.MethodGet, "/v1/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, model.ErrCodeUnauthorized, r.err.Code)

	r = env.do(t, http.MethodGet, "/v1/notes", nil, "Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodGet, "/v1/notes", nil, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodPost, "/auth/token", model.AuthTokenRequest{APIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodPost, "/auth/token", model.AuthTokenRequest{})
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodPost, "/auth/token", model.AuthTokenRequest{APIKey: "s3cret", Client: "phone"})
	require.Equal(t, http.StatusOK, r.status)
	tok := decode[model.AuthTokenResponse](t, r)
	assert.NotEmpty(t, tok.Token)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	r = env.do(t, http.MethodGet, "/v1/notes", nil, "Authorization", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, r.status)
}

func TestAuthDisabledWithoutKeyHash(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	env := newEnv(t, func(c *server.ServerConfig) { c.JWTMgr = mgr })

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/notes", nil).status)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/auth/token", model.AuthTokenRequest{APIKey: "x"}).status)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 2)
	t.Cleanup(func() { _ = limiter.Close() })
	env := newEnv(t, func(c *server.ServerConfig) { c.Limiter = limiter })

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/notes", nil).status)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/notes", nil).status)

	r := env.do(t, http.MethodGet, "/v1/notes", nil)
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, model.ErrCodeRateLimited, r.err.Code)
	assert.NotEmpty(t, r.header.Get("Retry-After"))

	// Health is never limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).status)
}
