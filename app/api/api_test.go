package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/types"
)

type fakeDocs struct {
	summary    *types.IngestSummary
	err        error
	gotRoot    string
	gotPattern []string
	cleared    bool
}

func (f *fakeDocs) ProcessDocuments(_ context.Context, root string, patterns []string) (*types.IngestSummary, error) {
	f.gotRoot, f.gotPattern = root, patterns
	return f.summary, f.err
}

func (f *fakeDocs) Refresh(context.Context) (*types.IngestSummary, error) { return f.summary, f.err }

func (f *fakeDocs) FolderInfo(context.Context) (*types.FolderInfo, error) {
	return &types.FolderInfo{FolderPath: "/abs/documents", Exists: true, TotalFiles: 3}, f.err
}

func (f *fakeDocs) Status(context.Context) types.StoreStatus {
	return types.StoreStatus{CollectionName: "documents", Status: types.StatusEmpty}
}

func (f *fakeDocs) Clear(context.Context) error {
	f.cleared = true
	return f.err
}

type fakeChat struct {
	got     types.ChatRequest
	err     error
	history map[string][]types.ConversationTurn
}

func (f *fakeChat) Chat(_ context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &types.ChatResult{
		Answer:         "answer",
		ConversationID: "conv-1",
		Metadata:       types.ChatMetadata{Model: "m", Timestamp: time.Unix(0, 0).UTC()},
	}, nil
}

func (f *fakeChat) History(id string) ([]types.ConversationTurn, error) {
	turns, ok := f.history[id]
	if !ok {
		return nil, types.Errorf(types.KindNotFound, "history", "conversation %s not found", id)
	}
	return turns, nil
}

func (f *fakeChat) ClearConversation(id string) { delete(f.history, id) }

func (f *fakeChat) ListConversations() []string {
	ids := []string{}
	for id := range f.history {
		ids = append(ids, id)
	}
	return ids
}

func newTestApp(docs *fakeDocs, chat *fakeChat) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	check := NewCheckHandler()
	dh := NewDocumentHandler(docs)
	ch := NewChatHandler(chat)

	app.Get("/check/healthy", check.HandleHealthy)
	app.Get("/health", check.HandleHealth)
	app.Post("/documents/upload", dh.HandleUpload)
	app.Post("/documents/refresh", dh.HandleRefresh)
	app.Get("/documents/folder-info", dh.HandleFolderInfo)
	app.Get("/documents/status", dh.HandleStatus)
	app.Delete("/documents/clear", dh.HandleClear)
	app.Post("/chat", ch.HandleChat)
	app.Get("/conversations", ch.HandleListConversations)
	app.Get("/conversations/:id", ch.HandleGetConversation)
	app.Delete("/conversations/:id", ch.HandleDeleteConversation)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApp(&fakeDocs{}, &fakeChat{})

	code, body := do(t, app, http.MethodGet, "/check/healthy", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["result"])

	code, body = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestUpload(t *testing.T) {
	docs := &fakeDocs{summary: &types.IngestSummary{ProcessedFiles: 3, TotalChunks: 7, Details: []string{"Error processing x.json: bad"}}}
	app := newTestApp(docs, &fakeChat{})

	code, body := do(t, app, http.MethodPost, "/documents/upload", `{"folder_path":"/data","file_patterns":["*.md"]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Processed 3 files successfully.", body["message"])
	assert.EqualValues(t, 7, body["total_chunks"])
	assert.Len(t, body["details"], 1)
	assert.Equal(t, "/data", docs.gotRoot)
	assert.Equal(t, []string{"*.md"}, docs.gotPattern)
}

func TestUploadValidation(t *testing.T) {
	app := newTestApp(&fakeDocs{}, &fakeChat{})

	code, body := do(t, app, http.MethodPost, "/documents/upload", `{"file_patterns":["*.md"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["errors"], "FolderPath")

	code, _ = do(t, app, http.MethodPost, "/documents/upload", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUploadMapsErrorKinds(t *testing.T) {
	cases := []struct {
		kind types.Kind
		want int
	}{
		{types.KindNotFound, http.StatusNotFound},
		{types.KindValidation, http.StatusBadRequest},
		{types.KindLoad, http.StatusUnprocessableEntity},
		{types.KindStorage, http.StatusInternalServerError},
		{types.KindConnectivity, http.StatusServiceUnavailable},
		{types.KindAuth, http.StatusBadGateway},
		{types.KindRateLimited, http.StatusTooManyRequests},
		{types.KindProvider, http.StatusBadGateway},
		{types.KindUnexpected, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			docs := &fakeDocs{err: types.E(tc.kind, "process documents", errors.New("cause"))}
			app := newTestApp(docs, &fakeChat{})
			code, body := do(t, app, http.MethodPost, "/documents/upload", `{"folder_path":"/data"}`)
			assert.Equal(t, tc.want, code)
			assert.EqualValues(t, tc.want, body["code"])
			assert.Contains(t, body["error"], "cause")
		})
	}
}

func TestStatusForDeadline(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable,
		StatusFor(types.E(types.KindConnectivity, "embed", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestDocumentRoutes(t *testing.T) {
	docs := &fakeDocs{summary: &types.IngestSummary{ProcessedFiles: 2, TotalChunks: 4}}
	app := newTestApp(docs, &fakeChat{})

	code, body := do(t, app, http.MethodPost, "/documents/refresh", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Successfully refreshed 2 documents", body["message"])
	assert.Equal(t, []any{}, body["details"])

	code, body = do(t, app, http.MethodGet, "/documents/folder-info", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/abs/documents", body["folder_path"])

	code, body = do(t, app, http.MethodGet, "/documents/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "empty", body["status"])

	code, body = do(t, app, http.MethodDelete, "/documents/clear", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Document database cleared successfully", body["message"])
	assert.True(t, docs.cleared)
}

func TestChat(t *testing.T) {
	chat := &fakeChat{}
	app := newTestApp(&fakeDocs{}, chat)

	code, body := do(t, app, http.MethodPost, "/chat", `{"message":"hello","temperature":0,"max_tokens":64}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "answer", body["response"])
	assert.Equal(t, "conv-1", body["conversation_id"])
	assert.Equal(t, []any{}, body["sources"])

	assert.Equal(t, "hello", chat.got.Message)
	require.NotNil(t, chat.got.Temperature)
	assert.Equal(t, 0.0, *chat.got.Temperature)
	require.NotNil(t, chat.got.MaxTokens)
	assert.Equal(t, 64, *chat.got.MaxTokens)

	_, _ = do(t, app, http.MethodPost, "/chat", `{"message":"again"}`)
	assert.Nil(t, chat.got.Temperature)
	assert.Nil(t, chat.got.MaxTokens)
}

func TestChatValidationAndErrors(t *testing.T) {
	chat := &fakeChat{}
	app := newTestApp(&fakeDocs{}, chat)

	code, body := do(t, app, http.MethodPost, "/chat", `{"message":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["errors"], "Message")

	code, _ = do(t, app, http.MethodPost, "/chat", `{"message":"x","temperature":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	chat.err = types.E(types.KindRateLimited, "chat completion", errors.New("slow down"))
	code, _ = do(t, app, http.MethodPost, "/chat", `{"message":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestConversationRoutes(t *testing.T) {
	chat := &fakeChat{history: map[string][]types.ConversationTurn{
		"c1": {{Role: types.RoleUser, Content: "hi"}, {Role: types.RoleAssistant, Content: "hello"}},
	}}
	app := newTestApp(&fakeDocs{}, chat)

	code, body := do(t, app, http.MethodGet, "/conversations", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"c1"}, body["conversations"])
	assert.EqualValues(t, 1, body["count"])

	code, body = do(t, app, http.MethodGet, "/conversations/c1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c1", body["conversation_id"])
	assert.Len(t, body["messages"], 2)

	code, body = do(t, app, http.MethodGet, "/conversations/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "conversation with missing not found", body["error"])

	code, _ = do(t, app, http.MethodDelete, "/conversations/c1", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, app, http.MethodGet, "/conversations/c1", "")
	assert.Equal(t, http.StatusNotFound, code)
}
