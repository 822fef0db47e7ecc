package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/handler/httperr"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
	chatmodel "github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/history"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

const testSecret = "handler-test-secret"

type failingBackend struct {
	calls int
}

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) Generate(context.Context, []chatmodel.ContextMessage, string) (string, error) {
	b.calls++
	return "", retry.Permanent(errors.New("invalid api key sk-secret"))
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"requestId"`
}

func setupRouter(t *testing.T, backend ai.Backend) (*chi.Mux, *chatmodel.MemoryStore) {
	t.Helper()
	store := chatmodel.NewMemoryStore()
	client := ai.NewClient(backend, ai.WithPolicy(retry.NoRetry()), ai.WithMaxLength(200))
	orchestrator := chatservice.NewOrchestrator(store, history.NewAssembler(store, history.DefaultLimit, nil), client)
	lifecycle := chatservice.NewLifecycle(store, client, nil, time.Now().Add(-time.Minute))
	handler := New(orchestrator, lifecycle, config.ChatConfig{DefaultPageSize: 20, MaxPageSize: 100}, nil)

	r := chi.NewRouter()
	r.Route("/chat", func(cr chi.Router) {
		handler.RegisterPublicRoutes(cr)
		cr.Group(func(g chi.Router) {
			g.Use(middleware.Auth(config.AuthConfig{JWTSecret: testSecret, UserClaim: "user_id"}))
			handler.RegisterRoutes(g)
		})
	})
	return r, store
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := middleware.SignToken([]byte(testSecret), "user_id", userID, time.Hour)
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, r http.Handler, method, target, userID string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return resp, env
}

func seed(t *testing.T, store chatmodel.Store, sessionID, userID string, n int) {
	t.Helper()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		turn := chatmodel.NewUserTurn(sessionID, userID, "pesan ke-"+string(rune('a'+i)), at)
		if i%2 == 1 {
			turn = chatmodel.NewAITurn(sessionID, userID, "balasan ke-"+string(rune('a'+i)), at, time.Second)
		}
		require.NoError(t, store.Append(context.Background(), turn))
	}
}

func TestChatNewSessionAnswersAboutBali(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())

	resp, env := do(t, r, http.MethodPost, "/chat", "42", map[string]string{"message": "Rekomendasi wisata di Bali"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, env.Success)

	var data chatResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.SessionID)
	assert.True(t, strings.HasPrefix(data.SessionID, "session_42_"))
	assert.Contains(t, data.Response, "Bali")
	assert.Contains(t, ai.RepliesFor(ai.TopicTourism), data.Response)
	assert.False(t, data.Timestamp.IsZero())
	assert.NotEmpty(t, data.Suggestions)

	turns, err := store.ListBySession(context.Background(), data.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Rekomendasi wisata di Bali", turns[0].Text)
	assert.Equal(t, data.Response, turns[1].Text)
}

func TestChatUsesInlineHistoryShape(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	body := map[string]any{
		"message":   "Berapa biaya ke sana?",
		"sessionId": "s-inline",
		"history": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": "Saya mau ke Bali"}}},
			{"role": "model", "parts": []map[string]string{{"text": "Kapan berangkat?"}}},
		},
	}
	resp, env := do(t, r, http.MethodPost, "/chat", "42", body)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, env.Success)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())

	for _, message := range []string{"", "    "} {
		resp, env := do(t, r, http.MethodPost, "/chat", "42", map[string]string{"message": message, "sessionId": "s1"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "message is required", env.Error)
	}

	turns, err := store.ListBySession(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChatRejectsMalformedBody(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token(t, "42"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChatGenerationFailureAppendsNothing(t *testing.T) {
	backend := &failingBackend{}
	r, store := setupRouter(t, backend)

	resp, env := do(t, r, http.MethodPost, "/chat", "42", map[string]string{"message": "halo", "sessionId": "s-fail"})

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.False(t, env.Success)
	assert.Equal(t, httperr.MsgGenerationFailed, env.Error)
	assert.NotContains(t, resp.Body.String(), "sk-secret")
	assert.Equal(t, 1, backend.calls)

	turns, err := store.ListBySession(context.Background(), "s-fail", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestClearThenHistoryIsEmpty(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())
	seed(t, store, "s1", "42", 3)

	resp, env := do(t, r, http.MethodDelete, "/chat/clear?sessionId=s1", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var cleared struct {
		DeletedCount int64  `json:"deletedCount"`
		SessionID    string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cleared))
	assert.Equal(t, int64(3), cleared.DeletedCount)
	assert.Equal(t, "s1", cleared.SessionID)

	resp, env = do(t, r, http.MethodDelete, "/chat/clear?sessionId=s1", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(env.Data, &cleared))
	assert.Zero(t, cleared.DeletedCount)

	resp, env = do(t, r, http.MethodGet, "/chat/history?sessionId=s1", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, string(extract(t, env.Data, "history")))
}

func TestClearRequiresSessionID(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	resp, env := do(t, r, http.MethodDelete, "/chat/clear", "42", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, env.Success)
}

func TestHistoryPagination(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())
	seed(t, store, "s1", "42", 5)
	seed(t, store, "s2", "42", 2)

	resp, env := do(t, r, http.MethodGet, "/chat/history?sessionId=s1&page=1&limit=2", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var data historyResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.History, 2)
	assert.Equal(t, "balasan ke-d", data.History[0].Content)
	assert.Equal(t, "pesan ke-e", data.History[1].Content)
	assert.Equal(t, pagination{Page: 1, Limit: 2, Total: 5, TotalPages: 3, HasNext: true, HasPrev: false}, data.Pagination)

	resp, env = do(t, r, http.MethodGet, "/chat/history", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(7), data.Pagination.Total)
	assert.Equal(t, 20, data.Pagination.Limit)

	for _, query := range []string{"page=0", "page=abc", "limit=-1"} {
		resp, _ = do(t, r, http.MethodGet, "/chat/history?sessionId=s1&"+query, "42", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}

	resp, env = do(t, r, http.MethodGet, "/chat/history?sessionId=s1&limit=1000", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 100, data.Pagination.Limit)
}

func TestHistoryPageFarBeyondEnd(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())
	seed(t, store, "s1", "42", 2)

	resp, env := do(t, r, http.MethodGet, "/chat/history?sessionId=s1&page=4611686018427387855&limit=20", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var data historyResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Empty(t, data.History)
	assert.Equal(t, int64(2), data.Pagination.Total)
	assert.False(t, data.Pagination.HasNext)
	assert.True(t, data.Pagination.HasPrev)
}

func TestSuggestions(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	_, env := do(t, r, http.MethodPost, "/chat", "42", map[string]string{"message": "Rekomendasi wisata di Bali", "sessionId": "s1"})
	require.True(t, env.Success)

	resp, env := do(t, r, http.MethodGet, "/chat/suggestions?sessionId=s1", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var data struct {
		Suggestions []string `json:"suggestions"`
		SessionID   string   `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "s1", data.SessionID)
	assert.NotEmpty(t, data.Suggestions)
	assert.LessOrEqual(t, len(data.Suggestions), 5)
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	resp, env := do(t, r, http.MethodGet, "/chat/health", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `"Healthy"`, string(extract(t, env.Data, "status")))

	r, _ = setupRouter(t, &failingBackend{})
	resp, env = do(t, r, http.MethodGet, "/chat/health", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `"Unhealthy"`, string(extract(t, env.Data, "status")))
}

func TestStats(t *testing.T) {
	r, store := setupRouter(t, ai.NewFallbackBackend())
	seed(t, store, "s1", "42", 4)
	seed(t, store, "s2", "42", 2)
	seed(t, store, "s3", "99", 2)

	resp, env := do(t, r, http.MethodGet, "/chat/stats", "42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var data struct {
		TotalChats          int64   `json:"totalChats"`
		TotalSessions       int64   `json:"totalSessions"`
		AverageResponseTime float64 `json:"averageResponseTime"`
		Uptime              int64   `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(6), data.TotalChats)
	assert.Equal(t, int64(2), data.TotalSessions)
	assert.InDelta(t, 1000, data.AverageResponseTime, 0.001)
	assert.GreaterOrEqual(t, data.Uptime, int64(60))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _ := setupRouter(t, ai.NewFallbackBackend())

	routes := []struct{ method, target string }{
		{http.MethodPost, "/chat"},
		{http.MethodGet, "/chat/history?sessionId=s1"},
		{http.MethodGet, "/chat/suggestions?sessionId=s1"},
		{http.MethodDelete, "/chat/clear?sessionId=s1"},
		{http.MethodGet, "/chat/stats"},
	}
	for _, route := range routes {
		resp, env := do(t, r, route.method, route.target, "", map[string]string{"message": "halo"})
		assert.Equal(t, http.StatusUnauthorized, resp.Code, route.target)
		assert.False(t, env.Success)
	}
}

func extract(t *testing.T, data json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	return fields[key]
}
