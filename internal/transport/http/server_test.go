package http_test

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

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-assistant/internal/app"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/pkg/jwtutil"
	"transcript-assistant/internal/retrieval"
	httptransport "transcript-assistant/internal/transport/http"
	"transcript-assistant/internal/transport/http/handler"
	"transcript-assistant/internal/transport/http/response"
)

const testSecret = "test-secret"

type stubAuth struct{}

func (stubAuth) Register(input app.RegisterInput) (*app.AuthResult, error) {
	return nil, app.ErrUsernameExists
}

func (stubAuth) Login(input app.LoginInput) (*app.AuthResult, error) {
	return &app.AuthResult{Token: "tok", User: &model.User{ID: 7, Username: input.Username}}, nil
}

func (stubAuth) GetUserByID(id uint) (*model.User, error) {
	return &model.User{ID: id, Username: "dana"}, nil
}

type stubTranscripts struct {
	handler.TranscriptAPI
}

func (stubTranscripts) Get(userID, transcriptID uint) (*model.Transcript, error) {
	if transcriptID == 1 {
		return &model.Transcript{ID: 1, UserID: userID, Title: "Deal call"}, nil
	}
	return nil, app.ErrTranscriptNotFound
}

func (stubTranscripts) List(userID uint, source string) ([]model.Transcript, error) {
	return nil, errors.New("connection reset")
}

type stubSearch struct {
	lastInput    app.SearchInput
	lastFeedback app.FeedbackInput
}

func (s *stubSearch) Search(ctx context.Context, input app.SearchInput) ([]retrieval.Result, error) {
	s.lastInput = input
	switch input.Query {
	case "panic":
		panic("ranker exploded")
	case "nothing":
		return nil, nil
	case " ":
		return nil, app.ErrQueryEmpty
	}
	return []retrieval.Result{{
		Candidate: retrieval.Candidate{ID: "1", Title: "Seller note terms"},
		Score:     5.5,
		Excerpt:   "The seller carried a note.",
	}}, nil
}

func (s *stubSearch) Classify(title, content string) retrieval.SourceCategory {
	return retrieval.SourceCategory{ID: retrieval.CategorySummit, Label: "Summit"}
}

func (s *stubSearch) Sources() []retrieval.SourceCategory {
	return retrieval.DefaultCatalog().Categories()
}

func (s *stubSearch) Feedback(input app.FeedbackInput) (*model.ChunkFeedback, error) {
	s.lastFeedback = input
	return &model.ChunkFeedback{ChunkID: input.ChunkID, UserID: input.UserID, Relevant: input.Relevant}, nil
}

type stubChat struct {
	handler.ChatAPI
	streamErr error
}

func (s *stubChat) StreamMessage(ctx context.Context, input app.SendMessageInput,
	onCitations func([]app.Citation) error, onChunk func(string) error) (*app.StreamResult, error) {
	if err := onCitations([]app.Citation{{TranscriptID: "1", Title: "Seller note terms"}}); err != nil {
		return nil, err
	}
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	for _, chunk := range []string{"Use a ", "seller\nnote."} {
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
	return &app.StreamResult{Content: "Use a seller\nnote."}, nil
}

func (s *stubChat) GetHistory(ctx context.Context, userID, conversationID uint, limit int) ([]model.Message, error) {
	if conversationID != 3 {
		return nil, app.ErrConversationNotFound
	}
	return []model.Message{{ConversationID: 3, Role: "user", Content: "hi"}}, nil
}

type fixture struct {
	engine *gin.Engine
	search *stubSearch
	chat   *stubChat
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{search: &stubSearch{}, chat: &stubChat{}}
	f.engine = httptransport.NewEngine(httptransport.Deps{
		GinMode:     gin.TestMode,
		JWTSecret:   testSecret,
		Auth:        stubAuth{},
		Transcripts: stubTranscripts{},
		Search:      f.search,
		Chat:        f.chat,
		Health: handler.NewHealthHandler("transcript-assistant", "test", time.Now(), map[string]handler.Check{
			"mysql":    func(context.Context) error { return nil },
			"rabbitmq": func(context.Context) error { return errors.New("connection closed") },
		}),
	})
	token, err := jwtutil.GenerateToken(testSecret, time.Hour, 7, "dana")
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(method, path string, body any, auth bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthReportsFailingDependency(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		App          string `json:"app"`
		Dependencies map[string]struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "transcript-assistant", body.App)
	assert.True(t, body.Dependencies["mysql"].OK)
	assert.False(t, body.Dependencies["rabbitmq"].OK)
	assert.Equal(t, "connection closed", body.Dependencies["rabbitmq"].Message)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "seller note"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode(t, w)
	assert.Equal(t, response.CodeUnauthorized, resp.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", decode(t, w).RequestID)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "seller note", "source": "web"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, app.SearchInput{UserID: 7, Query: "seller note", Source: "web"}, f.search.lastInput)

	var body struct {
		Data struct {
			Results []retrieval.Result `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Results, 1)
	assert.Equal(t, "The seller carried a note.", body.Data.Results[0].Excerpt)

	w = f.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "nothing"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)

	w = f.do(http.MethodPost, "/api/v1/search", map[string]string{"query": " "}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeEmptyQuery, decode(t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/search", map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPanicsAreRecovered(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "panic"}, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, response.CodeInternalServer, decode(t, w).Code)
}

func TestClassifyAndSources(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/classify", map[string]string{"title": "Summit keynote"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), retrieval.CategorySummit)

	w = f.do(http.MethodPost, "/api/v1/classify", map[string]string{}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/chunks/12/feedback", map[string]bool{"relevant": false}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, app.FeedbackInput{UserID: 7, ChunkID: 12, Relevant: false}, f.search.lastFeedback)

	w = f.do(http.MethodPost, "/api/v1/chunks/12/feedback", map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/chunks/abc/feedback", map[string]bool{"relevant": true}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscriptErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/transcripts/1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Deal call")

	w = f.do(http.MethodGet, "/api/v1/transcripts/2", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeTranscriptNotFound, decode(t, w).Code)

	w = f.do(http.MethodGet, "/api/v1/transcripts", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "list transcripts failed", resp.Message)
	assert.NotContains(t, resp.Message, "connection reset")
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": "dana", "email": "dana@example.com", "password": "password1"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeUsernameExists, decode(t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "dana", "password": "password1"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"tok"`)

	w = f.do(http.MethodGet, "/api/v1/auth/me", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":7`)
}

func TestChatHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/chat/history?conversation_id=3", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/chat/history?conversation_id=4", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeConversationNotFound, decode(t, w).Code)

	w = f.do(http.MethodGet, "/api/v1/chat/history", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamMessageEmitsCitationsThenChunks(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/chat/messages/stream",
		map[string]any{"conversation_id": 3, "content": "seller note?"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSuffix(w.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], "event: citations\ndata: ["))
	assert.Contains(t, frames[0], `"title":"Seller note terms"`)
	assert.Equal(t, "data: Use a ", frames[1])
	assert.Equal(t, `data: seller\nnote.`, frames[2])
	assert.Equal(t, `event: done`+"\n"+`data: Use a seller\nnote.`, frames[3])
}

func TestStreamMessageReportsErrorEvent(t *testing.T) {
	f := newFixture(t)
	f.chat.streamErr = app.ErrMessageEnqueue

	w := f.do(http.MethodPost, "/api/v1/chat/messages/stream",
		map[string]any{"conversation_id": 3, "content": "seller note?"}, true)
	assert.Contains(t, w.Body.String(), "event: error\ndata: message enqueue failed\n\n")
	assert.NotContains(t, w.Body.String(), "event: done")
}
