package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videogen/internal/upstream"
)

const (
	envSoraKey = "sk-sora2-server-key-0001"
	envVeoKey  = "sk-veo3-server-key-00001"
	clientKey  = "sk-client-token-abcdef"
)

// mockUpstream implements upstream.Client for testing.
type mockUpstream struct {
	mock.Mock
}

func (m *mockUpstream) Create(ctx context.Context, apiKey string, body any) ([]byte, error) {
	args := m.Called(ctx, apiKey, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockUpstream) Query(ctx context.Context, apiKey, id string) ([]byte, error) {
	args := m.Called(ctx, apiKey, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func newTestRouter(t *testing.T, keys Keys) (http.Handler, *mockUpstream) {
	t.Helper()
	up := &mockUpstream{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandlers(up, keys, logger, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	return NewRouter(h, logger, DefaultConfig()), up
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, Keys{})

	rec := do(t, router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	router, _ := newTestRouter(t, Keys{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestSora2Create_DefaultsAndEnvKey(t *testing.T) {
	router, up := newTestRouter(t, Keys{Sora2: envSoraKey})
	up.On("Create", mock.Anything, envSoraKey, sora2UpstreamBody{
		Images:      []string{},
		Model:       "sora-2",
		Orientation: "portrait",
		Prompt:      "测试",
		Size:        "small",
		Duration:    15,
	}).Return([]byte(`{"id":"sora-1","status":"queued"}`), nil)

	rec := do(t, router, http.MethodPost, "/api/sora2/create", `{"prompt":"测试","token":"short"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"sora-1","status":"queued"}`, rec.Body.String())
	up.AssertExpectations(t)
}

func TestSora2Create_ClientToken(t *testing.T) {
	router, up := newTestRouter(t, Keys{Sora2: envSoraKey})
	up.On("Create", mock.Anything, clientKey, mock.MatchedBy(func(b sora2UpstreamBody) bool {
		return b.Model == "sora-2-pro" && b.Orientation == "landscape" && b.Size == "large" && b.Duration == 10 &&
			len(b.Images) == 1
	})).Return([]byte(`{"id":"sora-2"}`), nil)

	rec := do(t, router, http.MethodPost, "/api/sora2/create",
		`{"prompt":"p","images":["https://img/1.png"],"model":"sora-2-pro","orientation":"landscape","size":"large","duration":10,"token":"`+clientKey+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	up.AssertExpectations(t)
}

func TestSora2Create_MissingKey(t *testing.T) {
	router, up := newTestRouter(t, Keys{Sora2: "too-short"})

	rec := do(t, router, http.MethodPost, "/api/sora2/create", `{"prompt":"p"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "sora2_api_key_missing", decodeBody(t, rec)["error"])
	up.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSora2Create_Validation(t *testing.T) {
	router, _ := newTestRouter(t, Keys{Sora2: envSoraKey})

	rec := do(t, router, http.MethodPost, "/api/sora2/create", `{"prompt":"p","orientation":"diagonal"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])

	rec = do(t, router, http.MethodPost, "/api/sora2/create", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])
}

func TestSora2Create_UpstreamRejects(t *testing.T) {
	router, up := newTestRouter(t, Keys{Sora2: envSoraKey})
	up.On("Create", mock.Anything, envSoraKey, mock.Anything).
		Return(nil, &upstream.StatusError{Code: http.StatusPaymentRequired, Body: []byte(`{"message":"quota"}`)})

	rec := do(t, router, http.MethodPost, "/api/sora2/create", `{"prompt":"p"}`)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.JSONEq(t, `{"error":"create_failed","detail":{"message":"quota"}}`, rec.Body.String())
}

func TestSora2Create_Unexpected(t *testing.T) {
	router, up := newTestRouter(t, Keys{Sora2: envSoraKey})
	up.On("Create", mock.Anything, envSoraKey, mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	rec := do(t, router, http.MethodPost, "/api/sora2/create", `{"prompt":"p"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unexpected_error", body["error"])
	assert.Contains(t, body["message"], "refused")
}

func TestVeo3Create_PromptRequired(t *testing.T) {
	router, _ := newTestRouter(t, Keys{Veo3: envVeoKey})

	for _, body := range []string{`{}`, `{"prompt":""}`, `garbage`} {
		rec := do(t, router, http.MethodPost, "/api/veo3/create", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request payload: prompt is required", decodeBody(t, rec)["error"])
	}
}

func TestVeo3Create_PlaceholderKeyRejected(t *testing.T) {
	router, _ := newTestRouter(t, Keys{Veo3: "your_veo3_api_key"})

	rec := do(t, router, http.MethodPost, "/api/veo3/create", `{"prompt":"p"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Veo3 API key not configured", decodeBody(t, rec)["error"])
}

func TestVeo3Create_TranslatesBody(t *testing.T) {
	router, up := newTestRouter(t, Keys{Veo3: envVeoKey})
	up.On("Create", mock.Anything, envVeoKey, veo3UpstreamBody{
		Model:          "veo3-fast-frames",
		Prompt:         "sunrise",
		EnhancePrompt:  true,
		EnableUpsample: false,
		AspectRatio:    "16:9",
	}).Return([]byte(`{"id":"veo-123"}`), nil).Once()

	rec := do(t, router, http.MethodPost, "/api/veo3/create", `{"prompt":"sunrise","options":{"images":[]}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"veo-123","status":"submitted","response":{"id":"veo-123"}}`, rec.Body.String())
	up.AssertExpectations(t)
}

func TestVeo3Create_IDFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		upstream   string
		wantID     any
		wantStatus string
	}{
		{"choices content", `{"choices":[{"message":{"content":"task-9"},"finish_reason":"stop"}]}`, "task-9", "stop"},
		{"timestamp", `{"object":"chat.completion"}`, "veo3-1700000000000", "submitted"},
		{"numeric id", `{"id":77}`, float64(77), "submitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, up := newTestRouter(t, Keys{Veo3: envVeoKey})
			up.On("Create", mock.Anything, mock.Anything, mock.Anything).Return([]byte(tt.upstream), nil)

			rec := do(t, router, http.MethodPost, "/api/veo3/create",
				`{"prompt":"p","options":{"model":"veo3-pro","aspectRatio":"9:16","enhancePrompt":false,"images":["data:image/png;base64,AA=="]}}`)

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantID, body["id"])
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.NotNil(t, body["response"])

			sent := up.Calls[0].Arguments.Get(2).(veo3UpstreamBody)
			assert.Equal(t, "veo3-pro", sent.Model)
			assert.Equal(t, "9:16", sent.AspectRatio)
			assert.False(t, sent.EnhancePrompt)
			assert.Len(t, sent.Images, 1)
		})
	}
}

func TestVeo3Create_UpstreamRejects(t *testing.T) {
	router, up := newTestRouter(t, Keys{})
	up.On("Create", mock.Anything, clientKey, mock.Anything).
		Return(nil, &upstream.StatusError{Code: http.StatusBadRequest, Body: []byte(`bad model`)})

	rec := do(t, router, http.MethodPost, "/api/veo3/create", `{"prompt":"p","token":"`+clientKey+`"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Veo3 API error: 400 bad model", decodeBody(t, rec)["error"])
}

func TestQuery_MissingID(t *testing.T) {
	router, _ := newTestRouter(t, Keys{})

	for _, path := range []string{"/api/sora2/query", "/api/veo3/detail"} {
		rec := do(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_id", decodeBody(t, rec)["error"])
	}
}

func TestQuery_RelaysBody(t *testing.T) {
	router, up := newTestRouter(t, Keys{Veo3: envVeoKey})
	up.On("Query", mock.Anything, "tok", "job-1").Return([]byte(`{"status":"processing"}`), nil).Once()
	up.On("Query", mock.Anything, envVeoKey, "job-2").Return([]byte(`{"status":"completed","video_url":"u"}`), nil).Once()

	rec := do(t, router, http.MethodGet, "/api/veo3/detail?id=job-1&token=tok", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"processing"}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/veo3/detail?id=job-2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"completed","video_url":"u"}`, rec.Body.String())
	up.AssertExpectations(t)
}

func TestQuery_UpstreamRejects(t *testing.T) {
	router, up := newTestRouter(t, Keys{})
	up.On("Query", mock.Anything, "", "gone").
		Return(nil, &upstream.StatusError{Code: http.StatusNotFound, Body: []byte(`<html>`)})

	rec := do(t, router, http.MethodGet, "/api/sora2/query?id=gone", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"query_failed"}`, rec.Body.String())
}

func TestQuery_NonJSONBodyBecomesNull(t *testing.T) {
	router, up := newTestRouter(t, Keys{})
	up.On("Query", mock.Anything, "", "x").Return([]byte(`oops`), nil)

	rec := do(t, router, http.MethodGet, "/api/sora2/query?id=x", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

// blockingUpstream holds every Query until release is closed.
type blockingUpstream struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingUpstream) Create(context.Context, string, any) ([]byte, error) {
	return nil, errors.New("not used")
}

func (b *blockingUpstream) Query(ctx context.Context, apiKey, id string) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return []byte(`{"status":"processing"}`), nil
}

func TestQuery_CollapsesConcurrentLookups(t *testing.T) {
	up := &blockingUpstream{release: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	router := NewRouter(NewHandlers(up, Keys{}, logger), logger, DefaultConfig())

	var wg sync.WaitGroup
	codes := make([]int, 5)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = do(t, router, http.MethodGet, "/api/sora2/query?id=same", "").Code
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(up.release)
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, 1, up.calls)
}

func TestCORS_Preflight(t *testing.T) {
	router, _ := newTestRouter(t, Keys{})
	req := httptest.NewRequest(http.MethodOptions, "/api/veo3/create", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := ChainMiddleware(RequestIDMiddleware(), RecoveryMiddleware(logger))(panicky)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"unexpected_error","message":"boom"}`, rec.Body.String())
}

func TestResolveKey(t *testing.T) {
	assert.Equal(t, clientKey, resolveKey(clientKey, envSoraKey))
	assert.Equal(t, envSoraKey, resolveKey("short", envSoraKey))
	assert.Equal(t, "", resolveKey("", "your_veo3_api_key"))
	assert.Equal(t, "", resolveKey("", "tiny"))
}
