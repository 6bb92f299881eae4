package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"owly-api/internal/prompt"
	"owly-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testPayload = prompt.Payload{System: "you are owly", User: "data"}

func newTestClient(t *testing.T, url string, timeout time.Duration) *HTTPClient {
	t.Helper()
	return NewHTTPClient(Config{
		BaseURL: url + "/",
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Timeout: timeout,
	}, zaptest.NewLogger(t).Sugar())
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletionsRoute, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "req_123", r.Header.Get("X-Request-ID"))

		var body shared.InferenceBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.Equal(t, 300, body.MaxTokens)
		assert.InDelta(t, 0.4, body.Temperature, 0.0001)
		assert.False(t, body.Stream)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, shared.ChatMessage{Role: "system", Content: "you are owly"}, body.Messages[0])
		assert.Equal(t, shared.ChatMessage{Role: "user", Content: "data"}, body.Messages[1])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"role": "assistant", "content": "Yes, you can."}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 5, "total_tokens": 125}
		}`))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL, time.Second).Generate(context.Background(), testPayload, Options{
		MaxOutputTokens: 300,
		Temperature:     0.4,
		RequestID:       "req_123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Yes, you can.", res.Text)
	assert.Equal(t, "gpt-4o-mini-2024", res.Model)
	assert.Equal(t, shared.Usage{PromptTokens: 120, CompletionTokens: 5, TotalTokens: 125}, res.Usage)
}

func TestGenerate_NullContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": null}}]}`))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL, time.Second).Generate(context.Background(), testPayload, Options{})
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode *shared.MetricsError
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			},
			wantCode: shared.ErrFailedModelReqFromCode,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantCode: shared.ErrMalformedModelResponse,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices": []}`))
			},
			wantCode: shared.ErrMalformedModelResponse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantCode: shared.ErrModelTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(t, server.URL, 50*time.Millisecond).Generate(context.Background(), testPayload, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrGenerationFailed)
			assert.ErrorIs(t, err, tt.wantCode)
		})
	}
}

func TestGenerate_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url, time.Second).Generate(context.Background(), testPayload, Options{})
	assert.ErrorIs(t, err, shared.ErrGenerationFailed)
	assert.ErrorIs(t, err, shared.ErrFailedModelReq)
}

func TestGenerate_SurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "done"}}]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	res, err := newTestClient(t, server.URL, time.Second).Generate(ctx, testPayload, Options{})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
}
