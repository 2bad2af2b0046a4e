package real

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/snapsolve/internal/config"
	"github.com/fairyhunter13/snapsolve/internal/domain"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:           "test",
		OpenAIAPIKey:     "test-key",
		OpenAIBaseURL:    baseURL,
		ReasonModel:      "reason-model",
		FallbackModel:    "fallback-model",
		VisionModel:      "vision-model",
		ModelCallTimeout: 5 * time.Second,
	}
}

func completionResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  "reason-model",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
		},
	}
}

func TestCompleteJSON_Success(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(completionResponse("```json\n{\"answer_letter\":\"B\"}\n```"))
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	out, err := c.CompleteJSON(context.Background(), domain.ModelRequest{
		Tier:        domain.TierPrimary,
		Temperature: 0.35,
		System:      "sys",
		User:        "user",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"answer_letter":"B"}`, out)

	assert.Equal(t, "reason-model", gotReq.Model)
	assert.InDelta(t, 0.35, gotReq.Temperature, 1e-6)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, gotReq.ResponseFormat.Type)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "sys", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Content)
}

func TestCompleteJSON_TierSelectsModel(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)
		_ = json.NewEncoder(w).Encode(completionResponse(`{}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	for _, tier := range []domain.ModelTier{domain.TierPrimary, domain.TierFallback, domain.TierVision} {
		_, err := c.CompleteJSON(context.Background(), domain.ModelRequest{Tier: tier})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"reason-model", "fallback-model", "vision-model"}, models)
}

func TestCompleteJSON_ImageAttachedAsMultiContent(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(completionResponse(`{}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	_, err := c.CompleteJSON(context.Background(), domain.ModelRequest{
		Tier:     domain.TierVision,
		User:     "read the question",
		ImageURL: "https://img.example/q.png",
	})
	require.NoError(t, err)

	require.Len(t, gotReq.Messages, 2)
	user := gotReq.Messages[1]
	assert.Empty(t, user.Content)
	require.Len(t, user.MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePartTypeText, user.MultiContent[0].Type)
	assert.Equal(t, "read the question", user.MultiContent[0].Text)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, user.MultiContent[1].Type)
	require.NotNil(t, user.MultiContent[1].ImageURL)
	assert.Equal(t, "https://img.example/q.png", user.MultiContent[1].ImageURL.URL)
}

func TestCompleteJSON_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream hiccup"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	out, err := c.CompleteJSON(context.Background(), domain.ModelRequest{Tier: domain.TierPrimary})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCompleteJSON_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	_, err := c.CompleteJSON(context.Background(), domain.ModelRequest{Tier: domain.TierPrimary})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCompleteJSON_MissingAPIKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.OpenAIAPIKey = ""
	c := New(cfg)

	_, err := c.CompleteJSON(context.Background(), domain.ModelRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCompleteJSON_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(testConfig(server.URL))
	_, err := c.CompleteJSON(ctx, domain.ModelRequest{Tier: domain.TierPrimary})
	require.Error(t, err)
}
