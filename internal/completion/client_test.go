package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gptme-server/internal/observability"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	calls   atomic.Int32
	lastReq openai.ChatCompletionRequest
	handler func(w http.ResponseWriter)
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	json.NewDecoder(r.Body).Decode(&p.lastReq)
	p.handler(w)
}

func replyWith(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID: "cmpl-1",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
		})
	}
}

func failWith(status int, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
				"type":    "invalid_request_error",
			},
		})
	}
}

func newTestClient(t *testing.T, provider *fakeProvider, timeout time.Duration) (*Client, *observability.Collector) {
	t.Helper()

	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	metrics := observability.NewCollector("gptme_test")
	client := NewClient(Config{
		APIKey:                  "test-key",
		BaseURL:                 srv.URL + "/v1/",
		Timeout:                 timeout,
		BreakerMaxRequests:      1,
		BreakerInterval:         time.Minute,
		BreakerTimeout:          time.Minute,
		BreakerMinRequests:      2,
		BreakerFailureThreshold: 1.0,
	}, metrics, zap.NewNop())

	return client, metrics
}

func TestClientComplete(t *testing.T) {
	provider := &fakeProvider{handler: replyWith("  Hello there.  ")}
	client, _ := newTestClient(t, provider, 5*time.Second)

	text, err := client.Complete(context.Background(), Request{
		Model:             "gpt-4",
		SystemInstruction: "be formal",
		UserContent:       "hi",
		MaxTokens:         150,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", text)

	assert.Equal(t, "gpt-4", provider.lastReq.Model)
	assert.Equal(t, 150, provider.lastReq.MaxTokens)
	require.Len(t, provider.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, provider.lastReq.Messages[0].Role)
	assert.Equal(t, "be formal", provider.lastReq.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, provider.lastReq.Messages[1].Role)
	assert.Equal(t, "hi", provider.lastReq.Messages[1].Content)
}

func TestClientEmptyCompletion(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter)
	}{
		{name: "blank content", handler: replyWith("   \n")},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "cmpl-2"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, &fakeProvider{handler: tt.handler}, 5*time.Second)

			_, err := client.Complete(context.Background(), Request{Model: "gpt-4", UserContent: "hi"})
			assert.ErrorIs(t, err, ErrEmptyCompletion)
			assert.False(t, IsGatewayError(err))
		})
	}
}

func TestClientProviderError(t *testing.T) {
	provider := &fakeProvider{handler: failWith(http.StatusBadRequest, "model not found")}
	client, _ := newTestClient(t, provider, 5*time.Second)

	_, err := client.Complete(context.Background(), Request{Model: "nope", UserContent: "hi"})
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "model not found", gwErr.Message)
	assert.Equal(t, "nope", gwErr.Model)
	assert.Equal(t, int32(1), provider.calls.Load(), "failed calls are not retried")
}

func TestClientTimeout(t *testing.T) {
	provider := &fakeProvider{handler: func(w http.ResponseWriter) {
		time.Sleep(300 * time.Millisecond)
		replyWith("late")(w)
	}}
	client, _ := newTestClient(t, provider, 50*time.Millisecond)

	_, err := client.Complete(context.Background(), Request{Model: "gpt-4", UserContent: "hi"})
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientBreakerOpens(t *testing.T) {
	provider := &fakeProvider{handler: failWith(http.StatusInternalServerError, "upstream down")}
	client, _ := newTestClient(t, provider, 5*time.Second)

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), Request{Model: "gpt-4", UserContent: "hi"})
		require.Error(t, err)
	}
	require.Equal(t, int32(2), provider.calls.Load())

	_, err := client.Complete(context.Background(), Request{Model: "gpt-4", UserContent: "hi"})
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "completion service temporarily unavailable", gwErr.Message)
	assert.Equal(t, int32(2), provider.calls.Load(), "open breaker must not reach the provider")
}

func TestClientEmptyCompletionsDoNotTripBreaker(t *testing.T) {
	provider := &fakeProvider{handler: replyWith("")}
	client, _ := newTestClient(t, provider, 5*time.Second)

	for i := 0; i < 4; i++ {
		_, err := client.Complete(context.Background(), Request{Model: "gpt-4", UserContent: "hi"})
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	}
	assert.Equal(t, int32(4), provider.calls.Load())
}
