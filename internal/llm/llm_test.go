package llm

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

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/ericksa/contractassist/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func lmstudioConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Provider:        config.ProviderLMStudio,
		Model:           "local-model",
		Timeout:         5 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 256,
		LMStudio:        config.LMStudioConfig{Endpoint: endpoint},
	}
}

func TestClientFunc(t *testing.T) {
	var got string
	c := ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		got = prompt
		return "reply", nil
	})

	out, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply", out)
	assert.Equal(t, "hello", got)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)
}

func TestNew_GeminiWithoutKey(t *testing.T) {
	c, err := New(context.Background(), config.LLMConfig{Provider: config.ProviderGemini, Model: "gemini-2.0-flash"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Nil(t, c)
}

func TestLMStudio_Send(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","model":"local-model","choices":[{"index":0,"message":{"role":"assistant","content":"[{\"title\":\"A\",\"text\":\"B\"}]"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, err := New(context.Background(), lmstudioConfig(srv.URL+"/"))
	require.NoError(t, err)

	out, err := c.Send(context.Background(), "identify clauses")
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"A","text":"B"}]`, out)

	assert.Equal(t, "local-model", captured.Model)
	assert.Equal(t, 256, captured.MaxTokens)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "identify clauses", captured.Messages[0].Content)
}

func TestLMStudio_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, ErrModelQuotaExceeded},
		{"server error", http.StatusInternalServerError, `boom`, ErrModelUnavailable},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrModelUnavailable},
		{"not json", http.StatusOK, `<html>`, ErrModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewLMStudio(lmstudioConfig(srv.URL)).Send(context.Background(), "p")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLMStudio_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLMStudio(lmstudioConfig(url)).Send(context.Background(), "p")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func geminiServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func geminiConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:        config.ProviderGemini,
		Model:           "gemini-2.0-flash",
		APIKey:          "test-key",
		BaseURL:         baseURL + "/",
		Timeout:         5 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 512,
	}
}

func TestGemini_Send(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[]"}]}}]}`)
	defer srv.Close()

	c, err := NewGemini(context.Background(), geminiConfig(srv.URL))
	require.NoError(t, err)

	out, err := c.Send(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestGemini_QuotaExceeded(t *testing.T) {
	srv := geminiServer(t, http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	defer srv.Close()

	c, err := NewGemini(context.Background(), geminiConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelQuotaExceeded)
}

func TestGemini_ServerError(t *testing.T) {
	srv := geminiServer(t, http.StatusInternalServerError, `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`)
	defer srv.Close()

	c, err := NewGemini(context.Background(), geminiConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, errors.Is(err, ErrModelQuotaExceeded))
}

func TestGemini_EmptyCandidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no candidates", `{"candidates":[]}`, "empty candidate"},
		{"blocked prompt", `{"promptFeedback":{"blockReason":"SAFETY"}}`, "prompt blocked: SAFETY"},
		{"empty text", `{"candidates":[{"content":{"role":"model","parts":[{"text":"  "}]},"finishReason":"MAX_TOKENS"}]}`, "MAX_TOKENS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := geminiServer(t, http.StatusOK, tt.body)
			defer srv.Close()

			c, err := NewGemini(context.Background(), geminiConfig(srv.URL))
			require.NoError(t, err)

			out, err := c.Send(context.Background(), "prompt")
			assert.Empty(t, out)
			assert.ErrorIs(t, err, ErrModelUnavailable)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestVertexEmptyReply(t *testing.T) {
	assert.Equal(t, "", vertexText(nil))
	assert.Equal(t, "", vertexText(&vertexgenai.GenerateContentResponse{}))

	err := emptyVertexReason(&vertexgenai.GenerateContentResponse{})
	assert.EqualError(t, err, "empty candidate")

	err = emptyVertexReason(&vertexgenai.GenerateContentResponse{
		PromptFeedback: &vertexgenai.PromptFeedback{BlockReason: vertexgenai.BlockedReasonSafety},
	})
	assert.ErrorContains(t, err, "prompt blocked")
}

func TestClassifyGRPC(t *testing.T) {
	assert.ErrorIs(t, classifyGRPC(status.Error(codes.ResourceExhausted, "quota")), ErrModelQuotaExceeded)
	assert.ErrorIs(t, classifyGRPC(status.Error(codes.PermissionDenied, "denied")), ErrModelUnavailable)
	assert.ErrorIs(t, classifyGRPC(context.DeadlineExceeded), ErrModelUnavailable)
}
