package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ericksa/contractassist/internal/config"
)

// LMStudioClient talks to a local OpenAI-compatible chat completions server
// such as LM Studio.
type LMStudioClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

func NewLMStudio(cfg config.LLMConfig) *LMStudioClient {
	return &LMStudioClient{
		baseURL:     strings.TrimRight(cfg.LMStudio.Endpoint, "/"),
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   int(cfg.MaxOutputTokens),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (c *LMStudioClient) Send(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", unavailable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable(err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", quotaExceeded(fmt.Errorf("lmstudio: %s", strings.TrimSpace(string(respBody))))
	case resp.StatusCode >= 400:
		return "", unavailable(fmt.Errorf("lmstudio error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", unavailable(fmt.Errorf("decode lmstudio response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", unavailable(fmt.Errorf("lmstudio returned no choices"))
	}
	return chatResp.Choices[0].Message.Content, nil
}
