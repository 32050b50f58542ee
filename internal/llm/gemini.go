package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ericksa/contractassist/internal/config"
	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API with an API key.
type GeminiClient struct {
	client *genai.Client
	model  string
	gen    *genai.GenerateContentConfig
}

func NewGemini(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing gemini api key", ErrModelUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	gen := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		gen.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return &GeminiClient{client: client, model: cfg.Model, gen: gen}, nil
}

func (c *GeminiClient) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.gen)
	if err != nil {
		return "", classifyGenAI(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", unavailable(emptyGenAIReason(resp))
	}
	return text, nil
}

// emptyGenAIReason explains a reply without usable text.
func emptyGenAIReason(resp *genai.GenerateContentResponse) error {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].FinishReason != "" {
		return fmt.Errorf("empty candidate, finish reason %s", resp.Candidates[0].FinishReason)
	}
	return errors.New("empty candidate")
}

func classifyGenAI(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isQuota(apiErr) {
		return quotaExceeded(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isQuota(*apiErrPtr) {
		return quotaExceeded(err)
	}
	return unavailable(err)
}

func isQuota(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}
