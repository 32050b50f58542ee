package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/ericksa/contractassist/internal/config"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexClient calls Gemini models through Vertex AI using application
// default credentials.
type VertexClient struct {
	client  *vertexgenai.Client
	model   *vertexgenai.GenerativeModel
	timeout time.Duration
}

func NewVertex(ctx context.Context, cfg config.LLMConfig) (*VertexClient, error) {
	client, err := vertexgenai.NewClient(ctx, cfg.Vertex.Project, cfg.Vertex.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	return &VertexClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (c *VertexClient) Send(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", classifyGRPC(err)
	}
	text := vertexText(resp)
	if strings.TrimSpace(text) == "" {
		return "", unavailable(emptyVertexReason(resp))
	}
	return text, nil
}

// emptyVertexReason explains a reply without usable text.
func emptyVertexReason(resp *vertexgenai.GenerateContentResponse) error {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != vertexgenai.BlockedReasonUnspecified {
		return fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return errors.New("empty candidate")
}

func (c *VertexClient) Close() error {
	return c.client.Close()
}

// vertexText joins the text parts of the first candidate.
func vertexText(resp *vertexgenai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
		return b.String()
	}
	return ""
}

func classifyGRPC(err error) error {
	if status.Code(err) == codes.ResourceExhausted {
		return quotaExceeded(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable(fmt.Errorf("timed out: %w", err))
	}
	return unavailable(err)
}
