// Package llm sends prompts to a generative model backend.
//
// Every Send makes exactly one outbound call. There are no retries and no
// streaming; failures are classified into ErrModelUnavailable and
// ErrModelQuotaExceeded so callers can report them distinctly.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericksa/contractassist/internal/config"
)

var (
	// ErrModelUnavailable covers network, authentication and provider errors.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelQuotaExceeded is returned when the provider rate limits the call.
	ErrModelQuotaExceeded = errors.New("model quota exceeded")
)

// Client sends a prompt and returns the model's raw reply.
type Client interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ClientFunc) Send(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderVertex:
		c, err := NewVertex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderLMStudio:
		return NewLMStudio(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}

func quotaExceeded(err error) error {
	return fmt.Errorf("%w: %v", ErrModelQuotaExceeded, err)
}
