package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GenerationParams are the gateway's default sampling parameters, applied
// to every completion unless the request already sets them.
type GenerationParams struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Seed             *int
}

// Gateway sends structured conversations to an LLM provider and enforces
// the response contract: content must be non-empty, and every call carries
// an explicit deadline so a hung provider cannot block a request forever.
type Gateway struct {
	provider Provider
	params   GenerationParams
	timeout  time.Duration
}

// NewGateway wraps a provider with generation defaults and a per-call
// timeout. A zero timeout defaults to two minutes.
func NewGateway(p Provider, params GenerationParams, timeout time.Duration) *Gateway {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Gateway{provider: p, params: params, timeout: timeout}
}

// Complete sends the ordered messages to the provider and returns the full
// response. Returns ErrEmptyResponse if the provider replies with no
// content, and ErrTimeout if the per-call deadline expires.
func (g *Gateway) Complete(ctx context.Context, messages []Message) (*ChatResponse, error) {
	return g.CompleteFormat(ctx, messages, "")
}

// CompleteFormat is Complete with an explicit response format
// ("json_object" requests strict JSON mode where the provider supports it).
func (g *Gateway) CompleteFormat(ctx context.Context, messages []Message, format string) (*ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Chat(callCtx, ChatRequest{
		Model:            g.params.Model,
		Messages:         messages,
		Temperature:      g.params.Temperature,
		MaxTokens:        g.params.MaxTokens,
		TopP:             g.params.TopP,
		FrequencyPenalty: g.params.FrequencyPenalty,
		PresencePenalty:  g.params.PresencePenalty,
		Seed:             g.params.Seed,
		ResponseFormat:   format,
	})
	if err != nil {
		// Distinguish our deadline from caller cancellation and other
		// provider failures.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: after %s", ErrTimeout, g.timeout)
		}
		if errors.Is(err, ErrProvider) || errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if resp.Content == "" {
		return nil, fmt.Errorf("%w: model %s finished with reason %q",
			ErrEmptyResponse, resp.Model, resp.FinishReason)
	}

	return resp, nil
}
