package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/config"
)

// RateLimitedProvider wraps a ChatProvider with a token-bucket rate limiter.
// Calls block until a token is available or the context is cancelled, smoothing
// bursts below the provider's own throttling threshold.
type RateLimitedProvider struct {
	inner   domain.ChatProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner, allowing cfg.RPS requests per second
// with bursts of cfg.Burst. Zero-valued cfg fields fall back to 1 rps / burst 1.
func NewRateLimitedProvider(inner domain.ChatProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Chat implements domain.ChatProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingChatProvider if the inner provider supports it.
func (p *RateLimitedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingChatProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support streaming", p.inner.Name())
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return sp.ChatStream(ctx, req)
}

// Name implements domain.ChatProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

var (
	_ domain.ChatProvider          = (*RateLimitedProvider)(nil)
	_ domain.StreamingChatProvider = (*RateLimitedProvider)(nil)
)
