package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentloom/core"
)

type rateLimited struct {
	Model
	limiter *rate.Limiter
}

// WithRateLimit wraps m so every Generate call first waits for a token from
// limiter. A cancelled wait fails the call without reaching the backend.
func WithRateLimit(m Model, limiter *rate.Limiter) Model {
	return &rateLimited{Model: m, limiter: limiter}
}

func (r *rateLimited) Generate(ctx context.Context, req *core.ModelRequest) (<-chan *core.ModelResponse, <-chan error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return failed(fmt.Errorf("rate limit: %w", err))
	}
	return r.Model.Generate(ctx, req)
}

// Close forwards to the wrapped model when it can be closed.
func (r *rateLimited) Close() error {
	if c, ok := r.Model.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
