package model

import (
	"context"

	"github.com/hupe1980/agentloom/core"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows & agents to drive generation.
//
// Generate streams responses on the first channel and closes it when the turn
// is done. At most one error is delivered on the second channel, which is
// closed afterwards. When req.Stream is set, implementations may emit partial
// responses before the final aggregated one.
type Model interface {
	Generate(ctx context.Context, req *core.ModelRequest) (<-chan *core.ModelResponse, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the non-partial responses.
func Collect(ctx context.Context, m Model, req *core.ModelRequest) ([]*core.ModelResponse, error) {
	respCh, errCh := m.Generate(ctx, req)
	var out []*core.ModelResponse
	for resp := range respCh {
		if !resp.Partial {
			out = append(out, resp)
		}
	}
	if err := <-errCh; err != nil {
		return out, err
	}
	return out, nil
}

// failed returns channels that deliver err and nothing else.
func failed(err error) (<-chan *core.ModelResponse, <-chan error) {
	respCh := make(chan *core.ModelResponse)
	errCh := make(chan error, 1)
	close(respCh)
	errCh <- err
	close(errCh)
	return respCh, errCh
}
