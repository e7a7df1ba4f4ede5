package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloom/core"
)

// MockModel is a lightweight in‑memory Model useful for tests & examples.
//
// It plays back scripted turns in order; each Generate call consumes one turn.
// When the script is exhausted it echoes the last user text. Every request is
// recorded for later assertions.
type MockModel struct {
	info Info

	mu       sync.Mutex
	turns    []mockTurn
	requests []*core.ModelRequest
}

type mockTurn struct {
	responses []*core.ModelResponse
	err       error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// AddTurn scripts one Generate call returning the given responses.
func (m *MockModel) AddTurn(responses ...*core.ModelResponse) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{responses: responses})
	return m
}

// AddText scripts a turn answering with plain text.
func (m *MockModel) AddText(text string) *MockModel {
	return m.AddTurn(&core.ModelResponse{
		Content:      core.NewTextContent(core.RoleModel, text),
		TurnComplete: true,
		FinishReason: "stop",
	})
}

// AddFunctionCalls scripts a turn requesting the given tool calls.
func (m *MockModel) AddFunctionCalls(calls ...core.FunctionCall) *MockModel {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return m.AddTurn(&core.ModelResponse{
		Content:      &core.Content{Role: core.RoleModel, Parts: parts},
		FinishReason: "tool_calls",
	})
}

// AddError scripts a turn failing with err.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{err: err})
	return m
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []*core.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.ModelRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining returns the number of scripted turns not yet played.
func (m *MockModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Generate implements Model. In streaming mode text responses are preceded by
// one partial chunk per word.
func (m *MockModel) Generate(ctx context.Context, req *core.ModelRequest) (<-chan *core.ModelResponse, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var turn mockTurn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	} else {
		turn = mockTurn{responses: []*core.ModelResponse{{
			Content:      core.NewTextContent(core.RoleModel, fmt.Sprintf("Mock response to: %s", lastUserText(req))),
			TurnComplete: true,
			FinishReason: "stop",
		}}}
	}
	m.mu.Unlock()

	if turn.err != nil {
		return failed(turn.err)
	}

	respCh := make(chan *core.ModelResponse)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		send := func(r *core.ModelResponse) bool {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return false
			case respCh <- r:
				return true
			}
		}
		for _, r := range turn.responses {
			if req.Stream && !r.Partial && r.Content != nil && len(r.Content.FunctionCalls()) == 0 {
				for _, chunk := range splitWords(r.Content.Text()) {
					if !send(&core.ModelResponse{Content: core.NewTextContent(core.RoleModel, chunk), Partial: true}) {
						return
					}
				}
			}
			if !send(cloneResponse(r)) {
				return
			}
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

func cloneResponse(r *core.ModelResponse) *core.ModelResponse {
	out := *r
	out.Content = r.Content.Clone()
	return &out
}

func lastUserText(req *core.ModelRequest) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == core.RoleUser {
			if text := req.Contents[i].Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

func splitWords(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
