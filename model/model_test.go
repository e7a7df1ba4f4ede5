package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentloom/core"
)

func userRequest(text string, stream bool) *core.ModelRequest {
	return &core.ModelRequest{
		Contents: []core.Content{*core.NewTextContent(core.RoleUser, text)},
		Stream:   stream,
	}
}

func TestMockModel_ScriptedTurns(t *testing.T) {
	m := NewMockModel("mock").
		AddFunctionCalls(core.FunctionCall{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}}).
		AddText("done")
	ctx := context.Background()

	first, err := Collect(ctx, m, userRequest("hi", false))
	require.NoError(t, err)
	require.Len(t, first, 1)
	calls := first[0].Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Name)

	second, err := Collect(ctx, m, userRequest("hi", false))
	require.NoError(t, err)
	assert.Equal(t, "done", second[0].Content.Text())

	fallback, err := Collect(ctx, m, userRequest("echo me", false))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: echo me", fallback[0].Content.Text())
	assert.Len(t, m.Requests(), 3)
	assert.Zero(t, m.Remaining())
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock").AddText("one two three")
	respCh, errCh := m.Generate(context.Background(), userRequest("go", true))

	var partials []string
	var final *core.ModelResponse
	for r := range respCh {
		if r.Partial {
			partials = append(partials, r.Content.Text())
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"one ", "two ", "three"}, partials)
	require.NotNil(t, final)
	assert.Equal(t, "one two three", final.Content.Text())
}

func TestMockModel_Error(t *testing.T) {
	boom := errors.New("backend down")
	m := NewMockModel("mock").AddError(boom)
	_, err := Collect(context.Background(), m, userRequest("x", false))
	assert.ErrorIs(t, err, boom)
}

type closingModel struct {
	*MockModel
	closed int
}

func (c *closingModel) Close() error {
	c.closed++
	return nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	built := 0
	require.NoError(t, reg.Register(`gpt-.*`, func(name string) (Model, error) {
		built++
		return NewMockModel(name), nil
	}))
	cm := &closingModel{MockModel: NewMockModel("local")}
	require.NoError(t, reg.RegisterModel("local.v1", cm))

	m1, err := reg.Resolve("gpt-4o")
	require.NoError(t, err)
	m2, err := reg.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, built)
	assert.Equal(t, "gpt-4o", m1.Info().Name)

	_, err = reg.Resolve("localXv1")
	assert.ErrorIs(t, err, ErrModelNotFound, "dots are matched literally")
	_, err = reg.Resolve("xgpt-4o")
	assert.ErrorIs(t, err, ErrModelNotFound, "patterns must match the full name")

	_, err = reg.Resolve("local.v1")
	require.NoError(t, err)
	require.NoError(t, reg.Close())
	assert.Equal(t, 1, cm.closed)

	_, err = reg.Resolve("gpt-4o")
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, reg.Register("x", nil), ErrRegistryClosed)
	assert.NoError(t, reg.Close())
}

func TestRegistry_InvalidPattern(t *testing.T) {
	assert.Error(t, NewRegistry().Register("(", nil))
}

func TestWithRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	m := WithRateLimit(NewMockModel("mock").AddText("a").AddText("b"), limiter)

	out, err := Collect(context.Background(), m, userRequest("x", false))
	require.NoError(t, err)
	assert.Equal(t, "a", out[0].Content.Text())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Collect(ctx, m, userRequest("x", false))
	assert.Error(t, err, "second call exceeds the burst and the context deadline")
	assert.Equal(t, "mock", m.Info().Name)
}

type backendMock struct{ mock.Mock }

func (m *backendMock) Generate(ctx context.Context, req *core.ModelRequest) (<-chan *core.ModelResponse, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan *core.ModelResponse), args.Get(1).(<-chan error)
}

func (m *backendMock) Info() Info { return Info{Name: "backend"} }

func (m *backendMock) Close() error { return m.Called().Error(0) }

func TestWithRateLimit_CancelledWaitSkipsBackend(t *testing.T) {
	backend := &backendMock{}
	backend.On("Close").Return(nil).Once()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())
	m := WithRateLimit(backend, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, m, userRequest("x", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	require.NoError(t, m.(interface{ Close() error }).Close())
	backend.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	backend.AssertExpectations(t)
}
