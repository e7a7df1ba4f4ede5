package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/model"
	"github.com/hupe1980/agentloom/tool"
)

func sumTool() core.Tool {
	return tool.NewFunctionTool("sum", "Add numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestLLMFlow_TextResponse(t *testing.T) {
	m := model.NewMockModel("mock").AddText("hello Ada")
	a := &testAgent{name: "assistant", description: "Greets people", model: m, instruction: "Greet {name}.", outputKey: "greeting"}
	ic := newInvocation(t, a, "hi")
	ic.Session.ApplyDelta(map[string]any{"name": "Ada"})

	events, err := drain(t, ic, a)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "assistant", ev.Author)
	assert.True(t, ev.IsFinalResponse())
	assert.Equal(t, "hello Ada", ev.Actions.StateDelta["greeting"])

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].SystemInstruction, "Greet Ada.")
	assert.Contains(t, reqs[0].SystemInstruction, `Your internal name is "assistant"`)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, "hi", reqs[0].Contents[0].Text())
	assert.Equal(t, 1, ic.LLMCallCount())
}

func TestLLMFlow_ToolRoundTrip(t *testing.T) {
	m := model.NewMockModel("mock").
		AddFunctionCalls(core.FunctionCall{Name: "sum", Args: map[string]any{"a": 2.0, "b": 3.0}}).
		AddText("it is 5")
	a := &testAgent{name: "calc", model: m, tools: []core.Tool{sumTool()}}
	ic := newInvocation(t, a, "what is 2+3?")

	events, err := drain(t, ic, a)
	require.NoError(t, err)
	require.Len(t, events, 3)

	calls := events[0].FunctionCalls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].ID, ClientFunctionCallIDPrefix))

	responses := events[1].FunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, calls[0].ID, responses[0].ID)
	assert.Equal(t, map[string]any{"result": 5.0}, responses[0].Response)
	assert.Equal(t, "it is 5", events[2].Content.Text())

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 3)
	sent := reqs[1].Contents[1].FunctionCalls()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].ID, "generated ids never reach the model")
	assert.Equal(t, "sum", reqs[1].Tools[0].Name)
}

func TestLLMFlow_MissingTool(t *testing.T) {
	m := model.NewMockModel("mock").AddFunctionCalls(core.FunctionCall{ID: "c1", Name: "nope"})
	a := &testAgent{name: "calc", model: m, tools: []core.Tool{sumTool()}}
	ic := newInvocation(t, a, "go")

	_, err := drain(t, ic, a)
	var missing *core.MissingToolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nope", missing.Name)
	assert.Equal(t, []string{"sum"}, missing.Available)
	assert.Equal(t, core.CodeMissingTool, core.ErrorCode(err))
}

func TestLLMFlow_LongRunningToolPauses(t *testing.T) {
	approval := tool.NewLongRunningFunctionTool("ask_approval", "Ask a human", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, nil
	})
	m := model.NewMockModel("mock").AddFunctionCalls(core.FunctionCall{ID: "call-1", Name: "ask_approval"})
	a := &testAgent{name: "clerk", model: m, tools: []core.Tool{approval}}
	ic := newInvocation(t, a, "please approve")

	events, err := drain(t, ic, a)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"call-1"}, events[0].LongRunningToolIDs)
	assert.True(t, events[0].IsFinalResponse())
	assert.Len(t, m.Requests(), 1)
}

func TestLLMFlow_BudgetExceeded(t *testing.T) {
	m := model.NewMockModel("mock").
		AddFunctionCalls(core.FunctionCall{ID: "c1", Name: "sum", Args: map[string]any{"a": 1.0, "b": 1.0}}).
		AddText("2")
	a := &testAgent{name: "calc", model: m, tools: []core.Tool{sumTool()}}
	ic := newInvocation(t, a, "1+1", func(o *core.InvocationOptions) { o.RunConfig.MaxLLMCalls = 1 })

	events, err := drain(t, ic, a)
	require.ErrorIs(t, err, core.ErrBudgetExceeded)
	assert.Len(t, events, 2, "call and response are emitted before the second call fails")
	assert.Len(t, m.Requests(), 1)
}

func TestLLMFlow_Streaming(t *testing.T) {
	m := model.NewMockModel("mock").AddText("one two three")
	a := &testAgent{name: "talker", model: m}
	ic := newInvocation(t, a, "count", func(o *core.InvocationOptions) { o.RunConfig.Streaming = true })

	events, err := drain(t, ic, a)
	require.NoError(t, err)
	require.Greater(t, len(events), 1)
	for _, ev := range events[:len(events)-1] {
		assert.True(t, ev.Partial)
	}
	final := events[len(events)-1]
	assert.False(t, final.Partial)
	assert.Equal(t, "one two three", final.Content.Text())

	for _, ev := range ic.Session.GetEvents() {
		assert.False(t, ev.Partial, "partial events are never persisted")
	}
}

func TestLLMFlow_BeforeModelShortCircuit(t *testing.T) {
	m := model.NewMockModel("mock")
	a := &testAgent{name: "cached", model: m, modelCbs: ModelCallbacks{
		Before: []core.BeforeModelCallback{func(cc *core.CallbackContext, _ *core.ModelRequest) (*core.ModelResponse, error) {
			cc.State().Set("cache_hit", true)
			return &core.ModelResponse{Content: core.NewTextContent(core.RoleModel, "from cache")}, nil
		}},
	}}
	ic := newInvocation(t, a, "hi")

	events, err := drain(t, ic, a)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "from cache", events[0].Content.Text())
	assert.Equal(t, true, events[0].Actions.StateDelta["cache_hit"])
	assert.Empty(t, m.Requests())
	assert.Zero(t, ic.LLMCallCount())
}

func TestLLMFlow_AfterModelReplacesResponse(t *testing.T) {
	m := model.NewMockModel("mock").AddText("raw")
	a := &testAgent{name: "filter", model: m, modelCbs: ModelCallbacks{
		After: []core.AfterModelCallback{func(_ *core.CallbackContext, resp *core.ModelResponse) (*core.ModelResponse, error) {
			return &core.ModelResponse{Content: core.NewTextContent(core.RoleModel, strings.ToUpper(resp.Content.Text()))}, nil
		}},
	}}
	events, err := drain(t, newInvocation(t, a, "hi"), a)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "RAW", events[0].Content.Text())
}

func TestLLMFlow_ModelError(t *testing.T) {
	boom := errors.New("upstream unavailable")

	t.Run("recovered", func(t *testing.T) {
		m := model.NewMockModel("mock").AddError(boom)
		a := &testAgent{name: "resilient", model: m, modelCbs: ModelCallbacks{
			OnError: []core.OnModelErrorCallback{func(_ *core.CallbackContext, _ *core.ModelRequest, err error) (*core.ModelResponse, error) {
				return &core.ModelResponse{Content: core.NewTextContent(core.RoleModel, "fallback: "+err.Error())}, nil
			}},
		}}
		events, err := drain(t, newInvocation(t, a, "hi"), a)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "fallback: upstream unavailable", events[0].Content.Text())
	})

	t.Run("unrecovered", func(t *testing.T) {
		m := model.NewMockModel("mock").AddError(boom)
		a := &testAgent{name: "fragile", model: m}
		_, err := drain(t, newInvocation(t, a, "hi"), a)
		assert.ErrorIs(t, err, boom)
	})
}

func TestLLMFlow_TransferToChild(t *testing.T) {
	childModel := model.NewMockModel("child-model").AddText("billing here")
	child := &testAgent{name: "billing", description: "Handles invoices", model: childModel}
	rootModel := model.NewMockModel("root-model").
		AddFunctionCalls(core.FunctionCall{ID: "t1", Name: tool.TransferToAgentName, Args: map[string]any{"agent_name": "billing"}})
	root := &testAgent{name: "router", model: rootModel, children: []core.Agent{child}}
	ic := newInvocation(t, root, "my invoice is wrong")

	events, err := drain(t, ic, root)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "router", events[0].Author)
	assert.Equal(t, "billing", events[1].Actions.TransferToAgent)
	assert.Equal(t, "billing", events[2].Author)
	assert.Equal(t, "billing here", events[2].Content.Text())

	rootReq := rootModel.Requests()[0]
	assert.Contains(t, rootReq.SystemInstruction, "Agent name: billing")
	assert.Equal(t, tool.TransferToAgentName, rootReq.Tools[0].Name)

	childReq := childModel.Requests()[0]
	require.Len(t, childReq.Contents, 3)
	assert.Equal(t, "For context:", childReq.Contents[1].Parts[0].(core.TextPart).Text)
	assert.Len(t, rootModel.Requests(), 1, "the router does not resume after handing off")
}

func TestLLMFlow_TransferToUnknownAgent(t *testing.T) {
	child := &testAgent{name: "billing", model: model.NewMockModel("m")}
	rootModel := model.NewMockModel("root").
		AddFunctionCalls(core.FunctionCall{ID: "t1", Name: tool.TransferToAgentName, Args: map[string]any{"agent_name": "ghost"}})
	root := &testAgent{name: "router", model: rootModel, children: []core.Agent{child}}

	_, err := drain(t, newInvocation(t, root, "hi"), root)
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestLLMFlow_CredentialRequest(t *testing.T) {
	secure := tool.NewFunctionTool("fetch_mail", "Reads mail", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		if err := tc.RequestCredential(map[string]any{"scheme": "oauth2"}); err != nil {
			return nil, err
		}
		return map[string]any{"status": "pending auth"}, nil
	})
	m := model.NewMockModel("mock").
		AddFunctionCalls(core.FunctionCall{ID: "mail-1", Name: "fetch_mail"}).
		AddText("please sign in")
	a := &testAgent{name: "mailer", model: m, tools: []core.Tool{secure}}

	events, err := drain(t, newInvocation(t, a, "read my mail"), a)
	require.NoError(t, err)
	require.Len(t, events, 4)

	auth := events[1]
	calls := auth.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, core.RequestCredentialFunctionName, calls[0].Name)
	assert.Equal(t, "mail-1", calls[0].Args["function_call_id"])
	assert.Equal(t, []string{calls[0].ID}, auth.LongRunningToolIDs)
	assert.NotEmpty(t, events[2].FunctionResponses())

	for _, c := range m.Requests()[1].Contents {
		for _, fc := range c.FunctionCalls() {
			assert.NotEqual(t, core.RequestCredentialFunctionName, fc.Name, "auth plumbing is hidden from the model")
		}
	}
}

func TestLLMFlow_EndInvocationStopsLoop(t *testing.T) {
	stopper := tool.NewFunctionTool("stop", "Stops", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.InvocationContext().EndInvocation()
		return "stopped", nil
	})
	m := model.NewMockModel("mock").AddFunctionCalls(core.FunctionCall{ID: "s1", Name: "stop"}).AddText("never")
	a := &testAgent{name: "worker", model: m, tools: []core.Tool{stopper}}

	events, err := drain(t, newInvocation(t, a, "go"), a)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Len(t, m.Requests(), 1)
}
