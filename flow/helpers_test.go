package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/model"
)

// testAgent is a minimal FlowAgent backed by an LLMFlow.
type testAgent struct {
	name        string
	description string
	model       model.Model
	instruction string
	global      string
	tools       []core.Tool
	include     IncludeContents
	outputKey   string
	noParent    bool
	noPeers     bool
	modelCbs    ModelCallbacks
	toolCbs     ToolCallbacks
	children    []core.Agent
}

func (a *testAgent) Name() string            { return a.name }
func (a *testAgent) Description() string     { return a.description }
func (a *testAgent) Kind() core.AgentKind    { return core.KindLLM }
func (a *testAgent) SubAgents() []core.Agent { return a.children }

func (a *testAgent) Run(ic *core.InvocationContext) *core.EventStream {
	ic = ic.DeriveForAgent(a)
	return core.NewEventStream(ic.Context, func(yield core.YieldFunc) error {
		return NewLLMFlow().Run(ic, a, yield)
	})
}

func (a *testAgent) ResolveModel(*core.InvocationContext) (model.Model, error) { return a.model, nil }

func (a *testAgent) ResolveInstruction(*core.CallbackContext) (string, bool, error) {
	return a.instruction, false, nil
}

func (a *testAgent) ResolveGlobalInstruction(*core.CallbackContext) (string, bool, error) {
	return a.global, false, nil
}

func (a *testAgent) Tools() []core.Tool               { return a.tools }
func (a *testAgent) IncludeContents() IncludeContents { return a.include }
func (a *testAgent) OutputKey() string                { return a.outputKey }
func (a *testAgent) DisallowTransferToParent() bool   { return a.noParent }
func (a *testAgent) DisallowTransferToPeers() bool    { return a.noPeers }
func (a *testAgent) ModelCallbacks() ModelCallbacks   { return a.modelCbs }
func (a *testAgent) ToolCallbacks() ToolCallbacks     { return a.toolCbs }

// newInvocation builds a root context over a session that already holds the
// user's message.
func newInvocation(t *testing.T, root core.Agent, userText string, optFns ...func(o *core.InvocationOptions)) *core.InvocationContext {
	t.Helper()
	tree, err := core.NewAgentTree(root)
	require.NoError(t, err)

	sess := core.NewSession("app", "user", "s1")
	msg := core.NewTextContent(core.RoleUser, userText)
	ic := core.NewInvocationContext(context.Background(), sess, append([]func(o *core.InvocationOptions){func(o *core.InvocationOptions) {
		o.Tree = tree
		o.UserContent = msg
	}}, optFns...)...)
	require.NoError(t, sess.Append(core.NewUserContentEvent(ic.InvocationID, msg)))
	return ic
}

// drain consumes agent's stream the way the runner does: non-partial events
// are appended to the session before the next one is requested.
func drain(t *testing.T, ic *core.InvocationContext, agent core.Agent) ([]*core.Event, error) {
	t.Helper()
	stream := agent.Run(ic)
	var out []*core.Event
	for {
		ev, ok := stream.Next()
		if !ok {
			return out, stream.Wait()
		}
		if !ev.Partial {
			require.NoError(t, ic.Session.Append(ev))
		}
		out = append(out, ev)
	}
}
