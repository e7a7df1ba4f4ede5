package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	name string
	subs []Agent
}

func (a *stubAgent) Name() string        { return a.name }
func (a *stubAgent) Description() string { return "" }
func (a *stubAgent) Kind() AgentKind     { return KindCustom }
func (a *stubAgent) SubAgents() []Agent  { return a.subs }
func (a *stubAgent) Run(ic *InvocationContext) *EventStream {
	return EmptyStream(ic.Context)
}

type stubTool struct{ name string }

func (t stubTool) Name() string                  { return t.name }
func (t stubTool) Description() string           { return "" }
func (t stubTool) IsLongRunning() bool           { return false }
func (t stubTool) Declaration() *ToolDeclaration { return nil }
func (t stubTool) Run(*ToolContext, map[string]any) (any, error) {
	return "real", nil
}

type beforeToolPlugin struct {
	name   string
	result map[string]any
	err    error
	calls  *[]string
}

func (p *beforeToolPlugin) Name() string { return p.name }

func (p *beforeToolPlugin) BeforeTool(tc *ToolContext, _ Tool, _ map[string]any) (map[string]any, error) {
	*p.calls = append(*p.calls, p.name)
	tc.State().Set("seen_by_"+p.name, true)
	return p.result, p.err
}

type nameOnlyPlugin struct{}

func (nameOnlyPlugin) Name() string { return "name-only" }

func newTestIC(t *testing.T, plugins ...Plugin) *InvocationContext {
	t.Helper()
	pm, err := NewPluginManager(plugins...)
	require.NoError(t, err)
	tree, err := NewAgentTree(&stubAgent{name: "root"})
	require.NoError(t, err)
	return NewInvocationContext(context.Background(), NewSession("app", "u", "s"), func(o *InvocationOptions) {
		o.Plugins = pm
		o.Tree = tree
	})
}

func TestPluginManager_BeforeToolShortCircuits(t *testing.T) {
	var calls []string
	ic := newTestIC(t,
		&beforeToolPlugin{name: "first", calls: &calls},
		nameOnlyPlugin{},
		&beforeToolPlugin{name: "second", result: map[string]any{"result": "synthetic"}, calls: &calls},
		&beforeToolPlugin{name: "third", result: map[string]any{"result": "never"}, calls: &calls},
	)
	tc := NewToolContext(ic, "call-1", nil)

	localCalled := false
	got, err := ic.Plugins.RunBeforeTool(tc, stubTool{name: "t"}, nil, func(*ToolContext, Tool, map[string]any) (map[string]any, error) {
		localCalled = true
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "synthetic"}, got)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.False(t, localCalled, "local callbacks run only when no plugin short-circuits")
	assert.Equal(t, true, tc.State().ToMap()["seen_by_first"], "state writes are visible to later interceptors")
}

func TestPluginManager_LocalRunsAfterPlugins(t *testing.T) {
	var calls []string
	ic := newTestIC(t, &beforeToolPlugin{name: "p", calls: &calls})
	tc := NewToolContext(ic, "call-1", nil)

	got, err := ic.Plugins.RunBeforeTool(tc, stubTool{name: "t"}, nil,
		func(tc *ToolContext, _ Tool, _ map[string]any) (map[string]any, error) {
			calls = append(calls, "local-0")
			assert.Equal(t, true, tc.State().ToMap()["seen_by_p"])
			return nil, nil
		},
		func(*ToolContext, Tool, map[string]any) (map[string]any, error) {
			calls = append(calls, "local-1")
			return map[string]any{"ok": true}, nil
		},
		func(*ToolContext, Tool, map[string]any) (map[string]any, error) {
			calls = append(calls, "local-2")
			return map[string]any{"ok": false}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, got)
	assert.Equal(t, []string{"p", "local-0", "local-1"}, calls)
}

func TestPluginManager_FailureIsLabeled(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	ic := newTestIC(t,
		&beforeToolPlugin{name: "broken", err: boom, calls: &calls},
		&beforeToolPlugin{name: "after", calls: &calls},
	)
	tc := NewToolContext(ic, "call-1", nil)

	_, err := ic.Plugins.RunBeforeTool(tc, stubTool{name: "t"}, nil)

	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "broken", cbErr.Source)
	assert.Equal(t, CallbackBeforeTool, cbErr.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"broken"}, calls, "a failing interceptor aborts the chain")
	assert.Equal(t, CodeCallbackFailure, ErrorCode(err))
}

func TestPluginManager_LocalFailureIsLabeledWithOwner(t *testing.T) {
	ic := newTestIC(t)
	cc := NewCallbackContext(ic, nil)

	_, err := ic.Plugins.RunBeforeAgent(cc, ic.Agent,
		func(*CallbackContext) (*Content, error) { return nil, nil },
		func(*CallbackContext) (*Content, error) { return nil, errors.New("nope") },
	)
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "root[1]", cbErr.Source)
	assert.Equal(t, CallbackBeforeAgent, cbErr.Kind)
}

func TestPluginManager_NilManagerRunsLocal(t *testing.T) {
	var pm *PluginManager
	ic := newTestIC(t)
	cc := NewCallbackContext(ic, nil)

	got, err := pm.RunBeforeModel(cc, &ModelRequest{}, func(*CallbackContext, *ModelRequest) (*ModelResponse, error) {
		return &ModelResponse{Content: NewTextContent(RoleModel, "cached")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Content.Text())
	assert.NoError(t, pm.RunAfterRun(ic))
}

func TestPluginManager_DuplicateNames(t *testing.T) {
	_, err := NewPluginManager(nameOnlyPlugin{}, nameOnlyPlugin{})
	assert.Error(t, err)
}
