package core

import (
	"fmt"
	"reflect"
)

// CallbackKind names an extension point of the interceptor chain.
type CallbackKind string

const (
	CallbackOnUserMessage CallbackKind = "on_user_message"
	CallbackBeforeRun     CallbackKind = "before_run"
	CallbackOnEvent       CallbackKind = "on_event"
	CallbackAfterRun      CallbackKind = "after_run"
	CallbackBeforeAgent   CallbackKind = "before_agent"
	CallbackAfterAgent    CallbackKind = "after_agent"
	CallbackBeforeModel   CallbackKind = "before_model"
	CallbackAfterModel    CallbackKind = "after_model"
	CallbackOnModelError  CallbackKind = "on_model_error"
	CallbackBeforeTool    CallbackKind = "before_tool"
	CallbackAfterTool     CallbackKind = "after_tool"
	CallbackOnToolError   CallbackKind = "on_tool_error"
)

// Plugin is a named interceptor. A plugin implements any subset of the
// per-kind interfaces below; kinds it does not implement are skipped.
type Plugin interface {
	Name() string
}

// UserMessagePlugin may replace the incoming user message.
type UserMessagePlugin interface {
	OnUserMessage(ic *InvocationContext, msg *Content) (*Content, error)
}

// BeforeRunPlugin may end the invocation early by returning content.
type BeforeRunPlugin interface {
	BeforeRun(ic *InvocationContext) (*Content, error)
}

// EventPlugin may replace an event before it reaches the consumer.
type EventPlugin interface {
	OnEvent(ic *InvocationContext, ev *Event) (*Event, error)
}

// AfterRunPlugin observes the end of an invocation.
type AfterRunPlugin interface {
	AfterRun(ic *InvocationContext) error
}

// BeforeAgentPlugin may skip an agent's body by returning content.
type BeforeAgentPlugin interface {
	BeforeAgent(cc *CallbackContext, agent Agent) (*Content, error)
}

// AfterAgentPlugin may append content after an agent's body.
type AfterAgentPlugin interface {
	AfterAgent(cc *CallbackContext, agent Agent) (*Content, error)
}

// BeforeModelPlugin may answer a model request without calling the model.
type BeforeModelPlugin interface {
	BeforeModel(cc *CallbackContext, req *ModelRequest) (*ModelResponse, error)
}

// AfterModelPlugin may replace a model response.
type AfterModelPlugin interface {
	AfterModel(cc *CallbackContext, resp *ModelResponse) (*ModelResponse, error)
}

// ModelErrorPlugin may recover a failed model call.
type ModelErrorPlugin interface {
	OnModelError(cc *CallbackContext, req *ModelRequest, err error) (*ModelResponse, error)
}

// BeforeToolPlugin may supply a tool result and skip the real invocation.
type BeforeToolPlugin interface {
	BeforeTool(tc *ToolContext, tool Tool, args map[string]any) (map[string]any, error)
}

// AfterToolPlugin may overwrite a tool result.
type AfterToolPlugin interface {
	AfterTool(tc *ToolContext, tool Tool, args, result map[string]any) (map[string]any, error)
}

// ToolErrorPlugin may recover a failed tool invocation.
type ToolErrorPlugin interface {
	OnToolError(tc *ToolContext, tool Tool, args map[string]any, err error) (map[string]any, error)
}

// Agent-local callbacks. They run after the plugin chain of the same kind and
// only when no plugin short-circuited.
type (
	BeforeAgentCallback  func(cc *CallbackContext) (*Content, error)
	AfterAgentCallback   func(cc *CallbackContext) (*Content, error)
	BeforeModelCallback  func(cc *CallbackContext, req *ModelRequest) (*ModelResponse, error)
	AfterModelCallback   func(cc *CallbackContext, resp *ModelResponse) (*ModelResponse, error)
	OnModelErrorCallback func(cc *CallbackContext, req *ModelRequest, err error) (*ModelResponse, error)
	BeforeToolCallback   func(tc *ToolContext, tool Tool, args map[string]any) (map[string]any, error)
	AfterToolCallback    func(tc *ToolContext, tool Tool, args, result map[string]any) (map[string]any, error)
	OnToolErrorCallback  func(tc *ToolContext, tool Tool, args map[string]any, err error) (map[string]any, error)
)

// PluginManager runs the registered plugins in registration order. It is
// shared, not copied, by every context of an invocation tree.
type PluginManager struct {
	plugins []Plugin
}

// NewPluginManager registers plugins in order. Plugin names must be unique.
func NewPluginManager(plugins ...Plugin) (*PluginManager, error) {
	m := &PluginManager{}
	for _, p := range plugins {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register appends a plugin to the chain.
func (m *PluginManager) Register(p Plugin) error {
	for _, existing := range m.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin %q already registered", p.Name())
		}
	}
	m.plugins = append(m.plugins, p)
	return nil
}

// Plugins returns the registered plugins in order.
func (m *PluginManager) Plugins() []Plugin {
	if m == nil {
		return nil
	}
	return append([]Plugin(nil), m.plugins...)
}

func isEmpty[R any](r R) bool {
	v := reflect.ValueOf(&r).Elem()
	return v.IsZero()
}

// runPlugins invokes call on every plugin implementing I and returns the
// first non-empty result.
func runPlugins[I any, R any](m *PluginManager, kind CallbackKind, call func(I) (R, error)) (R, error) {
	var zero R
	if m == nil {
		return zero, nil
	}
	for _, p := range m.plugins {
		impl, ok := p.(I)
		if !ok {
			continue
		}
		r, err := call(impl)
		if err != nil {
			return zero, &CallbackError{Source: p.Name(), Kind: kind, Err: err}
		}
		if !isEmpty(r) {
			return r, nil
		}
	}
	return zero, nil
}

// RunLocalCallbacks invokes agent-local callbacks in order and returns the
// first non-empty result. Failures are labeled "<owner>[<index>]".
func RunLocalCallbacks[F any, R any](owner string, kind CallbackKind, cbs []F, call func(F) (R, error)) (R, error) {
	var zero R
	for i, cb := range cbs {
		r, err := call(cb)
		if err != nil {
			return zero, &CallbackError{Source: fmt.Sprintf("%s[%d]", owner, i), Kind: kind, Err: err}
		}
		if !isEmpty(r) {
			return r, nil
		}
	}
	return zero, nil
}

func runChain[I any, F any, R any](m *PluginManager, kind CallbackKind, owner string, local []F, plugin func(I) (R, error), callLocal func(F) (R, error)) (R, error) {
	r, err := runPlugins(m, kind, plugin)
	if err != nil || !isEmpty(r) {
		return r, err
	}
	return RunLocalCallbacks(owner, kind, local, callLocal)
}

// RunOnUserMessage returns a replacement for msg, or nil to keep it.
func (m *PluginManager) RunOnUserMessage(ic *InvocationContext, msg *Content) (*Content, error) {
	return runPlugins(m, CallbackOnUserMessage, func(p UserMessagePlugin) (*Content, error) {
		return p.OnUserMessage(ic, msg)
	})
}

// RunBeforeRun returns content that ends the invocation early, or nil.
func (m *PluginManager) RunBeforeRun(ic *InvocationContext) (*Content, error) {
	return runPlugins(m, CallbackBeforeRun, func(p BeforeRunPlugin) (*Content, error) {
		return p.BeforeRun(ic)
	})
}

// RunOnEvent returns a replacement for ev, or nil to keep it.
func (m *PluginManager) RunOnEvent(ic *InvocationContext, ev *Event) (*Event, error) {
	return runPlugins(m, CallbackOnEvent, func(p EventPlugin) (*Event, error) {
		return p.OnEvent(ic, ev)
	})
}

// RunAfterRun notifies every plugin; the first failure aborts the chain.
func (m *PluginManager) RunAfterRun(ic *InvocationContext) error {
	_, err := runPlugins(m, CallbackAfterRun, func(p AfterRunPlugin) (*Content, error) {
		return nil, p.AfterRun(ic)
	})
	return err
}

// RunBeforeAgent runs plugins then local callbacks.
func (m *PluginManager) RunBeforeAgent(cc *CallbackContext, agent Agent, local ...BeforeAgentCallback) (*Content, error) {
	return runChain(m, CallbackBeforeAgent, agent.Name(), local,
		func(p BeforeAgentPlugin) (*Content, error) { return p.BeforeAgent(cc, agent) },
		func(cb BeforeAgentCallback) (*Content, error) { return cb(cc) })
}

// RunAfterAgent runs plugins then local callbacks.
func (m *PluginManager) RunAfterAgent(cc *CallbackContext, agent Agent, local ...AfterAgentCallback) (*Content, error) {
	return runChain(m, CallbackAfterAgent, agent.Name(), local,
		func(p AfterAgentPlugin) (*Content, error) { return p.AfterAgent(cc, agent) },
		func(cb AfterAgentCallback) (*Content, error) { return cb(cc) })
}

// RunBeforeModel runs plugins then local callbacks.
func (m *PluginManager) RunBeforeModel(cc *CallbackContext, req *ModelRequest, local ...BeforeModelCallback) (*ModelResponse, error) {
	return runChain(m, CallbackBeforeModel, cc.AgentName(), local,
		func(p BeforeModelPlugin) (*ModelResponse, error) { return p.BeforeModel(cc, req) },
		func(cb BeforeModelCallback) (*ModelResponse, error) { return cb(cc, req) })
}

// RunAfterModel runs plugins then local callbacks.
func (m *PluginManager) RunAfterModel(cc *CallbackContext, resp *ModelResponse, local ...AfterModelCallback) (*ModelResponse, error) {
	return runChain(m, CallbackAfterModel, cc.AgentName(), local,
		func(p AfterModelPlugin) (*ModelResponse, error) { return p.AfterModel(cc, resp) },
		func(cb AfterModelCallback) (*ModelResponse, error) { return cb(cc, resp) })
}

// RunOnModelError runs plugins then local callbacks.
func (m *PluginManager) RunOnModelError(cc *CallbackContext, req *ModelRequest, cause error, local ...OnModelErrorCallback) (*ModelResponse, error) {
	return runChain(m, CallbackOnModelError, cc.AgentName(), local,
		func(p ModelErrorPlugin) (*ModelResponse, error) { return p.OnModelError(cc, req, cause) },
		func(cb OnModelErrorCallback) (*ModelResponse, error) { return cb(cc, req, cause) })
}

// RunBeforeTool runs plugins then local callbacks.
func (m *PluginManager) RunBeforeTool(tc *ToolContext, tool Tool, args map[string]any, local ...BeforeToolCallback) (map[string]any, error) {
	return runChain(m, CallbackBeforeTool, tc.AgentName(), local,
		func(p BeforeToolPlugin) (map[string]any, error) { return p.BeforeTool(tc, tool, args) },
		func(cb BeforeToolCallback) (map[string]any, error) { return cb(tc, tool, args) })
}

// RunAfterTool runs plugins then local callbacks.
func (m *PluginManager) RunAfterTool(tc *ToolContext, tool Tool, args, result map[string]any, local ...AfterToolCallback) (map[string]any, error) {
	return runChain(m, CallbackAfterTool, tc.AgentName(), local,
		func(p AfterToolPlugin) (map[string]any, error) { return p.AfterTool(tc, tool, args, result) },
		func(cb AfterToolCallback) (map[string]any, error) { return cb(tc, tool, args, result) })
}

// RunOnToolError runs plugins then local callbacks.
func (m *PluginManager) RunOnToolError(tc *ToolContext, tool Tool, args map[string]any, cause error, local ...OnToolErrorCallback) (map[string]any, error) {
	return runChain(m, CallbackOnToolError, tc.AgentName(), local,
		func(p ToolErrorPlugin) (map[string]any, error) { return p.OnToolError(tc, tool, args, cause) },
		func(cb OnToolErrorCallback) (map[string]any, error) { return cb(tc, tool, args, cause) })
}
