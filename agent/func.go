package agent

import "github.com/hupe1980/agentloom/core"

// FuncAgent turns a plain function into an agent. The function runs inside
// the regular lifecycle, so agent callbacks and plugins still apply.
type FuncAgent struct {
	BaseAgent
	fn Body
}

// NewFuncAgent creates a custom agent backed by fn.
func NewFuncAgent(name string, fn Body, optFns ...func(o *BaseOptions)) *FuncAgent {
	return &FuncAgent{BaseAgent: NewBaseAgent(name, optFns...), fn: fn}
}

// Kind implements core.Agent.
func (f *FuncAgent) Kind() core.AgentKind { return core.KindCustom }

// Run implements core.Agent.
func (f *FuncAgent) Run(ic *core.InvocationContext) *core.EventStream {
	return f.RunLifecycle(ic, f, f.fn)
}
