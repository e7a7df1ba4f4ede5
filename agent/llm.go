package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/flow"
	"github.com/hupe1980/agentloom/model"
)

// ErrNoModel is returned when neither an agent nor any of its ancestors
// configures a model.
var ErrNoModel = errors.New("no model configured")

// LLMAgentOptions configures an LLMAgent.
type LLMAgentOptions struct {
	Description string

	// Model is used directly when set. Otherwise ModelName is resolved
	// through Registry; with neither, the nearest ancestor's model is used.
	Model     model.Model
	ModelName string
	Registry  *model.Registry

	Instruction       Instruction
	GlobalInstruction Instruction

	Tools     []core.Tool
	SubAgents []core.Agent

	IncludeContents flow.IncludeContents
	// OutputKey, when set, stores the final response text in session state.
	OutputKey string

	DisallowTransferToParent bool
	DisallowTransferToPeers  bool

	BeforeAgent []core.BeforeAgentCallback
	AfterAgent  []core.AfterAgentCallback
	BeforeModel []core.BeforeModelCallback
	AfterModel  []core.AfterModelCallback
	OnModelErr  []core.OnModelErrorCallback
	BeforeTool  []core.BeforeToolCallback
	AfterTool   []core.AfterToolCallback
	OnToolErr   []core.OnToolErrorCallback

	// RequestProcessors replaces the default request processor chain.
	RequestProcessors []flow.RequestProcessor
}

// LLMAgent is a conversational agent driven by a model. It builds each model
// request from the session history, runs the tools the model calls and can
// hand control to other agents of its tree.
type LLMAgent struct {
	BaseAgent

	model     model.Model
	modelName string
	registry  *model.Registry

	instruction       Instruction
	globalInstruction Instruction
	tools             []core.Tool
	includeContents   flow.IncludeContents
	outputKey         string
	noParent          bool
	noPeers           bool
	modelCallbacks    flow.ModelCallbacks
	toolCallbacks     flow.ToolCallbacks
	flow              *flow.LLMFlow
}

// NewLLMAgent creates an LLMAgent.
func NewLLMAgent(name string, optFns ...func(o *LLMAgentOptions)) *LLMAgent {
	opts := LLMAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var flowOpts []func(o *flow.Options)
	if opts.RequestProcessors != nil {
		flowOpts = append(flowOpts, func(o *flow.Options) { o.RequestProcessors = opts.RequestProcessors })
	}

	return &LLMAgent{
		BaseAgent: NewBaseAgent(name, func(o *BaseOptions) {
			o.Description = opts.Description
			o.SubAgents = opts.SubAgents
			o.BeforeAgent = opts.BeforeAgent
			o.AfterAgent = opts.AfterAgent
		}),
		model:             opts.Model,
		modelName:         opts.ModelName,
		registry:          opts.Registry,
		instruction:       opts.Instruction,
		globalInstruction: opts.GlobalInstruction,
		tools:             opts.Tools,
		includeContents:   opts.IncludeContents,
		outputKey:         opts.OutputKey,
		noParent:          opts.DisallowTransferToParent,
		noPeers:           opts.DisallowTransferToPeers,
		modelCallbacks: flow.ModelCallbacks{
			Before:  opts.BeforeModel,
			After:   opts.AfterModel,
			OnError: opts.OnModelErr,
		},
		toolCallbacks: flow.ToolCallbacks{
			Before:  opts.BeforeTool,
			After:   opts.AfterTool,
			OnError: opts.OnToolErr,
		},
		flow: flow.NewLLMFlow(flowOpts...),
	}
}

// Kind implements core.Agent.
func (a *LLMAgent) Kind() core.AgentKind { return core.KindLLM }

// Run implements core.Agent.
func (a *LLMAgent) Run(ic *core.InvocationContext) *core.EventStream {
	return a.RunLifecycle(ic, a, func(ic *core.InvocationContext, yield core.YieldFunc) error {
		return a.flow.Run(ic, a, yield)
	})
}

// ResolveModel returns the agent's own model, the one its ModelName resolves
// to, or the model of the nearest ancestor that has one.
func (a *LLMAgent) ResolveModel(ic *core.InvocationContext) (model.Model, error) {
	if a.model != nil {
		return a.model, nil
	}
	if a.modelName != "" {
		if a.registry == nil {
			return nil, fmt.Errorf("agent %s: model %q: no registry", a.name, a.modelName)
		}
		m, err := a.registry.Resolve(a.modelName)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
		return m, nil
	}
	if ic.Tree != nil {
		for p := ic.Tree.Parent(a.name); p != nil; p = ic.Tree.Parent(p.Name()) {
			if fa, ok := p.(flow.FlowAgent); ok {
				return fa.ResolveModel(ic)
			}
		}
	}
	return nil, fmt.Errorf("agent %s: %w", a.name, ErrNoModel)
}

// ResolveInstruction implements flow.FlowAgent.
func (a *LLMAgent) ResolveInstruction(cc *core.CallbackContext) (string, bool, error) {
	return a.instruction.Resolve(cc)
}

// ResolveGlobalInstruction implements flow.FlowAgent.
func (a *LLMAgent) ResolveGlobalInstruction(cc *core.CallbackContext) (string, bool, error) {
	return a.globalInstruction.Resolve(cc)
}

// Tools returns the agent's tools.
func (a *LLMAgent) Tools() []core.Tool { return a.tools }

// IncludeContents implements flow.FlowAgent.
func (a *LLMAgent) IncludeContents() flow.IncludeContents { return a.includeContents }

// OutputKey implements flow.FlowAgent.
func (a *LLMAgent) OutputKey() string { return a.outputKey }

// DisallowTransferToParent implements flow.FlowAgent.
func (a *LLMAgent) DisallowTransferToParent() bool { return a.noParent }

// DisallowTransferToPeers implements flow.FlowAgent.
func (a *LLMAgent) DisallowTransferToPeers() bool { return a.noPeers }

// ModelCallbacks implements flow.FlowAgent.
func (a *LLMAgent) ModelCallbacks() flow.ModelCallbacks { return a.modelCallbacks }

// ToolCallbacks implements flow.FlowAgent.
func (a *LLMAgent) ToolCallbacks() flow.ToolCallbacks { return a.toolCallbacks }

var _ flow.FlowAgent = (*LLMAgent)(nil)
