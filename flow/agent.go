package flow

import (
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/model"
)

// IncludeContents selects how much session history an agent sees.
type IncludeContents int

const (
	// IncludeContentsDefault sends the full, branch-filtered history.
	IncludeContentsDefault IncludeContents = iota
	// IncludeContentsNone sends only the current turn: everything from the
	// latest user message or foreign-agent reply onwards.
	IncludeContentsNone
)

// ModelCallbacks groups the agent-local model interceptors.
type ModelCallbacks struct {
	Before  []core.BeforeModelCallback
	After   []core.AfterModelCallback
	OnError []core.OnModelErrorCallback
}

// ToolCallbacks groups the agent-local tool interceptors.
type ToolCallbacks struct {
	Before  []core.BeforeToolCallback
	After   []core.AfterToolCallback
	OnError []core.OnToolErrorCallback
}

// FlowAgent is the view of an LLM agent the flow needs.
type FlowAgent interface {
	core.Agent

	// ResolveModel returns the model to call, inheriting from ancestors
	// when the agent has none of its own.
	ResolveModel(ic *core.InvocationContext) (model.Model, error)
	// ResolveInstruction returns the agent instruction. bypass reports that
	// the text came from a provider and must not be templated.
	ResolveInstruction(cc *core.CallbackContext) (text string, bypass bool, err error)
	// ResolveGlobalInstruction returns the instruction shared by the whole
	// tree; only the root agent's is used.
	ResolveGlobalInstruction(cc *core.CallbackContext) (text string, bypass bool, err error)

	Tools() []core.Tool
	IncludeContents() IncludeContents
	OutputKey() string
	DisallowTransferToParent() bool
	DisallowTransferToPeers() bool
	ModelCallbacks() ModelCallbacks
	ToolCallbacks() ToolCallbacks
}
