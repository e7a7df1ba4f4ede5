package core

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/agentloom/logging"
)

// RunConfig carries per-run tuning knobs.
type RunConfig struct {
	// MaxLLMCalls bounds model calls per invocation; <= 0 means unbounded.
	MaxLLMCalls int
	// Streaming requests partial responses from model backends.
	Streaming bool
	// BufferSize is the capacity of the channel between a model backend and
	// the flow consuming it.
	BufferSize int
}

// InvocationContext is one node of the invocation tree: the execution scope
// of a single agent activation. It aggregates:
//   - The ambient cancellation Context
//   - The invocation id shared by every event of one top-level run
//   - The dotted Branch path used for history visibility
//   - The active Agent and the arena Tree used to resolve other agents
//   - The live Session plus session, artifact and memory stores
//   - The shared plugin chain, call budget, end flag and temp state
//
// Derivation (DeriveForAgent, DeriveForBranch) returns shallow copies: the
// budget, end flag, temp state and plugin chain are shared by the whole tree.
type InvocationContext struct {
	Context       context.Context
	InvocationID  string
	Branch        string
	Agent         Agent
	UserContent   *Content
	Session       *Session
	SessionStore  SessionStore
	ArtifactStore ArtifactStore
	MemoryStore   MemoryStore
	Plugins       *PluginManager
	Tree          *AgentTree
	RunConfig     RunConfig

	budget *CallBudget
	ended  *atomic.Bool
	temp   *TempState

	*loggerAdapter
}

// InvocationOptions configures NewInvocationContext.
type InvocationOptions struct {
	InvocationID  string
	UserContent   *Content
	SessionStore  SessionStore
	ArtifactStore ArtifactStore
	MemoryStore   MemoryStore
	Plugins       *PluginManager
	Tree          *AgentTree
	RunConfig     RunConfig
	Logger        logging.Logger
}

// NewInvocationContext creates the root context of a top-level run.
func NewInvocationContext(ctx context.Context, sess *Session, optFns ...func(o *InvocationOptions)) *InvocationContext {
	opts := InvocationOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.InvocationID == "" {
		opts.InvocationID = "e-" + NewID()
	}
	if opts.Plugins == nil {
		opts.Plugins = &PluginManager{}
	}

	ic := &InvocationContext{
		Context:       ctx,
		InvocationID:  opts.InvocationID,
		UserContent:   opts.UserContent,
		Session:       sess,
		SessionStore:  opts.SessionStore,
		ArtifactStore: opts.ArtifactStore,
		MemoryStore:   opts.MemoryStore,
		Plugins:       opts.Plugins,
		Tree:          opts.Tree,
		RunConfig:     opts.RunConfig,
		budget:        NewCallBudget(opts.RunConfig.MaxLLMCalls),
		ended:         &atomic.Bool{},
		temp:          NewTempState(),
	}
	if ic.Tree != nil {
		ic.Agent = ic.Tree.Root()
	}
	ic.loggerAdapter = newLoggerAdapter(logging.With(opts.Logger, "invocation", ic.InvocationID))
	return ic
}

// AppName returns the app the session belongs to.
func (ic *InvocationContext) AppName() string {
	if ic.Session == nil {
		return ""
	}
	return ic.Session.AppName
}

// UserID returns the user the session belongs to.
func (ic *InvocationContext) UserID() string {
	if ic.Session == nil {
		return ""
	}
	return ic.Session.UserID
}

// SessionID returns the session identifier.
func (ic *InvocationContext) SessionID() string {
	if ic.Session == nil {
		return ""
	}
	return ic.Session.ID
}

// AgentName returns the active agent's name.
func (ic *InvocationContext) AgentName() string {
	if ic.Agent == nil {
		return ""
	}
	return ic.Agent.Name()
}

// DeriveForAgent returns a copy with the active agent replaced.
func (ic *InvocationContext) DeriveForAgent(agent Agent) *InvocationContext {
	c := *ic
	c.Agent = agent
	return &c
}

// DeriveForBranch returns a copy whose branch is extended by
// "<operator>.<child>". Parallel fan-out uses it to isolate siblings.
func (ic *InvocationContext) DeriveForBranch(operator, child string) *InvocationContext {
	c := *ic
	c.Branch = JoinBranch(ic.Branch, operator, child)
	return &c
}

// WithContext returns a copy bound to ctx.
func (ic *InvocationContext) WithContext(ctx context.Context) *InvocationContext {
	c := *ic
	c.Context = ctx
	return &c
}

// IncrementLLMCallCount counts one model call against the shared budget.
func (ic *InvocationContext) IncrementLLMCallCount() error {
	return ic.budget.Increment()
}

// LLMCallCount returns the model calls made so far in this invocation.
func (ic *InvocationContext) LLMCallCount() int { return ic.budget.Count() }

// EndInvocation asks every agent wrapper to stop after the current event.
func (ic *InvocationContext) EndInvocation() { ic.ended.Store(true) }

// IsEnded reports whether EndInvocation was called anywhere in the tree.
func (ic *InvocationContext) IsEnded() bool { return ic.ended.Load() }

// TempState returns the invocation-scoped temp: layer.
func (ic *InvocationContext) TempState() *TempState { return ic.temp }

// State returns a read view over the committed session state and the temp
// layer, with actions as its delta buffer (nil for a read-only view).
func (ic *InvocationContext) State(actions *EventActions) *State {
	return NewState(ic.Session, ic.temp, actions)
}

// Events returns the session's event log.
func (ic *InvocationContext) Events() []*Event {
	if ic.Session == nil {
		return nil
	}
	return ic.Session.GetEvents()
}

// NewEvent creates an event authored by the active agent on the current branch.
func (ic *InvocationContext) NewEvent() *Event {
	ev := NewEvent(ic.InvocationID, ic.AgentName())
	ev.Branch = ic.Branch
	return ev
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }
