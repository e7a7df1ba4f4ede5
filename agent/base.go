package agent

import (
	"errors"

	"github.com/hupe1980/agentloom/core"
)

// BaseOptions configures the parts of an agent shared by every kind.
type BaseOptions struct {
	Description string
	SubAgents   []core.Agent
	BeforeAgent []core.BeforeAgentCallback
	AfterAgent  []core.AfterAgentCallback
}

// BaseAgent bundles identity, the construction-time child list and the
// before/after agent lifecycle. Embed it in concrete agents and implement
// Kind and Run; Run normally delegates to RunLifecycle.
type BaseAgent struct {
	name        string
	description string
	subAgents   []core.Agent
	beforeAgent []core.BeforeAgentCallback
	afterAgent  []core.AfterAgentCallback
}

// NewBaseAgent constructs a BaseAgent.
func NewBaseAgent(name string, optFns ...func(o *BaseOptions)) BaseAgent {
	opts := BaseOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return BaseAgent{
		name:        name,
		description: opts.Description,
		subAgents:   opts.SubAgents,
		beforeAgent: opts.BeforeAgent,
		afterAgent:  opts.AfterAgent,
	}
}

// Name returns the agent name, unique within its tree.
func (b *BaseAgent) Name() string { return b.name }

// Description returns the description used by transfer instructions.
func (b *BaseAgent) Description() string { return b.description }

// SubAgents returns the children given at construction.
func (b *BaseAgent) SubAgents() []core.Agent { return b.subAgents }

// errInvocationEnded unwinds a body once EndInvocation was observed after a
// yield. It never escapes RunLifecycle.
var errInvocationEnded = errors.New("invocation ended")

// Body is the kind-specific part of an agent run.
type Body func(ic *core.InvocationContext, yield core.YieldFunc) error

// RunLifecycle wraps body with the agent lifecycle:
//
//   - derive the context for self
//   - run the before-agent chain; a returned content is emitted and the body
//     and after-agent chain are skipped
//   - run body, stopping after the current event once the invocation ended
//   - run the after-agent chain and emit its content or state changes
func (b *BaseAgent) RunLifecycle(ic *core.InvocationContext, self core.Agent, body Body) *core.EventStream {
	ic = ic.DeriveForAgent(self)
	return core.NewEventStream(ic.Context, func(yield core.YieldFunc) error {
		ic.LogDebug("agent.run.start", "agent", b.name, "invocation", ic.InvocationID, "branch", ic.Branch)
		defer ic.LogDebug("agent.run.end", "agent", b.name, "invocation", ic.InvocationID)

		skip, err := b.runBeforeAgent(ic, self, yield)
		if err != nil || skip || ic.IsEnded() {
			return err
		}

		guarded := func(ev *core.Event) error {
			if err := yield(ev); err != nil {
				return err
			}
			if ic.IsEnded() {
				return errInvocationEnded
			}
			return nil
		}
		if err := body(ic, guarded); err != nil {
			if errors.Is(err, errInvocationEnded) {
				return nil
			}
			return err
		}
		if ic.IsEnded() {
			return nil
		}
		return b.runAfterAgent(ic, self, yield)
	})
}

func (b *BaseAgent) runBeforeAgent(ic *core.InvocationContext, self core.Agent, yield core.YieldFunc) (bool, error) {
	actions := &core.EventActions{}
	cc := core.NewCallbackContext(ic, actions)
	content, err := ic.Plugins.RunBeforeAgent(cc, self, b.beforeAgent...)
	if err != nil {
		return false, err
	}
	if content != nil {
		ev := callbackEvent(ic, content, actions)
		ic.LogInfo("agent.run.skipped", "agent", b.name, "invocation", ic.InvocationID)
		return true, yield(ev)
	}
	if !actions.IsEmpty() {
		return false, yield(callbackEvent(ic, nil, actions))
	}
	return false, nil
}

func (b *BaseAgent) runAfterAgent(ic *core.InvocationContext, self core.Agent, yield core.YieldFunc) error {
	actions := &core.EventActions{}
	cc := core.NewCallbackContext(ic, actions)
	content, err := ic.Plugins.RunAfterAgent(cc, self, b.afterAgent...)
	if err != nil {
		return err
	}
	if content == nil && actions.IsEmpty() {
		return nil
	}
	return yield(callbackEvent(ic, content, actions))
}

func callbackEvent(ic *core.InvocationContext, content *core.Content, actions *core.EventActions) *core.Event {
	ev := ic.NewEvent()
	if content != nil {
		ev.Content = content.Clone()
		if ev.Content.Role == "" {
			ev.Content.Role = core.RoleModel
		}
	}
	ev.Actions = *actions
	return ev
}
