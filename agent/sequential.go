package agent

import "github.com/hupe1980/agentloom/core"

// SequentialAgent runs its children one after another in declaration order.
// Every child sees the events and state committed by the ones before it.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential operator over children.
func NewSequentialAgent(name string, children []core.Agent, optFns ...func(o *BaseOptions)) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name, append(optFns, func(o *BaseOptions) { o.SubAgents = children })...),
	}
}

// Kind implements core.Agent.
func (s *SequentialAgent) Kind() core.AgentKind { return core.KindSequential }

// Run implements core.Agent.
func (s *SequentialAgent) Run(ic *core.InvocationContext) *core.EventStream {
	return s.RunLifecycle(ic, s, func(ic *core.InvocationContext, yield core.YieldFunc) error {
		for _, child := range s.subAgents {
			if err := core.Forward(child.Run(ic), yield); err != nil {
				return err
			}
			if ic.IsEnded() {
				return nil
			}
		}
		return nil
	})
}
