package agent

import (
	"time"

	"github.com/hupe1980/agentloom/core"
)

// LoopOptions configures a LoopAgent.
type LoopOptions struct {
	BaseOptions
	// MaxIterations bounds the number of passes over the children; zero or
	// less loops until a child escalates or the invocation ends.
	MaxIterations int
	// Interval is an optional pause between passes.
	Interval time.Duration
}

// LoopAgent runs its children in order, repeatedly. Any event carrying
// escalate stops the whole loop right after it was forwarded.
type LoopAgent struct {
	BaseAgent
	maxIterations int
	interval      time.Duration
}

// NewLoopAgent creates a loop operator over children.
func NewLoopAgent(name string, children []core.Agent, optFns ...func(o *LoopOptions)) *LoopAgent {
	opts := LoopOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.SubAgents = children
	return &LoopAgent{
		BaseAgent:     NewBaseAgent(name, func(o *BaseOptions) { *o = opts.BaseOptions }),
		maxIterations: opts.MaxIterations,
		interval:      opts.Interval,
	}
}

// Kind implements core.Agent.
func (l *LoopAgent) Kind() core.AgentKind { return core.KindLoop }

// MaxIterations returns the configured pass limit.
func (l *LoopAgent) MaxIterations() int { return l.maxIterations }

// Run implements core.Agent.
func (l *LoopAgent) Run(ic *core.InvocationContext) *core.EventStream {
	return l.RunLifecycle(ic, l, l.loop)
}

func (l *LoopAgent) loop(ic *core.InvocationContext, yield core.YieldFunc) error {
	if len(l.subAgents) == 0 {
		return nil
	}
	for iter := 0; l.maxIterations <= 0 || iter < l.maxIterations; iter++ {
		if iter > 0 && l.interval > 0 {
			select {
			case <-time.After(l.interval):
			case <-ic.Done():
				return ic.Err()
			}
		}
		ic.LogDebug("agent.loop.iteration", "agent", l.name, "iteration", iter)
		for _, child := range l.subAgents {
			escalated, err := l.runChild(ic, child, yield)
			if err != nil {
				return err
			}
			if escalated {
				ic.LogInfo("agent.loop.escalated", "agent", l.name, "child", child.Name(), "iteration", iter)
				return nil
			}
			if ic.IsEnded() {
				return nil
			}
		}
	}
	return nil
}

func (l *LoopAgent) runChild(ic *core.InvocationContext, child core.Agent, yield core.YieldFunc) (bool, error) {
	s := child.Run(ic)
	for {
		ev, ok := s.Next()
		if !ok {
			return false, s.Wait()
		}
		if err := yield(ev); err != nil {
			s.Close()
			return false, err
		}
		if ev.Actions.Escalate {
			s.Close()
			return true, nil
		}
	}
}
