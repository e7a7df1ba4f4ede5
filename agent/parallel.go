package agent

import (
	"context"
	"time"

	"github.com/hupe1980/agentloom/core"
)

// ParallelOptions configures a ParallelAgent.
type ParallelOptions struct {
	BaseOptions
	// Timeout bounds the whole fan-out; zero means no limit.
	Timeout time.Duration
}

// ParallelAgent runs its children concurrently. Each child gets its own
// branch ("<branch>.<name>.<child>") so siblings do not see each other's
// history. Events are forwarded first-ready-first: a child that yielded is
// not resumed until the consumer pulled its event. The operator completes
// once every child completed.
type ParallelAgent struct {
	BaseAgent
	timeout time.Duration
}

// NewParallelAgent creates a parallel operator over children.
func NewParallelAgent(name string, children []core.Agent, optFns ...func(o *ParallelOptions)) *ParallelAgent {
	opts := ParallelOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.SubAgents = children
	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name, func(o *BaseOptions) { *o = opts.BaseOptions }),
		timeout:   opts.Timeout,
	}
}

// Kind implements core.Agent.
func (p *ParallelAgent) Kind() core.AgentKind { return core.KindParallel }

// fanItem carries one child event, or the child's completion, to the merge
// loop. ack is closed once the event has been handed downstream.
type fanItem struct {
	child string
	ev    *core.Event
	err   error
	done  bool
	ack   chan struct{}
}

// Run implements core.Agent.
func (p *ParallelAgent) Run(ic *core.InvocationContext) *core.EventStream {
	return p.RunLifecycle(ic, p, p.fanOut)
}

func (p *ParallelAgent) fanOut(ic *core.InvocationContext, yield core.YieldFunc) error {
	if len(p.subAgents) == 0 {
		return nil
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ic.Context, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ic.Context)
	}
	defer cancel()

	items := make(chan fanItem)
	streams := make([]*core.EventStream, len(p.subAgents))
	for i, child := range p.subAgents {
		childCtx := ic.WithContext(ctx).DeriveForBranch(p.name, child.Name())
		streams[i] = child.Run(childCtx)
		go pump(ctx, child.Name(), streams[i], items)
	}
	defer func() {
		for _, s := range streams {
			s.Close()
		}
	}()

	remaining := len(streams)
	for remaining > 0 {
		var it fanItem
		select {
		case it = <-items:
		case <-ctx.Done():
			return ctx.Err()
		}
		if it.done {
			remaining--
			if it.err != nil {
				ic.LogError("agent.parallel.child_failed", "agent", p.name, "child", it.child, "error", it.err)
				return it.err
			}
			continue
		}
		err := yield(it.ev)
		close(it.ack)
		if err != nil {
			return err
		}
	}
	return nil
}

// pump pulls one child stream and hands its events to the merge loop,
// waiting for each to be acknowledged before pulling the next.
func pump(ctx context.Context, name string, s *core.EventStream, items chan<- fanItem) {
	for {
		ev, ok := s.Next()
		if !ok {
			select {
			case items <- fanItem{child: name, done: true, err: s.Wait()}:
			case <-ctx.Done():
			}
			return
		}
		ack := make(chan struct{})
		select {
		case items <- fanItem{child: name, ev: ev, ack: ack}:
		case <-ctx.Done():
			return
		}
		select {
		case <-ack:
		case <-ctx.Done():
			return
		}
	}
}
