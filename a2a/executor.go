package a2a

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/runner"
)

// EventWriter receives the outbound events of a task in order.
type EventWriter func(ev OutboundEvent) error

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// UserID is used for sessions when a message carries no "user_id"
	// metadata.
	UserID string
}

// Executor serves protocol tasks with a Runner. The message's context id is
// the session id, so the runner is normally created with AutoCreateSession.
// Every task ends with exactly one final status update.
type Executor struct {
	runner *runner.Runner
	userID string

	mu    sync.Mutex
	tasks map[string]string // task id -> invocation id
}

// NewExecutor creates an executor backed by r.
func NewExecutor(r *runner.Runner, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{UserID: "a2a"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{runner: r, userID: opts.UserID, tasks: make(map[string]string)}
}

// Execute runs the agent for msg and writes the converted events to w.
func (e *Executor) Execute(ctx context.Context, msg *Message, w EventWriter) error {
	inbound, err := ConvertMessage(msg)
	if err != nil {
		return err
	}
	taskID := msg.TaskID
	if taskID == "" {
		taskID = core.NewID()
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = core.NewID()
	}
	userID := e.userID
	if u, ok := msg.Metadata["user_id"].(string); ok && u != "" {
		userID = u
	}

	if err := w(NewStatusUpdate(taskID, contextID, TaskStateSubmitted, msg, false)); err != nil {
		return err
	}

	stream, err := e.runner.Run(ctx, userID, contextID, inbound.Content)
	if err != nil {
		return fmt.Errorf("start task %s: %w", taskID, err)
	}
	defer stream.Close()
	defer e.forget(taskID)

	agg := NewTaskStateAggregator()
	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		e.remember(taskID, ev.InvocationID)
		for _, out := range ConvertEvent(ev, taskID, contextID) {
			agg.Observe(out)
			if err := w(out); err != nil {
				return err
			}
		}
	}
	if err := stream.Wait(); err != nil {
		return err
	}

	final := agg.Final()
	var finalMsg *Message
	if final != TaskStateCompleted {
		finalMsg = agg.Message()
	}
	return w(NewStatusUpdate(taskID, contextID, final, finalMsg, true))
}

// Cancel stops the invocation serving taskID.
func (e *Executor) Cancel(taskID string) error {
	e.mu.Lock()
	invocationID, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: task %s", runner.ErrInvocationNotFound, taskID)
	}
	return e.runner.Cancel(invocationID)
}

func (e *Executor) remember(taskID, invocationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[taskID]; !ok {
		e.tasks[taskID] = invocationID
	}
}

func (e *Executor) forget(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tasks, taskID)
}
