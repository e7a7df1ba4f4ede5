package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBudgetExceeded is returned once an invocation passes its model call ceiling.
	ErrBudgetExceeded = errors.New("llm call budget exceeded")
	// ErrPartialEvent is returned when a streaming chunk is offered for persistence.
	ErrPartialEvent = errors.New("partial events cannot be appended")
	// ErrSessionNotFound is returned by session stores for unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStreamClosed is returned from yield after the consumer closed the stream.
	ErrStreamClosed = errors.New("event stream closed")
	// ErrAgentNotFound is returned when a name is absent from the agent tree.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrToolExecution marks a tool failure no on-error callback recovered.
	ErrToolExecution = errors.New("tool execution failed")
)

// Stable error codes carried by terminal error events.
const (
	CodeBudgetExceeded  = "BUDGET_EXCEEDED"
	CodeCallbackFailure = "CALLBACK_FAILURE"
	CodeMissingTool     = "MISSING_TOOL"
	CodeReconstruction  = "RECONSTRUCTION_INCONSISTENCY"
	CodeToolExecution   = "TOOL_EXECUTION_FAILURE"
	CodeCancelled       = "CANCELLED"
	CodeAgentFailure    = "AGENT_FAILURE"
)

// CallbackError labels an interceptor failure with the interceptor's name and
// the callback kind it failed in. It aborts the whole chain.
type CallbackError struct {
	Source string
	Kind   CallbackKind
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %s (%s) failed: %v", e.Source, e.Kind, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// MissingToolError reports a function call whose name has no registered tool.
type MissingToolError struct {
	Name      string
	Available []string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("tool %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// ReconstructionError reports function responses whose ids are not covered by
// the matching function call event.
type ReconstructionError struct {
	CallIDs     []string
	ResponseIDs []string
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("function response ids %v do not match call ids %v", e.ResponseIDs, e.CallIDs)
}

// ToolExecutionError wraps the failure of a single tool invocation.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() []error { return []error{ErrToolExecution, e.Err} }

// ErrorCode maps err onto the stable code used in terminal error events.
func ErrorCode(err error) string {
	var (
		cbErr   *CallbackError
		toolErr *MissingToolError
		recErr  *ReconstructionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBudgetExceeded):
		return CodeBudgetExceeded
	case errors.As(err, &cbErr):
		return CodeCallbackFailure
	case errors.As(err, &toolErr):
		return CodeMissingTool
	case errors.As(err, &recErr):
		return CodeReconstruction
	case errors.Is(err, ErrToolExecution):
		return CodeToolExecution
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeAgentFailure
	}
}

// NewErrorEvent builds the terminal event surfaced for a failed invocation.
func NewErrorEvent(invocationID, author, branch string, err error) *Event {
	ev := NewEvent(invocationID, author)
	ev.Branch = branch
	ev.ErrorCode = ErrorCode(err)
	ev.ErrorMessage = err.Error()
	ev.TurnComplete = true
	return ev
}
