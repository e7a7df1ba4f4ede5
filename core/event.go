package core

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// AuthorUser is the author of events that originate from the end user.
const AuthorUser = "user"

// RequestCredentialFunctionName is the reserved function-call name used by the
// engine to ask the client for third-party credentials. Calls and responses
// with this name are protocol plumbing and never shown to a model.
const RequestCredentialFunctionName = "request_credential"

// EventActions encodes side‑effects or orchestration signals attached to an Event.
// The runner and session stores interpret these when the event is appended.
type EventActions struct {
	SkipSummarization    bool           `json:"skip_summarization,omitempty"`
	StateDelta           map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta        map[string]int `json:"artifact_delta,omitempty"`
	TransferToAgent      string         `json:"transfer_to_agent,omitempty"`
	Escalate             bool           `json:"escalate,omitempty"`
	RequestedAuthConfigs map[string]any `json:"requested_auth_configs,omitempty"`
}

// IsEmpty reports whether no side effect is declared.
func (a EventActions) IsEmpty() bool {
	return !a.SkipSummarization && !a.Escalate && a.TransferToAgent == "" &&
		len(a.StateDelta) == 0 && len(a.ArtifactDelta) == 0 && len(a.RequestedAuthConfigs) == 0
}

// Clone returns a deep copy of the actions.
func (a EventActions) Clone() EventActions {
	out := a
	out.StateDelta = CloneMap(a.StateDelta)
	out.RequestedAuthConfigs = CloneMap(a.RequestedAuthConfigs)
	if a.ArtifactDelta != nil {
		out.ArtifactDelta = make(map[string]int, len(a.ArtifactDelta))
		for k, v := range a.ArtifactDelta {
			out.ArtifactDelta[k] = v
		}
	}
	return out
}

// Event is the primary unit of the append-only session log. After it has been
// appended it must be treated as immutable. It captures:
//   - Correlation (ID, InvocationID, Author, Branch)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Long‑running tool hints (LongRunningToolIDs)
//   - Streaming, interruption and error metadata
//
// Content may be nil for control or error-only events. Partial events are
// streaming chunks and are never persisted.
type Event struct {
	ID                 string         `json:"id"`
	InvocationID       string         `json:"invocation_id"`
	Author             string         `json:"author"`
	Branch             string         `json:"branch,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Content            *Content       `json:"content,omitempty"`
	Actions            EventActions   `json:"actions"`
	LongRunningToolIDs []string       `json:"long_running_tool_ids,omitempty"`
	Partial            bool           `json:"partial,omitempty"`
	TurnComplete       bool           `json:"turn_complete,omitempty"`
	Interrupted        bool           `json:"interrupted,omitempty"`
	ErrorCode          string         `json:"error_code,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	CustomMetadata     map[string]any `json:"custom_metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to an invocation.
func NewEvent(invocationID, author string) *Event {
	return &Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
	}
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
func NewUserContentEvent(invocationID string, content *Content) *Event {
	e := NewEvent(invocationID, AuthorUser)
	e.Content = content
	return e
}

// NewID generates a new unique identifier for events and invocations.
func NewID() string { return uuid.NewString() }

// FunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e *Event) FunctionCalls() []FunctionCall {
	if e == nil {
		return nil
	}
	return e.Content.FunctionCalls()
}

// FunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e *Event) FunctionResponses() []FunctionResponse {
	if e == nil || e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// HasTrailingCodeExecutionResult reports whether the last part is a code
// execution result, which the model still has to comment on.
func (e *Event) HasTrailingCodeExecutionResult() bool {
	if e.Content == nil || len(e.Content.Parts) == 0 {
		return false
	}
	_, ok := e.Content.Parts[len(e.Content.Parts)-1].(CodeExecutionResultPart)
	return ok
}

// IsFinalResponse reports whether the event ends an agent's turn: no pending
// tool calls/responses, not partial, or explicitly flagged as final through
// skip-summarization or long-running tool ids.
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization || len(e.LongRunningToolIDs) > 0 {
		return true
	}

	return len(e.FunctionCalls()) == 0 &&
		len(e.FunctionResponses()) == 0 &&
		!e.Partial &&
		!e.HasTrailingCodeExecutionResult()
}

// IsLongRunning reports whether callID is one of the event's long-running calls.
func (e *Event) IsLongRunning(callID string) bool {
	return slices.Contains(e.LongRunningToolIDs, callID)
}

// Clone returns a deep copy of the event. Appended events are shared between
// the session and consumers, so mutation always goes through a clone.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Content = e.Content.Clone()
	out.Actions = e.Actions.Clone()
	out.LongRunningToolIDs = slices.Clone(e.LongRunningToolIDs)
	out.CustomMetadata = CloneMap(e.CustomMetadata)
	return &out
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e *Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
