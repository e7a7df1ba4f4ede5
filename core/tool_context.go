package core

import "fmt"

// ToolContext provides a constrained, auditable surface for tool
// implementations. It accumulates EventActions (state deltas, transfers,
// escalation signals, artifact diffs, auth requests) that end up on the
// function response event; nothing touches the session directly.
type ToolContext struct {
	*CallbackContext
	functionCallID string
}

// NewToolContext constructs a tool context for one function call.
func NewToolContext(ic *InvocationContext, functionCallID string, actions *EventActions) *ToolContext {
	return &ToolContext{
		CallbackContext: NewCallbackContext(ic, actions),
		functionCallID:  functionCallID,
	}
}

// FunctionCallID returns the id of the call being served.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// SkipSummarization asks the flow not to call the model again with this
// tool's result.
func (tc *ToolContext) SkipSummarization() { tc.actions.SkipSummarization = true }

// TransferToAgent signals orchestration to hand control to another agent.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.actions.TransferToAgent = name
	tc.LogInfo("tool.transfer.request", "from_agent", tc.AgentName(), "to_agent", name, "function_call_id", tc.functionCallID)
}

// Escalate asks the enclosing loop to terminate.
func (tc *ToolContext) Escalate() {
	tc.actions.Escalate = true
	tc.LogInfo("tool.escalate.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// RequestCredential records an auth request for this call. The flow turns it
// into a request_credential function call for the client.
func (tc *ToolContext) RequestCredential(authConfig any) error {
	if tc.functionCallID == "" {
		return fmt.Errorf("request credential: no function call id")
	}
	if tc.actions.RequestedAuthConfigs == nil {
		tc.actions.RequestedAuthConfigs = map[string]any{}
	}
	tc.actions.RequestedAuthConfigs[tc.functionCallID] = authConfig
	return nil
}

// SearchMemory queries the memory store for the current app and user.
func (tc *ToolContext) SearchMemory(query string) ([]MemoryEntry, error) {
	if tc.ic.MemoryStore == nil {
		return nil, fmt.Errorf("memory store not configured")
	}
	return tc.ic.MemoryStore.Search(tc.Context(), tc.ic.AppName(), tc.ic.UserID(), query)
}
