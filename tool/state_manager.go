package tool

import (
	"fmt"

	"github.com/hupe1980/agentloom/core"
)

// StateManagerTool exposes session state, flow control, artifacts and memory
// to a model through a single "operation" argument. Every write goes through
// the ToolContext, so it lands in the response event's actions and is
// committed when the runner appends that event.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool creates a new state management tool.
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Manages session state, agent flow control, artifacts and memory. " +
			"Supports operations: get_state, set_state, transfer_agent, escalate, save_artifact, " +
			"load_artifact, list_artifacts, search_memory, skip_summarization.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StateManagerTool) Description() string { return t.description }

// IsLongRunning always reports false.
func (t *StateManagerTool) IsLongRunning() bool { return false }

// Declaration returns the JSON schema for tool parameters.
func (t *StateManagerTool) Declaration() *core.ToolDeclaration {
	return declaration(t.name, t.description, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					"get_state", "set_state", "transfer_agent", "escalate",
					"save_artifact", "load_artifact", "list_artifacts",
					"search_memory", "skip_summarization",
				},
				"description": "The state management operation to perform",
			},
			"key":        map[string]any{"type": "string", "description": "State key for get_state/set_state (app:, user: and temp: prefixes select the scope)"},
			"value":      map[string]any{"description": "Value for set_state operations (any type)"},
			"agent_name": map[string]any{"type": "string", "description": "Agent name for transfer_agent operation"},
			"filename":   map[string]any{"type": "string", "description": "Artifact filename for artifact operations"},
			"data":       map[string]any{"type": "string", "description": "Text content for save_artifact operation"},
			"version":    map[string]any{"type": "integer", "description": "Artifact version for load_artifact (latest when omitted)"},
			"query":      map[string]any{"type": "string", "description": "Search query for memory operations"},
		},
		"required": []string{"operation"},
	})
}

// Run dispatches the requested operation.
func (t *StateManagerTool) Run(tc *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.handleGetState(args, tc)
	case "set_state":
		return t.handleSetState(args, tc)
	case "transfer_agent":
		return t.handleTransferAgent(args, tc)
	case "escalate":
		tc.Escalate()
		return map[string]any{"success": true, "message": "Escalation initiated"}, nil
	case "save_artifact":
		return t.handleSaveArtifact(args, tc)
	case "load_artifact":
		return t.handleLoadArtifact(args, tc)
	case "list_artifacts":
		return t.handleListArtifacts(tc)
	case "search_memory":
		return t.handleSearchMemory(args, tc)
	case "skip_summarization":
		tc.SkipSummarization()
		return map[string]any{"success": true, "message": "Summarization will be skipped for this interaction"}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func stringArg(args map[string]any, name, operation string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter is required for %s operation", name, operation)
	}
	return v, nil
}

func (t *StateManagerTool) handleGetState(args map[string]any, tc *core.ToolContext) (any, error) {
	key, err := stringArg(args, "key", "get_state")
	if err != nil {
		return nil, err
	}

	value, exists := tc.State().Get(key)
	return map[string]any{"key": key, "exists": exists, "value": value}, nil
}

func (t *StateManagerTool) handleSetState(args map[string]any, tc *core.ToolContext) (any, error) {
	key, err := stringArg(args, "key", "set_state")
	if err != nil {
		return nil, err
	}

	value := args["value"]
	tc.State().Set(key, value)

	return map[string]any{
		"key":     key,
		"value":   value,
		"success": true,
		"message": fmt.Sprintf("State key '%s' set successfully", key),
	}, nil
}

func (t *StateManagerTool) handleTransferAgent(args map[string]any, tc *core.ToolContext) (any, error) {
	agentName, err := stringArg(args, "agent_name", "transfer_agent")
	if err != nil {
		return nil, err
	}

	tc.TransferToAgent(agentName)

	return map[string]any{
		"agent_name": agentName,
		"success":    true,
		"message":    fmt.Sprintf("Transfer to agent '%s' initiated", agentName),
	}, nil
}

func (t *StateManagerTool) handleSaveArtifact(args map[string]any, tc *core.ToolContext) (any, error) {
	filename, err := stringArg(args, "filename", "save_artifact")
	if err != nil {
		return nil, err
	}
	data, _ := args["data"].(string)

	version, err := tc.SaveArtifact(filename, core.Artifact{Data: []byte(data), MimeType: "text/plain"})
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}

	return map[string]any{"filename": filename, "version": version, "size": len(data), "success": true}, nil
}

func (t *StateManagerTool) handleLoadArtifact(args map[string]any, tc *core.ToolContext) (any, error) {
	filename, err := stringArg(args, "filename", "load_artifact")
	if err != nil {
		return nil, err
	}
	version := 0
	switch v := args["version"].(type) {
	case float64:
		version = int(v)
	case int:
		version = v
	}

	artifact, err := tc.LoadArtifact(filename, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	return map[string]any{"filename": filename, "data": string(artifact.Data), "size": len(artifact.Data), "success": true}, nil
}

func (t *StateManagerTool) handleListArtifacts(tc *core.ToolContext) (any, error) {
	artifacts, err := tc.ListArtifacts()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return map[string]any{"artifacts": artifacts, "count": len(artifacts), "success": true}, nil
}

func (t *StateManagerTool) handleSearchMemory(args map[string]any, tc *core.ToolContext) (any, error) {
	query, err := stringArg(args, "query", "search_memory")
	if err != nil {
		return nil, err
	}

	entries, err := tc.SearchMemory(query)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}

	results := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		results = append(results, map[string]any{"author": e.Author, "text": e.Content.Text(), "timestamp": e.Timestamp})
	}

	return map[string]any{"query": query, "count": len(results), "results": results, "success": true}, nil
}
