package tool

import (
	"fmt"

	"github.com/hupe1980/agentloom/core"
)

// TransferToAgentName is the reserved name of the transfer tool.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named agent.
type transferToAgentTool struct{}

// NewTransferToAgentTool constructs the transfer tool instance.
func NewTransferToAgentTool() Tool { return &transferToAgentTool{} }

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the question to another agent. Use when another agent is better suited to answer."
}

func (t *transferToAgentTool) IsLongRunning() bool { return false }

func (t *transferToAgentTool) Declaration() *core.ToolDeclaration {
	return declaration(t.Name(), t.Description(), map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Target agent name"},
		},
		"required": []string{"agent_name"},
	})
}

func (t *transferToAgentTool) Run(tc *core.ToolContext, args map[string]any) (any, error) {
	raw, ok := args["agent_name"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'agent_name'")
	}
	agentName, ok := raw.(string)
	if !ok || agentName == "" {
		return nil, fmt.Errorf("field 'agent_name' must be non-empty string")
	}
	tc.TransferToAgent(agentName)
	return map[string]any{"transferred": true, "agent_name": agentName}, nil
}
