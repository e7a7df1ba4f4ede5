package tool

import "github.com/hupe1980/agentloom/core"

type exitLoopTool struct{}

// NewExitLoopTool returns a tool that ends the enclosing LoopAgent. It sets
// escalate and skip-summarization on the response event.
func NewExitLoopTool() Tool { return exitLoopTool{} }

func (exitLoopTool) Name() string { return "exit_loop" }

func (exitLoopTool) Description() string {
	return "Exits the loop. Call this function only when you are instructed to do so."
}

func (exitLoopTool) IsLongRunning() bool { return false }

func (t exitLoopTool) Declaration() *core.ToolDeclaration {
	return declaration(t.Name(), t.Description(), map[string]any{"type": "object", "properties": map[string]any{}})
}

func (exitLoopTool) Run(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Escalate()
	tc.SkipSummarization()
	return map[string]any{}, nil
}
