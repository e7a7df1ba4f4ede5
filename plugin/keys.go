package plugin

import "github.com/hupe1980/agentloom/core"

// Keys correlate a before hook with its matching after hook. At most one
// model call runs per agent activation and tool calls are identified by their
// function-call id.

func invocationKey(ic *core.InvocationContext) string { return ic.InvocationID }

func agentKey(cc *core.CallbackContext) string {
	return cc.InvocationID() + "/" + cc.Branch() + "/" + cc.AgentName()
}

func modelKey(cc *core.CallbackContext) string { return agentKey(cc) + "/model" }

func toolKey(tc *core.ToolContext) string {
	return tc.InvocationID() + "/tool/" + tc.FunctionCallID()
}
