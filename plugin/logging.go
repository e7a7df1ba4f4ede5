package plugin

import (
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/logging"
)

// LoggingPluginOptions configures a LoggingPlugin.
type LoggingPluginOptions struct {
	// Logger overrides the invocation's logger.
	Logger logging.Logger
}

// LoggingPlugin logs every extension point at debug level.
type LoggingPlugin struct {
	logger logging.Logger
}

// NewLoggingPlugin creates a LoggingPlugin.
func NewLoggingPlugin(optFns ...func(o *LoggingPluginOptions)) *LoggingPlugin {
	opts := LoggingPluginOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LoggingPlugin{logger: opts.Logger}
}

// Name implements core.Plugin.
func (p *LoggingPlugin) Name() string { return "logging" }

func (p *LoggingPlugin) log(ic *core.InvocationContext, msg string, args ...any) {
	args = append([]any{"invocation", ic.InvocationID}, args...)
	if p.logger != nil {
		p.logger.Debug(msg, args...)
		return
	}
	ic.LogDebug(msg, args...)
}

// OnUserMessage implements core.UserMessagePlugin.
func (p *LoggingPlugin) OnUserMessage(ic *core.InvocationContext, msg *core.Content) (*core.Content, error) {
	p.log(ic, "plugin.user_message", "session", ic.SessionID(), "parts", len(msg.Parts))
	return nil, nil
}

// BeforeRun implements core.BeforeRunPlugin.
func (p *LoggingPlugin) BeforeRun(ic *core.InvocationContext) (*core.Content, error) {
	p.log(ic, "plugin.run.start", "app", ic.AppName(), "user", ic.UserID(), "session", ic.SessionID())
	return nil, nil
}

// OnEvent implements core.EventPlugin.
func (p *LoggingPlugin) OnEvent(ic *core.InvocationContext, ev *core.Event) (*core.Event, error) {
	args := []any{"event", ev.ID, "author", ev.Author, "partial", ev.Partial}
	if ev.Branch != "" {
		args = append(args, "branch", ev.Branch)
	}
	if calls := ev.FunctionCalls(); len(calls) > 0 {
		args = append(args, "function_calls", len(calls))
	}
	if ev.ErrorCode != "" {
		args = append(args, "error_code", ev.ErrorCode)
	}
	p.log(ic, "plugin.event", args...)
	return nil, nil
}

// AfterRun implements core.AfterRunPlugin.
func (p *LoggingPlugin) AfterRun(ic *core.InvocationContext) error {
	p.log(ic, "plugin.run.end", "llm_calls", ic.LLMCallCount())
	return nil
}

// BeforeAgent implements core.BeforeAgentPlugin.
func (p *LoggingPlugin) BeforeAgent(cc *core.CallbackContext, agent core.Agent) (*core.Content, error) {
	p.log(cc.InvocationContext(), "plugin.agent.start", "agent", agent.Name(), "kind", agent.Kind().String(), "branch", cc.Branch())
	return nil, nil
}

// AfterAgent implements core.AfterAgentPlugin.
func (p *LoggingPlugin) AfterAgent(cc *core.CallbackContext, agent core.Agent) (*core.Content, error) {
	p.log(cc.InvocationContext(), "plugin.agent.end", "agent", agent.Name())
	return nil, nil
}

// BeforeModel implements core.BeforeModelPlugin.
func (p *LoggingPlugin) BeforeModel(cc *core.CallbackContext, req *core.ModelRequest) (*core.ModelResponse, error) {
	p.log(cc.InvocationContext(), "plugin.model.request", "agent", cc.AgentName(), "model", req.Model,
		"contents", len(req.Contents), "tools", len(req.Tools))
	return nil, nil
}

// AfterModel implements core.AfterModelPlugin.
func (p *LoggingPlugin) AfterModel(cc *core.CallbackContext, resp *core.ModelResponse) (*core.ModelResponse, error) {
	if resp.Partial {
		return nil, nil
	}
	args := []any{"agent", cc.AgentName(), "finish_reason", resp.FinishReason}
	if resp.Usage != nil {
		args = append(args, "total_tokens", resp.Usage.TotalTokens)
	}
	p.log(cc.InvocationContext(), "plugin.model.response", args...)
	return nil, nil
}

// OnModelError implements core.ModelErrorPlugin.
func (p *LoggingPlugin) OnModelError(cc *core.CallbackContext, req *core.ModelRequest, err error) (*core.ModelResponse, error) {
	p.log(cc.InvocationContext(), "plugin.model.error", "agent", cc.AgentName(), "model", req.Model, "error", err)
	return nil, nil
}

// BeforeTool implements core.BeforeToolPlugin.
func (p *LoggingPlugin) BeforeTool(tc *core.ToolContext, tool core.Tool, args map[string]any) (map[string]any, error) {
	p.log(tc.InvocationContext(), "plugin.tool.start", "tool", tool.Name(), "call", tc.FunctionCallID(), "args", len(args))
	return nil, nil
}

// AfterTool implements core.AfterToolPlugin.
func (p *LoggingPlugin) AfterTool(tc *core.ToolContext, tool core.Tool, _, _ map[string]any) (map[string]any, error) {
	p.log(tc.InvocationContext(), "plugin.tool.end", "tool", tool.Name(), "call", tc.FunctionCallID())
	return nil, nil
}

// OnToolError implements core.ToolErrorPlugin.
func (p *LoggingPlugin) OnToolError(tc *core.ToolContext, tool core.Tool, _ map[string]any, err error) (map[string]any, error) {
	p.log(tc.InvocationContext(), "plugin.tool.error", "tool", tool.Name(), "call", tc.FunctionCallID(), "error", err)
	return nil, nil
}
