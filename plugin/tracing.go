package plugin

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloom/core"
)

const tracerName = "github.com/hupe1980/agentloom"

// TracingOptions configures a TracingPlugin.
type TracingOptions struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type openSpan struct {
	ctx  context.Context
	span trace.Span
}

// TracingPlugin records one span per invocation, agent activation, model
// call and tool call. Agent spans are children of the invocation span, model
// and tool spans are children of the agent span that issued them.
type TracingPlugin struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]openSpan
	// span keys per invocation, for the final sweep
	owned map[string]map[string]struct{}
}

// NewTracingPlugin creates a TracingPlugin.
func NewTracingPlugin(optFns ...func(o *TracingOptions)) *TracingPlugin {
	opts := TracingOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &TracingPlugin{
		tracer: opts.TracerProvider.Tracer(tracerName),
		spans:  make(map[string]openSpan),
		owned:  make(map[string]map[string]struct{}),
	}
}

// Name implements core.Plugin.
func (p *TracingPlugin) Name() string { return "tracing" }

func (p *TracingPlugin) start(parent context.Context, invocationID, key, name string, attrs ...attribute.KeyValue) {
	ctx, span := p.tracer.Start(parent, name, trace.WithAttributes(attrs...))

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.spans[key]; ok {
		prev.span.End()
	}
	if p.owned[invocationID] == nil {
		p.owned[invocationID] = make(map[string]struct{})
	}
	p.owned[invocationID][key] = struct{}{}
	p.spans[key] = openSpan{ctx: ctx, span: span}
}

func (p *TracingPlugin) lookup(key string) (openSpan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.spans[key]
	return s, ok
}

func (p *TracingPlugin) end(key string, err error) {
	p.mu.Lock()
	s, ok := p.spans[key]
	delete(p.spans, key)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// parentCtx returns the context of the first open span among keys, or
// fallback.
func (p *TracingPlugin) parentCtx(fallback context.Context, keys ...string) context.Context {
	for _, k := range keys {
		if s, ok := p.lookup(k); ok {
			return s.ctx
		}
	}
	return fallback
}

// BeforeRun implements core.BeforeRunPlugin.
func (p *TracingPlugin) BeforeRun(ic *core.InvocationContext) (*core.Content, error) {
	p.start(ic.Context, ic.InvocationID, invocationKey(ic), "invocation",
		attribute.String("loom.app", ic.AppName()),
		attribute.String("loom.user", ic.UserID()),
		attribute.String("loom.session", ic.SessionID()),
		attribute.String("loom.invocation_id", ic.InvocationID),
	)
	return nil, nil
}

// OnEvent implements core.EventPlugin. Error events mark the invocation span
// as failed.
func (p *TracingPlugin) OnEvent(ic *core.InvocationContext, ev *core.Event) (*core.Event, error) {
	if ev.ErrorCode == "" {
		return nil, nil
	}
	if s, ok := p.lookup(invocationKey(ic)); ok {
		s.span.SetStatus(codes.Error, ev.ErrorCode+": "+ev.ErrorMessage)
	}
	return nil, nil
}

// AfterRun implements core.AfterRunPlugin. Spans left open by short-circuited
// chains are ended here.
func (p *TracingPlugin) AfterRun(ic *core.InvocationContext) error {
	p.mu.Lock()
	keys := p.owned[ic.InvocationID]
	delete(p.owned, ic.InvocationID)
	p.mu.Unlock()

	root := invocationKey(ic)
	for key := range keys {
		if key != root {
			p.end(key, nil)
		}
	}
	if s, ok := p.lookup(root); ok {
		s.span.SetAttributes(attribute.Int("loom.llm_calls", ic.LLMCallCount()))
	}
	p.end(root, nil)
	return nil
}

// BeforeAgent implements core.BeforeAgentPlugin.
func (p *TracingPlugin) BeforeAgent(cc *core.CallbackContext, agent core.Agent) (*core.Content, error) {
	ic := cc.InvocationContext()
	parent := p.parentCtx(cc.Context(), invocationKey(ic))
	p.start(parent, ic.InvocationID, agentKey(cc), "agent "+agent.Name(),
		attribute.String("loom.agent", agent.Name()),
		attribute.String("loom.agent_kind", agent.Kind().String()),
		attribute.String("loom.branch", cc.Branch()),
	)
	return nil, nil
}

// AfterAgent implements core.AfterAgentPlugin.
func (p *TracingPlugin) AfterAgent(cc *core.CallbackContext, _ core.Agent) (*core.Content, error) {
	p.end(agentKey(cc), nil)
	return nil, nil
}

// BeforeModel implements core.BeforeModelPlugin.
func (p *TracingPlugin) BeforeModel(cc *core.CallbackContext, req *core.ModelRequest) (*core.ModelResponse, error) {
	parent := p.parentCtx(cc.Context(), agentKey(cc), invocationKey(cc.InvocationContext()))
	p.start(parent, cc.InvocationID(), modelKey(cc), "model "+req.Model,
		attribute.String("loom.agent", cc.AgentName()),
		attribute.String("loom.model", req.Model),
		attribute.Int("loom.contents", len(req.Contents)),
		attribute.Int("loom.tools", len(req.Tools)),
		attribute.Bool("loom.stream", req.Stream),
	)
	return nil, nil
}

// AfterModel implements core.AfterModelPlugin. Partial responses are recorded
// as span events; the final response ends the span.
func (p *TracingPlugin) AfterModel(cc *core.CallbackContext, resp *core.ModelResponse) (*core.ModelResponse, error) {
	key := modelKey(cc)
	s, ok := p.lookup(key)
	if !ok {
		return nil, nil
	}
	if resp.Partial {
		s.span.AddEvent("partial")
		return nil, nil
	}
	if resp.FinishReason != "" {
		s.span.SetAttributes(attribute.String("loom.finish_reason", resp.FinishReason))
	}
	if u := resp.Usage; u != nil {
		s.span.SetAttributes(
			attribute.Int("loom.tokens.prompt", u.PromptTokens),
			attribute.Int("loom.tokens.completion", u.CompletionTokens),
			attribute.Int("loom.tokens.total", u.TotalTokens),
		)
	}
	p.end(key, nil)
	return nil, nil
}

// OnModelError implements core.ModelErrorPlugin.
func (p *TracingPlugin) OnModelError(cc *core.CallbackContext, _ *core.ModelRequest, err error) (*core.ModelResponse, error) {
	p.end(modelKey(cc), err)
	return nil, nil
}

// BeforeTool implements core.BeforeToolPlugin.
func (p *TracingPlugin) BeforeTool(tc *core.ToolContext, tool core.Tool, _ map[string]any) (map[string]any, error) {
	parent := p.parentCtx(tc.Context(), agentKey(tc.CallbackContext), invocationKey(tc.InvocationContext()))
	p.start(parent, tc.InvocationID(), toolKey(tc), "tool "+tool.Name(),
		attribute.String("loom.agent", tc.AgentName()),
		attribute.String("loom.tool", tool.Name()),
		attribute.String("loom.function_call_id", tc.FunctionCallID()),
	)
	return nil, nil
}

// AfterTool implements core.AfterToolPlugin.
func (p *TracingPlugin) AfterTool(tc *core.ToolContext, _ core.Tool, _, _ map[string]any) (map[string]any, error) {
	p.end(toolKey(tc), nil)
	return nil, nil
}

// OnToolError implements core.ToolErrorPlugin.
func (p *TracingPlugin) OnToolError(tc *core.ToolContext, _ core.Tool, _ map[string]any, err error) (map[string]any, error) {
	p.end(toolKey(tc), err)
	return nil, nil
}
