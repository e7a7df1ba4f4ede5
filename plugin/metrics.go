package plugin

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentloom/core"
)

// MetricsOptions configures a MetricsPlugin.
type MetricsOptions struct {
	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name. Defaults to "agentloom".
	Namespace string
}

// MetricsPlugin exports Prometheus metrics about invocations, model calls,
// tool calls and emitted events.
type MetricsPlugin struct {
	invocations    *prometheus.CounterVec
	invocationTime *prometheus.HistogramVec
	modelCalls     *prometheus.CounterVec
	modelTime      *prometheus.HistogramVec
	tokens         *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolTime       *prometheus.HistogramVec
	events         *prometheus.CounterVec

	started sync.Map // call key -> startMark
}

type startMark struct {
	at    time.Time
	label string
}

// NewMetricsPlugin creates a MetricsPlugin and registers its collectors.
// Registering two plugins with the same namespace on one registerer panics.
func NewMetricsPlugin(optFns ...func(o *MetricsOptions)) *MetricsPlugin {
	opts := MetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "agentloom",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	factory := promauto.With(opts.Registerer)
	ns := opts.Namespace

	return &MetricsPlugin{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "invocations_total",
			Help:      "Invocations by application and outcome",
		}, []string{"app", "status"}),
		invocationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of an invocation",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"app"}),
		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "model_calls_total",
			Help:      "Model calls by agent, model and outcome",
		}, []string{"agent", "model", "status"}),
		modelTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of a model call up to its final response",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"agent", "model"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by models",
		}, []string{"agent", "kind"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome",
		}, []string{"tool", "status"}),
		toolTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "tool_call_duration_seconds",
			Help:      "Latency of a tool call",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Events emitted to consumers",
		}, []string{"author", "kind"}),
	}
}

// Name implements core.Plugin.
func (p *MetricsPlugin) Name() string { return "metrics" }

func (p *MetricsPlugin) mark(key, label string) {
	p.started.Store(key, startMark{at: time.Now(), label: label})
}

func (p *MetricsPlugin) since(key string) (float64, string, bool) {
	v, ok := p.started.LoadAndDelete(key)
	if !ok {
		return 0, "", false
	}
	m := v.(startMark)
	return time.Since(m.at).Seconds(), m.label, true
}

// BeforeRun implements core.BeforeRunPlugin.
func (p *MetricsPlugin) BeforeRun(ic *core.InvocationContext) (*core.Content, error) {
	p.mark(invocationKey(ic), "")
	return nil, nil
}

// OnEvent implements core.EventPlugin.
func (p *MetricsPlugin) OnEvent(_ *core.InvocationContext, ev *core.Event) (*core.Event, error) {
	p.events.WithLabelValues(ev.Author, eventKind(ev)).Inc()
	return nil, nil
}

func eventKind(ev *core.Event) string {
	switch {
	case ev.ErrorCode != "":
		return "error"
	case ev.Partial:
		return "partial"
	case len(ev.FunctionCalls()) > 0:
		return "function_call"
	case len(ev.FunctionResponses()) > 0:
		return "function_response"
	case ev.Content != nil:
		return "content"
	default:
		return "actions"
	}
}

// AfterRun implements core.AfterRunPlugin.
func (p *MetricsPlugin) AfterRun(ic *core.InvocationContext) error {
	status := "ok"
	if ic.Err() != nil {
		status = "cancelled"
	}
	p.invocations.WithLabelValues(ic.AppName(), status).Inc()
	if d, _, ok := p.since(invocationKey(ic)); ok {
		p.invocationTime.WithLabelValues(ic.AppName()).Observe(d)
	}
	return nil
}

// BeforeModel implements core.BeforeModelPlugin.
func (p *MetricsPlugin) BeforeModel(cc *core.CallbackContext, req *core.ModelRequest) (*core.ModelResponse, error) {
	p.mark(modelKey(cc), req.Model)
	return nil, nil
}

// AfterModel implements core.AfterModelPlugin.
func (p *MetricsPlugin) AfterModel(cc *core.CallbackContext, resp *core.ModelResponse) (*core.ModelResponse, error) {
	if resp.Partial {
		return nil, nil
	}
	d, model, ok := p.since(modelKey(cc))
	p.modelCalls.WithLabelValues(cc.AgentName(), model, "ok").Inc()
	if ok {
		p.modelTime.WithLabelValues(cc.AgentName(), model).Observe(d)
	}
	if u := resp.Usage; u != nil {
		p.tokens.WithLabelValues(cc.AgentName(), "prompt").Add(float64(u.PromptTokens))
		p.tokens.WithLabelValues(cc.AgentName(), "completion").Add(float64(u.CompletionTokens))
	}
	return nil, nil
}

// OnModelError implements core.ModelErrorPlugin.
func (p *MetricsPlugin) OnModelError(cc *core.CallbackContext, req *core.ModelRequest, _ error) (*core.ModelResponse, error) {
	p.started.Delete(modelKey(cc))
	p.modelCalls.WithLabelValues(cc.AgentName(), req.Model, "error").Inc()
	return nil, nil
}

// BeforeTool implements core.BeforeToolPlugin.
func (p *MetricsPlugin) BeforeTool(tc *core.ToolContext, _ core.Tool, _ map[string]any) (map[string]any, error) {
	p.mark(toolKey(tc), "")
	return nil, nil
}

// AfterTool implements core.AfterToolPlugin.
func (p *MetricsPlugin) AfterTool(tc *core.ToolContext, tool core.Tool, _, _ map[string]any) (map[string]any, error) {
	p.toolCalls.WithLabelValues(tool.Name(), "ok").Inc()
	if d, _, ok := p.since(toolKey(tc)); ok {
		p.toolTime.WithLabelValues(tool.Name()).Observe(d)
	}
	return nil, nil
}

// OnToolError implements core.ToolErrorPlugin.
func (p *MetricsPlugin) OnToolError(tc *core.ToolContext, tool core.Tool, _ map[string]any, _ error) (map[string]any, error) {
	p.started.Delete(toolKey(tc))
	p.toolCalls.WithLabelValues(tool.Name(), "error").Inc()
	return nil, nil
}
