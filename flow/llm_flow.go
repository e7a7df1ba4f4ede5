package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/tool"
)

// Options configures an LLMFlow.
type Options struct {
	// RequestProcessors replaces the default processor chain.
	RequestProcessors []RequestProcessor
}

// LLMFlow runs the request/response loop of one LLM agent until the model
// produces a final response, the invocation is ended or control is
// transferred to another agent.
type LLMFlow struct {
	processors []RequestProcessor
}

// NewLLMFlow creates a flow with the default request processors.
func NewLLMFlow(optFns ...func(o *Options)) *LLMFlow {
	opts := Options{RequestProcessors: DefaultRequestProcessors()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLMFlow{processors: opts.RequestProcessors}
}

// Run drives agent within ic, handing every event to yield.
func (f *LLMFlow) Run(ic *core.InvocationContext, agent FlowAgent, yield core.YieldFunc) error {
	for {
		last, handedOff, err := f.runOneStep(ic, agent, yield)
		if err != nil {
			return err
		}
		if handedOff || last == nil || last.IsFinalResponse() || last.Partial {
			return nil
		}
		if ic.IsEnded() {
			return nil
		}
		if err := ic.Err(); err != nil {
			return err
		}
	}
}

// runOneStep performs one model call and handles its function calls. It
// returns the last event it yielded and whether control was handed to
// another agent.
func (f *LLMFlow) runOneStep(ic *core.InvocationContext, agent FlowAgent, yield core.YieldFunc) (*core.Event, bool, error) {
	req := &core.ModelRequest{}
	for _, p := range f.processors {
		if err := p.ProcessRequest(ic, req, agent); err != nil {
			return nil, false, fmt.Errorf("request processor %s: %w", p.Name(), err)
		}
	}
	if ic.IsEnded() {
		return nil, false, nil
	}

	tools := ToolMap(agent.Tools()...)
	if len(TransferTargets(ic.Tree, agent)) > 0 {
		if _, ok := tools[tool.TransferToAgentName]; !ok {
			tools[tool.TransferToAgentName] = tool.NewTransferToAgentTool()
		}
	}

	var last *core.Event
	err := f.callModel(ic, agent, req, func(resp *core.ModelResponse, actions *core.EventActions) error {
		ev := f.finalizeModelResponse(ic, agent, resp, actions, tools)
		last = ev
		return yield(ev)
	})
	if err != nil {
		return nil, false, err
	}
	if last == nil || last.Partial || len(last.FunctionCalls()) == 0 {
		return last, false, nil
	}

	responseEvent, err := HandleFunctionCalls(ic, last, tools, func(o *FunctionCallOptions) {
		o.Callbacks = agent.ToolCallbacks()
	})
	if err != nil {
		return nil, false, err
	}
	if responseEvent == nil {
		return last, false, nil
	}

	if authEvent := GenerateAuthEvent(ic, responseEvent); authEvent != nil {
		if err := yield(authEvent); err != nil {
			return nil, false, err
		}
	}
	if err := yield(responseEvent); err != nil {
		return nil, false, err
	}

	target := responseEvent.Actions.TransferToAgent
	if target == "" {
		return responseEvent, false, nil
	}
	next := ic.Tree.Find(target)
	if next == nil {
		return nil, false, fmt.Errorf("transfer to %q: %w", target, core.ErrAgentNotFound)
	}
	ic.LogInfo("agent.transfer", "from_agent", agent.Name(), "to_agent", target)
	if err := core.Forward(next.Run(ic), yield); err != nil {
		return nil, false, err
	}
	return responseEvent, true, nil
}

// callModel runs the model interceptor chain around one model call and hands
// each response, paired with the actions the interceptors accumulated, to
// emit.
func (f *LLMFlow) callModel(ic *core.InvocationContext, agent FlowAgent, req *core.ModelRequest,
	emit func(*core.ModelResponse, *core.EventActions) error) error {
	cbs := agent.ModelCallbacks()
	actions := &core.EventActions{}
	cc := core.NewCallbackContext(ic, actions)

	resp, err := ic.Plugins.RunBeforeModel(cc, req, cbs.Before...)
	if err != nil {
		return err
	}
	if resp != nil {
		return emit(resp, actions)
	}

	if err := ic.IncrementLLMCallCount(); err != nil {
		return err
	}

	m, err := agent.ResolveModel(ic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ic.Context)
	defer cancel()

	ic.LogDebug("agent.model.call", "agent", agent.Name(), "model", req.Model, "contents", len(req.Contents), "tools", len(req.Tools))
	respCh, errCh := m.Generate(ctx, req)
	for resp := range respCh {
		altered, err := ic.Plugins.RunAfterModel(cc, resp, cbs.After...)
		if err != nil {
			return err
		}
		if altered != nil {
			resp = altered
		}
		if err := emit(resp, actions); err != nil {
			return err
		}
	}

	if genErr := <-errCh; genErr != nil {
		recovered, err := ic.Plugins.RunOnModelError(cc, req, genErr, cbs.OnError...)
		if err != nil {
			return err
		}
		if recovered == nil {
			return fmt.Errorf("model %s: %w", req.Model, genErr)
		}
		return emit(recovered, actions)
	}
	return nil
}

// finalizeModelResponse converts a model response into an event. Interceptor
// actions ride on the first non-partial event only.
func (f *LLMFlow) finalizeModelResponse(ic *core.InvocationContext, agent FlowAgent, resp *core.ModelResponse,
	actions *core.EventActions, tools map[string]core.Tool) *core.Event {
	ev := ic.NewEvent()
	ev.Content = resp.Content.Clone()
	ev.Partial = resp.Partial
	ev.TurnComplete = resp.TurnComplete
	ev.Interrupted = resp.Interrupted
	ev.ErrorCode = resp.ErrorCode
	ev.ErrorMessage = resp.ErrorMessage
	ev.CustomMetadata = core.CloneMap(resp.CustomMetadata)
	if ev.Content != nil && ev.Content.Role == "" {
		ev.Content.Role = core.RoleModel
	}
	if resp.Usage != nil {
		if ev.CustomMetadata == nil {
			ev.CustomMetadata = map[string]any{}
		}
		ev.CustomMetadata["usage"] = map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}
	if ev.Partial {
		return ev
	}

	ev.Actions = *actions
	*actions = core.EventActions{}

	if calls := ev.FunctionCalls(); len(calls) > 0 {
		PopulateClientFunctionCallIDs(ev)
		ev.LongRunningToolIDs = LongRunningToolIDs(ev.FunctionCalls(), tools)
	}

	if key := agent.OutputKey(); key != "" && ev.IsFinalResponse() && ev.Content != nil {
		var sb strings.Builder
		for _, p := range ev.Content.Parts {
			if tp, ok := p.(core.TextPart); ok {
				sb.WriteString(tp.Text)
			}
		}
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		ev.Actions.StateDelta[key] = sb.String()
	}
	return ev
}
