package flow

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentloom/core"
)

// ClientFunctionCallIDPrefix marks function call ids generated by the engine
// for models that do not assign their own. Such ids are stripped again before
// history is sent back to a model.
const ClientFunctionCallIDPrefix = "loom-"

// GenerateClientFunctionCallID returns a fresh engine-generated call id.
func GenerateClientFunctionCallID() string {
	return ClientFunctionCallIDPrefix + core.NewID()
}

// PopulateClientFunctionCallIDs assigns generated ids to every function call
// of ev that has none.
func PopulateClientFunctionCallIDs(ev *core.Event) {
	if ev == nil || ev.Content == nil {
		return
	}
	for i, p := range ev.Content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = GenerateClientFunctionCallID()
			ev.Content.Parts[i] = fc
		}
	}
}

// RemoveClientFunctionCallIDs clears engine-generated ids from the calls and
// responses of c. Model-assigned ids are kept.
func RemoveClientFunctionCallIDs(c *core.Content) {
	if c == nil {
		return
	}
	for i, p := range c.Parts {
		switch v := p.(type) {
		case core.FunctionCallPart:
			if strings.HasPrefix(v.FunctionCall.ID, ClientFunctionCallIDPrefix) {
				v.FunctionCall.ID = ""
				c.Parts[i] = v
			}
		case core.FunctionResponsePart:
			if strings.HasPrefix(v.FunctionResponse.ID, ClientFunctionCallIDPrefix) {
				v.FunctionResponse.ID = ""
				c.Parts[i] = v
			}
		}
	}
}

// LongRunningToolIDs returns the ids of the calls that target long-running tools.
func LongRunningToolIDs(calls []core.FunctionCall, tools map[string]core.Tool) []string {
	var ids []string
	for _, fc := range calls {
		if t, ok := tools[fc.Name]; ok && t.IsLongRunning() {
			ids = append(ids, fc.ID)
		}
	}
	return ids
}

// ToolMap indexes tools by name.
func ToolMap(tools ...core.Tool) map[string]core.Tool {
	m := make(map[string]core.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return m
}

// FunctionCallOptions tunes HandleFunctionCalls.
type FunctionCallOptions struct {
	// Callbacks are the agent-local tool interceptors; plugins always run first.
	Callbacks ToolCallbacks
	// Filter restricts execution to the given call ids. Nil runs every call.
	Filter map[string]bool
}

// HandleFunctionCalls executes the function calls of callEvent concurrently
// and returns one event carrying all their responses, merged in call order.
// It returns nil when there is nothing to report, e.g. every call targeted a
// long-running tool that produced no immediate result. The first fatal
// failure (a missing tool, an interceptor error or a tool error no on-error
// interceptor recovered) is returned after all calls have finished.
func HandleFunctionCalls(ic *core.InvocationContext, callEvent *core.Event, tools map[string]core.Tool, optFns ...func(o *FunctionCallOptions)) (*core.Event, error) {
	opts := FunctionCallOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var calls []core.FunctionCall
	for _, fc := range callEvent.FunctionCalls() {
		if opts.Filter != nil && !opts.Filter[fc.ID] {
			continue
		}
		calls = append(calls, fc)
	}
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]*core.Event, len(calls))
	var g errgroup.Group
	for i, fc := range calls {
		g.Go(func() error {
			ev, err := callTool(ic, fc, tools, opts.Callbacks)
			results[i] = ev
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var responses []*core.Event
	for _, ev := range results {
		if ev != nil {
			responses = append(responses, ev)
		}
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return MergeParallelFunctionResponseEvents(responses), nil
}

func callTool(ic *core.InvocationContext, fc core.FunctionCall, tools map[string]core.Tool, cbs ToolCallbacks) (*core.Event, error) {
	t, ok := tools[fc.Name]
	if !ok {
		available := make([]string, 0, len(tools))
		for name := range tools {
			available = append(available, name)
		}
		slices.Sort(available)
		return nil, &core.MissingToolError{Name: fc.Name, Available: available}
	}

	args := core.CloneMap(fc.Args)
	if args == nil {
		args = map[string]any{}
	}
	actions := &core.EventActions{}
	tc := core.NewToolContext(ic, fc.ID, actions)

	start := time.Now()
	result, err := ic.Plugins.RunBeforeTool(tc, t, args, cbs.Before...)
	if err != nil {
		return nil, err
	}

	if result == nil {
		raw, runErr := runTool(tc, t, args)
		if runErr != nil {
			recovered, cbErr := ic.Plugins.RunOnToolError(tc, t, args, runErr, cbs.OnError...)
			if cbErr != nil {
				return nil, cbErr
			}
			if recovered == nil {
				ic.LogError("agent.function.failed", "agent", ic.AgentName(), "function", fc.Name, "call_id", fc.ID, "error", runErr)
				return nil, &core.ToolExecutionError{Tool: fc.Name, CallID: fc.ID, Err: runErr}
			}
			result = recovered
		} else {
			result = core.NormalizeToolResult(raw)
		}
	}

	altered, err := ic.Plugins.RunAfterTool(tc, t, args, result, cbs.After...)
	if err != nil {
		return nil, err
	}
	if altered != nil {
		result = altered
	}

	ic.LogInfo("agent.function.executed",
		"agent", ic.AgentName(),
		"function", fc.Name,
		"call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if t.IsLongRunning() && len(result) == 0 {
		return nil, nil
	}
	if result == nil {
		result = map[string]any{}
	}

	ev := ic.NewEvent()
	ev.Content = &core.Content{
		Role:  core.RoleUser,
		Parts: []core.Part{core.NewFunctionResponsePart(fc.ID, fc.Name, result)},
	}
	ev.Actions = *actions
	return ev, nil
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("tool panic: %v", p.value)
}

func runTool(tc *core.ToolContext, t core.Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return t.Run(tc, args)
}

// MergeParallelFunctionResponseEvents folds the responses of one model turn
// into a single event. A single input is returned unchanged. Otherwise parts
// are concatenated in input order, state deltas and auth requests are deep
// merged, artifact versions and the transfer target take the last value, and
// escalate / skip-summarization are ORed. The merged event gets a fresh id
// and the first input's timestamp.
func MergeParallelFunctionResponseEvents(events []*core.Event) *core.Event {
	if len(events) == 0 {
		return nil
	}
	if len(events) == 1 {
		return events[0]
	}

	first := events[0]
	merged := core.NewEvent(first.InvocationID, first.Author)
	merged.Branch = first.Branch
	merged.Timestamp = first.Timestamp
	merged.Content = &core.Content{Role: core.RoleUser}

	var actions core.EventActions
	for _, ev := range events {
		if ev.Content != nil {
			merged.Content.Parts = append(merged.Content.Parts, ev.Content.Clone().Parts...)
		}
		a := ev.Actions
		if len(a.StateDelta) > 0 {
			actions.StateDelta = core.DeepMerge(actions.StateDelta, a.StateDelta)
		}
		if len(a.RequestedAuthConfigs) > 0 {
			actions.RequestedAuthConfigs = core.DeepMerge(actions.RequestedAuthConfigs, a.RequestedAuthConfigs)
		}
		for name, version := range a.ArtifactDelta {
			if actions.ArtifactDelta == nil {
				actions.ArtifactDelta = map[string]int{}
			}
			actions.ArtifactDelta[name] = version
		}
		if a.TransferToAgent != "" {
			actions.TransferToAgent = a.TransferToAgent
		}
		actions.Escalate = actions.Escalate || a.Escalate
		actions.SkipSummarization = actions.SkipSummarization || a.SkipSummarization
	}
	merged.Actions = actions
	return merged
}

// GenerateAuthEvent turns the credential requests recorded on a function
// response event into a client-facing event with one request_credential call
// per pending request. It returns nil when no credential was requested.
func GenerateAuthEvent(ic *core.InvocationContext, responseEvent *core.Event) *core.Event {
	if responseEvent == nil || len(responseEvent.Actions.RequestedAuthConfigs) == 0 {
		return nil
	}

	callIDs := make([]string, 0, len(responseEvent.Actions.RequestedAuthConfigs))
	for id := range responseEvent.Actions.RequestedAuthConfigs {
		callIDs = append(callIDs, id)
	}
	slices.Sort(callIDs)

	ev := ic.NewEvent()
	ev.Content = &core.Content{Role: core.RoleModel}
	for _, callID := range callIDs {
		id := GenerateClientFunctionCallID()
		ev.Content.Parts = append(ev.Content.Parts, core.NewFunctionCallPart(id, core.RequestCredentialFunctionName, map[string]any{
			"function_call_id": callID,
			"auth_config":      responseEvent.Actions.RequestedAuthConfigs[callID],
		}))
		ev.LongRunningToolIDs = append(ev.LongRunningToolIDs, id)
	}
	return ev
}
