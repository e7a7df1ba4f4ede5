package flow

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/hupe1980/agentloom/core"
)

// BuildContents reconstructs the model-facing conversation for agentName on
// branch from the session log:
//
//  1. events without content, or whose first part is empty text, are dropped
//  2. events not visible from branch are dropped
//  3. credential request plumbing is dropped
//  4. other agents' events are rewritten as user-role context
//  5. a trailing function response is moved next to its call
//  6. every other function response is moved next to its call
//  7. engine-generated call ids are stripped
//
// The result is always a fresh copy; events are never mutated.
func BuildContents(branch string, events []*core.Event, agentName string) ([]core.Content, error) {
	filtered := make([]*core.Event, 0, len(events))
	for _, ev := range events {
		if isEmptyContent(ev) {
			continue
		}
		if !core.BranchVisible(ev.Branch, branch) {
			continue
		}
		if isAuthEvent(ev) {
			continue
		}
		if isOtherAgentReply(agentName, ev) {
			ev = convertForeignEvent(ev)
		}
		filtered = append(filtered, ev)
	}

	rearranged, err := rearrangeLatestFunctionResponse(filtered)
	if err != nil {
		return nil, err
	}
	rearranged = rearrangeHistoryFunctionResponses(rearranged)

	contents := make([]core.Content, 0, len(rearranged))
	for _, ev := range rearranged {
		c := ev.Content.Clone()
		RemoveClientFunctionCallIDs(c)
		contents = append(contents, *c)
	}
	return contents, nil
}

// BuildCurrentTurnContents is BuildContents restricted to the current turn:
// the suffix of events starting at the latest user message or foreign-agent
// reply visible from branch. Events BuildContents would drop never start a
// turn. It returns no contents when there is no such event.
func BuildCurrentTurnContents(branch string, events []*core.Event, agentName string) ([]core.Content, error) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if isEmptyContent(ev) || !core.BranchVisible(ev.Branch, branch) || isAuthEvent(ev) {
			continue
		}
		if ev.Author == core.AuthorUser || isOtherAgentReply(agentName, ev) {
			return BuildContents(branch, events[i:], agentName)
		}
	}
	return []core.Content{}, nil
}

func isEmptyContent(ev *core.Event) bool {
	if ev.Content == nil || ev.Content.Role == "" || len(ev.Content.Parts) == 0 {
		return true
	}
	tp, ok := ev.Content.Parts[0].(core.TextPart)
	return ok && tp.Text == ""
}

func isAuthEvent(ev *core.Event) bool {
	for _, p := range ev.Content.Parts {
		switch v := p.(type) {
		case core.FunctionCallPart:
			if v.FunctionCall.Name == core.RequestCredentialFunctionName {
				return true
			}
		case core.FunctionResponsePart:
			if v.FunctionResponse.Name == core.RequestCredentialFunctionName {
				return true
			}
		}
	}
	return false
}

func isOtherAgentReply(agentName string, ev *core.Event) bool {
	return agentName != "" && ev.Author != agentName && ev.Author != core.AuthorUser
}

// convertForeignEvent presents another agent's event as user-provided context
// so the current model does not mistake it for its own output.
func convertForeignEvent(ev *core.Event) *core.Event {
	content := &core.Content{
		Role:  core.RoleUser,
		Parts: []core.Part{core.TextPart{Text: "For context:"}},
	}
	for _, p := range ev.Content.Parts {
		switch v := p.(type) {
		case core.TextPart:
			if v.Text == "" {
				continue
			}
			content.Parts = append(content.Parts, core.TextPart{Text: fmt.Sprintf("[%s] said: %s", ev.Author, v.Text)})
		case core.FunctionCallPart:
			content.Parts = append(content.Parts, core.TextPart{Text: fmt.Sprintf("[%s] called tool `%s` with parameters: %s",
				ev.Author, v.FunctionCall.Name, compactJSON(v.FunctionCall.Args))})
		case core.FunctionResponsePart:
			content.Parts = append(content.Parts, core.TextPart{Text: fmt.Sprintf("[%s] `%s` tool returned result: %s",
				ev.Author, v.FunctionResponse.Name, compactJSON(v.FunctionResponse.Response))})
		default:
			content.Parts = append(content.Parts, p)
		}
	}

	out := core.NewEvent(ev.InvocationID, core.AuthorUser)
	out.Timestamp = ev.Timestamp
	out.Branch = ev.Branch
	out.Content = content
	return out
}

func compactJSON(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func responseIDs(ev *core.Event) map[string]bool {
	ids := map[string]bool{}
	for _, fr := range ev.FunctionResponses() {
		ids[fr.ID] = true
	}
	return ids
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// rearrangeLatestFunctionResponse moves the trailing function response event
// (together with any earlier responses to the same call event) directly
// behind its call event, discarding what sat in between.
func rearrangeLatestFunctionResponse(events []*core.Event) ([]*core.Event, error) {
	if len(events) == 0 {
		return events, nil
	}
	last := events[len(events)-1]
	wanted := responseIDs(last)
	if len(wanted) == 0 {
		return events, nil
	}

	if len(events) >= 2 {
		for _, fc := range events[len(events)-2].FunctionCalls() {
			if wanted[fc.ID] {
				return events, nil
			}
		}
	}

	callIdx := -1
	for i := len(events) - 2; i >= 0 && callIdx < 0; i-- {
		calls := events[i].FunctionCalls()
		for _, fc := range calls {
			if !wanted[fc.ID] {
				continue
			}
			callIdx = i
			callIDs := map[string]bool{}
			for _, c := range calls {
				callIDs[c.ID] = true
			}
			for id := range wanted {
				if !callIDs[id] {
					return nil, &core.ReconstructionError{CallIDs: sortedKeys(callIDs), ResponseIDs: sortedKeys(wanted)}
				}
			}
			wanted = callIDs
			break
		}
	}
	if callIdx < 0 {
		return nil, &core.ReconstructionError{ResponseIDs: sortedKeys(wanted)}
	}

	var responses []*core.Event
	for _, ev := range events[callIdx+1 : len(events)-1] {
		for _, fr := range ev.FunctionResponses() {
			if wanted[fr.ID] {
				responses = append(responses, ev)
				break
			}
		}
	}
	responses = append(responses, last)

	out := slices.Clone(events[:callIdx+1])
	return append(out, mergeFunctionResponseEvents(responses)), nil
}

// rearrangeHistoryFunctionResponses places every response event immediately
// after the call event it answers. Responses without a matching call are
// dropped.
func rearrangeHistoryFunctionResponses(events []*core.Event) []*core.Event {
	responseIdx := map[string]int{}
	for i, ev := range events {
		for _, fr := range ev.FunctionResponses() {
			responseIdx[fr.ID] = i
		}
	}

	out := make([]*core.Event, 0, len(events))
	for _, ev := range events {
		if len(ev.FunctionResponses()) > 0 {
			continue
		}
		out = append(out, ev)

		calls := ev.FunctionCalls()
		if len(calls) == 0 {
			continue
		}
		seen := map[int]bool{}
		var indices []int
		for _, fc := range calls {
			if idx, ok := responseIdx[fc.ID]; ok && !seen[idx] {
				seen[idx] = true
				indices = append(indices, idx)
			}
		}
		switch len(indices) {
		case 0:
		case 1:
			out = append(out, events[indices[0]])
		default:
			slices.Sort(indices)
			group := make([]*core.Event, len(indices))
			for i, idx := range indices {
				group[i] = events[idx]
			}
			out = append(out, mergeFunctionResponseEvents(group))
		}
	}
	return out
}

// mergeFunctionResponseEvents combines response events for history
// reconstruction. A later response for an id replaces the earlier one in
// place; everything else is appended.
func mergeFunctionResponseEvents(events []*core.Event) *core.Event {
	merged := events[0].Clone()
	index := map[string]int{}
	for i, p := range merged.Content.Parts {
		if fr, ok := p.(core.FunctionResponsePart); ok {
			index[fr.FunctionResponse.ID] = i
		}
	}
	for _, ev := range events[1:] {
		for _, p := range ev.Content.Clone().Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok {
				merged.Content.Parts = append(merged.Content.Parts, p)
				continue
			}
			if i, ok := index[fr.FunctionResponse.ID]; ok {
				merged.Content.Parts[i] = p
				continue
			}
			merged.Content.Parts = append(merged.Content.Parts, p)
			index[fr.FunctionResponse.ID] = len(merged.Content.Parts) - 1
		}
	}
	return merged
}
