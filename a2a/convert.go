package a2a

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentloom/core"
)

// Metadata keys attached to converted parts and events.
const (
	MetaType         = "loom_type"
	MetaAuthor       = "loom_author"
	MetaInvocationID = "loom_invocation_id"
	MetaBranch       = "loom_branch"
	MetaErrorCode    = "loom_error_code"
	MetaPartial      = "loom_partial"
	MetaLongRunning  = "loom_long_running"

	typeFunctionCall     = "function_call"
	typeFunctionResponse = "function_response"
)

// ErrInvalidMessage is returned by ConvertMessage for messages it cannot map.
var ErrInvalidMessage = errors.New("invalid a2a message")

// ConvertEvent maps one internal event to zero or more outbound events:
//   - an error event becomes a failed status update
//   - an event with content becomes a status update whose state is
//     auth-required or input-required when it carries a pending credential
//     request or long-running call, working otherwise
//   - a final text response additionally becomes an artifact update
//
// Events without content or error (pure state changes) produce nothing.
func ConvertEvent(ev *core.Event, taskID, contextID string) []OutboundEvent {
	if ev == nil {
		return nil
	}
	meta := eventMetadata(ev)

	if ev.ErrorCode != "" {
		msg := &Message{
			MessageID: ev.ID,
			ContextID: contextID,
			TaskID:    taskID,
			Role:      RoleAgent,
			Parts:     []Part{TextPart(ev.ErrorMessage)},
		}
		up := NewStatusUpdate(taskID, contextID, TaskStateFailed, msg, false)
		up.Metadata = meta
		up.Metadata[MetaErrorCode] = ev.ErrorCode
		return []OutboundEvent{up}
	}

	if ev.Content == nil || len(ev.Content.Parts) == 0 {
		return nil
	}

	parts := make([]Part, 0, len(ev.Content.Parts))
	state := TaskStateWorking
	for _, p := range ev.Content.Parts {
		part, ok := convertPart(p)
		if !ok {
			continue
		}
		if fc, isCall := p.(core.FunctionCallPart); isCall && ev.IsLongRunning(fc.FunctionCall.ID) {
			part.Metadata[MetaLongRunning] = true
			if fc.FunctionCall.Name == core.RequestCredentialFunctionName {
				state = TaskStateAuthRequired
			} else if state != TaskStateAuthRequired {
				state = TaskStateInputRequired
			}
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil
	}

	msg := &Message{
		MessageID: ev.ID,
		ContextID: contextID,
		TaskID:    taskID,
		Role:      RoleAgent,
		Parts:     parts,
	}
	up := NewStatusUpdate(taskID, contextID, state, msg, false)
	up.Metadata = meta
	if ev.Partial {
		up.Metadata[MetaPartial] = true
	}
	out := []OutboundEvent{up}

	if !ev.Partial && state == TaskStateWorking && ev.IsFinalResponse() && ev.Content.Text() != "" {
		out = append(out, &TaskArtifactUpdateEvent{
			Kind:      kindArtifactUpdate,
			TaskID:    taskID,
			ContextID: contextID,
			Artifact: Artifact{
				ArtifactID: ev.ID,
				Name:       ev.Author + "-response",
				Parts:      []Part{TextPart(ev.Content.Text())},
			},
			LastChunk: true,
			Metadata:  eventMetadata(ev),
		})
	}
	return out
}

func eventMetadata(ev *core.Event) map[string]any {
	meta := map[string]any{
		MetaAuthor:       ev.Author,
		MetaInvocationID: ev.InvocationID,
	}
	if ev.Branch != "" {
		meta[MetaBranch] = ev.Branch
	}
	return meta
}

func convertPart(p core.Part) (Part, bool) {
	switch v := p.(type) {
	case core.TextPart:
		if v.Text == "" {
			return Part{}, false
		}
		return TextPart(v.Text), true
	case core.FunctionCallPart:
		return DataPart(map[string]any{
			"id":   v.FunctionCall.ID,
			"name": v.FunctionCall.Name,
			"args": core.CloneMap(v.FunctionCall.Args),
		}, map[string]any{MetaType: typeFunctionCall}), true
	case core.FunctionResponsePart:
		return DataPart(map[string]any{
			"id":       v.FunctionResponse.ID,
			"name":     v.FunctionResponse.Name,
			"response": core.CloneMap(v.FunctionResponse.Response),
		}, map[string]any{MetaType: typeFunctionResponse}), true
	default:
		return Part{}, false
	}
}

// ConvertMessage maps an inbound protocol message to a user event. Data parts
// tagged as function responses become function responses (the way a client
// answers a long-running call); other data parts are rendered as JSON text.
// The caller sets the invocation id.
func ConvertMessage(msg *Message) (*core.Event, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if msg.Role != RoleUser {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidMessage, msg.Role)
	}

	content := &core.Content{Role: core.RoleUser}
	for i, p := range msg.Parts {
		switch p.Kind {
		case PartKindText:
			content.Parts = append(content.Parts, core.TextPart{Text: p.Text})
		case PartKindData:
			part, err := convertDataPart(p)
			if err != nil {
				return nil, fmt.Errorf("%w: part %d: %v", ErrInvalidMessage, i, err)
			}
			content.Parts = append(content.Parts, part)
		default:
			return nil, fmt.Errorf("%w: part %d: unsupported kind %q", ErrInvalidMessage, i, p.Kind)
		}
	}
	if len(content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", ErrInvalidMessage)
	}

	ev := core.NewEvent("", core.AuthorUser)
	if msg.MessageID != "" {
		ev.ID = msg.MessageID
	}
	ev.Content = content
	return ev, nil
}

func convertDataPart(p Part) (core.Part, error) {
	switch p.Metadata[MetaType] {
	case typeFunctionResponse:
		id, _ := p.Data["id"].(string)
		name, _ := p.Data["name"].(string)
		if id == "" || name == "" {
			return nil, errors.New("function response needs id and name")
		}
		resp, _ := p.Data["response"].(map[string]any)
		return core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID:       id,
			Name:     name,
			Response: core.CloneMap(resp),
		}}, nil
	case typeFunctionCall:
		return nil, errors.New("clients cannot send function calls")
	default:
		raw, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		return core.TextPart{Text: string(raw)}, nil
	}
}
