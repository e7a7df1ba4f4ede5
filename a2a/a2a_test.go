package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/agent"
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/internal/testutil"
	"github.com/hupe1980/agentloom/model"
	"github.com/hupe1980/agentloom/runner"
	"github.com/hupe1980/agentloom/tool"
)

func statusOf(t *testing.T, ev OutboundEvent) *TaskStatusUpdateEvent {
	t.Helper()
	up, ok := ev.(*TaskStatusUpdateEvent)
	require.True(t, ok, "expected status update, got %T", ev)
	return up
}

func TestConvertEvent_FinalText(t *testing.T) {
	ev := testutil.NewEventBuilder().Author("assistant").Branch("root.a").ModelText("done").Build()
	out := ConvertEvent(ev, "task-1", "ctx-1")
	require.Len(t, out, 2)

	up := statusOf(t, out[0])
	assert.Equal(t, TaskStateWorking, up.Status.State)
	assert.Equal(t, "task-1", up.TaskID)
	assert.Equal(t, "assistant", up.Metadata[MetaAuthor])
	assert.Equal(t, "root.a", up.Metadata[MetaBranch])
	assert.Equal(t, []Part{TextPart("done")}, up.Status.Message.Parts)

	art, ok := out[1].(*TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.True(t, art.LastChunk)
	assert.Equal(t, "done", art.Artifact.Parts[0].Text)
}

func TestConvertEvent_States(t *testing.T) {
	longRunning := testutil.NewEventBuilder().
		FunctionCall("c1", "ask_human", map[string]any{"q": "ok?"}).
		LongRunning("c1").Build()
	up := statusOf(t, ConvertEvent(longRunning, "t", "c")[0])
	assert.Equal(t, TaskStateInputRequired, up.Status.State)
	assert.Equal(t, true, up.Status.Message.Parts[0].Metadata[MetaLongRunning])
	assert.Equal(t, "ask_human", up.Status.Message.Parts[0].Data["name"])

	auth := testutil.NewEventBuilder().
		FunctionCall("c2", core.RequestCredentialFunctionName, map[string]any{"function_call_id": "x"}).
		LongRunning("c2").Build()
	assert.Equal(t, TaskStateAuthRequired, statusOf(t, ConvertEvent(auth, "t", "c")[0]).Status.State)

	failed := core.NewErrorEvent("inv", "assistant", "", core.ErrBudgetExceeded)
	out := ConvertEvent(failed, "t", "c")
	require.Len(t, out, 1)
	up = statusOf(t, out[0])
	assert.Equal(t, TaskStateFailed, up.Status.State)
	assert.Equal(t, core.CodeBudgetExceeded, up.Metadata[MetaErrorCode])

	stateOnly := testutil.NewEventBuilder().StateDelta("k", "v").Build()
	assert.Empty(t, ConvertEvent(stateOnly, "t", "c"))

	partial := testutil.NewEventBuilder().ModelText("chunk").Partial().Build()
	out = ConvertEvent(partial, "t", "c")
	require.Len(t, out, 1)
	assert.Equal(t, true, statusOf(t, out[0]).Metadata[MetaPartial])
}

func TestConvertMessage(t *testing.T) {
	msg := &Message{
		MessageID: "m1",
		Role:      RoleUser,
		Parts: []Part{
			TextPart("approve?"),
			DataPart(map[string]any{"id": "c1", "name": "ask_human", "response": map[string]any{"ok": true}},
				map[string]any{MetaType: "function_response"}),
			DataPart(map[string]any{"n": 1}, nil),
		},
	}
	ev, err := ConvertMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "m1", ev.ID)
	assert.Equal(t, core.AuthorUser, ev.Author)
	require.Len(t, ev.Content.Parts, 3)
	assert.Equal(t, "approve?", ev.Content.Parts[0].(core.TextPart).Text)
	resp := ev.FunctionResponses()
	require.Len(t, resp, 1)
	assert.Equal(t, "c1", resp[0].ID)
	assert.Equal(t, `{"n":1}`, ev.Content.Parts[2].(core.TextPart).Text)

	_, err = ConvertMessage(&Message{Role: RoleAgent, Parts: []Part{TextPart("x")}})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = ConvertMessage(&Message{Role: RoleUser})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = ConvertMessage(&Message{Role: RoleUser, Parts: []Part{{Kind: "file"}}})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessageJSON(t *testing.T) {
	raw := `{"messageId":"m1","contextId":"c1","role":"user","parts":[{"kind":"text","text":"hi"}]}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hi", msg.Parts[0].Text)
}

func TestTaskStateAggregator(t *testing.T) {
	tests := []struct {
		name   string
		states []TaskState
		want   TaskState
	}{
		{"nothing observed", nil, TaskStateCompleted},
		{"only working", []TaskState{TaskStateWorking, TaskStateWorking}, TaskStateCompleted},
		{"input required", []TaskState{TaskStateWorking, TaskStateInputRequired, TaskStateWorking}, TaskStateInputRequired},
		{"auth beats input", []TaskState{TaskStateInputRequired, TaskStateAuthRequired, TaskStateInputRequired}, TaskStateAuthRequired},
		{"failed beats all", []TaskState{TaskStateAuthRequired, TaskStateFailed, TaskStateWorking}, TaskStateFailed},
		{"submitted ignored", []TaskState{TaskStateSubmitted}, TaskStateCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewTaskStateAggregator()
			for _, s := range tt.states {
				agg.Observe(NewStatusUpdate("t", "c", s, nil, false))
			}
			agg.Observe(&TaskArtifactUpdateEvent{})
			assert.Equal(t, tt.want, agg.Final())
		})
	}
}

func collect(events *[]OutboundEvent) EventWriter {
	return func(ev OutboundEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestExecutor_CompletedTask(t *testing.T) {
	m := model.NewMockModel("mock-1").AddText("hello from the agent")
	r, err := runner.New("app", agent.NewLLMAgent("assistant", func(o *agent.LLMAgentOptions) { o.Model = m }),
		func(o *runner.Options) { o.AutoCreateSession = true })
	require.NoError(t, err)

	var events []OutboundEvent
	exec := NewExecutor(r)
	err = exec.Execute(context.Background(), &Message{
		MessageID: "m1", ContextID: "session-1", TaskID: "task-1",
		Role: RoleUser, Parts: []Part{TextPart("hi")},
	}, collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, TaskStateSubmitted, statusOf(t, events[0]).Status.State)
	assert.Equal(t, TaskStateWorking, statusOf(t, events[1]).Status.State)
	assert.IsType(t, &TaskArtifactUpdateEvent{}, events[2])
	final := statusOf(t, events[3])
	assert.True(t, final.Final)
	assert.Equal(t, TaskStateCompleted, final.Status.State)

	sess, err := r.SessionStore().Get(context.Background(), "app", "a2a", "session-1")
	require.NoError(t, err)
	assert.Len(t, sess.Events, 2)
}

func TestExecutor_InputRequiredTask(t *testing.T) {
	ask := tool.NewLongRunningFunctionTool("ask_human", "Asks a human.", nil,
		func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	m := model.NewMockModel("mock-1").AddFunctionCalls(core.FunctionCall{Name: "ask_human", Args: map[string]any{}})
	r, err := runner.New("app", agent.NewLLMAgent("assistant", func(o *agent.LLMAgentOptions) {
		o.Model = m
		o.Tools = []core.Tool{ask}
	}), func(o *runner.Options) { o.AutoCreateSession = true })
	require.NoError(t, err)

	var events []OutboundEvent
	err = NewExecutor(r).Execute(context.Background(), &Message{
		ContextID: "session-1", Role: RoleUser, Parts: []Part{TextPart("ship it")},
		Metadata: map[string]any{"user_id": "ada"},
	}, collect(&events))
	require.NoError(t, err)

	final := statusOf(t, events[len(events)-1])
	assert.True(t, final.Final)
	assert.Equal(t, TaskStateInputRequired, final.Status.State)
	require.NotNil(t, final.Status.Message)
	assert.Equal(t, "ask_human", final.Status.Message.Parts[0].Data["name"])

	_, err = r.SessionStore().Get(context.Background(), "app", "ada", "session-1")
	assert.NoError(t, err)
}

func TestExecutor_WriterErrorStops(t *testing.T) {
	r, err := runner.New("app", agent.NewLLMAgent("assistant", func(o *agent.LLMAgentOptions) {
		o.Model = model.NewMockModel("mock-1")
	}), func(o *runner.Options) { o.AutoCreateSession = true })
	require.NoError(t, err)

	gone := errors.New("client gone")
	err = NewExecutor(r).Execute(context.Background(), &Message{Role: RoleUser, Parts: []Part{TextPart("hi")}},
		func(OutboundEvent) error { return gone })
	assert.ErrorIs(t, err, gone)
	assert.ErrorIs(t, NewExecutor(r).Cancel("unknown"), runner.ErrInvocationNotFound)
}
