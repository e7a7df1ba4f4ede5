package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/artifact"
	"github.com/hupe1980/agentloom/core"
)

func dummyInvocationContext() *core.InvocationContext {
	return core.NewInvocationContext(context.Background(), core.NewSession("app", "user", "sess-1"), func(o *core.InvocationOptions) {
		o.InvocationID = "inv-1"
		o.ArtifactStore = artifact.NewInMemoryStore()
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	tc := core.NewToolContext(dummyInvocationContext(), "fc1", nil)
	result, err := sumTool.Run(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
	assert.False(t, sumTool.IsLongRunning())
	assert.Equal(t, "sum", sumTool.Declaration().Name)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []string{"a"},
	}
	called := false
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		called = true
		return 0, nil
	})
	tc := core.NewToolContext(dummyInvocationContext(), "fc2", nil)

	_, err := tTool.Run(tc, map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = tTool.Run(tc, map[string]any{"a": "three"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.False(t, called)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	tc := core.NewToolContext(dummyInvocationContext(), "fc3", nil)
	_, err := execTool.Run(tc, map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)

	custom := NewFunctionTool("custom", "Custom", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("custom", "quota", "QUOTA")
	})
	_, err = custom.Run(tc, nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "QUOTA", toolErr.Code)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City name"`
	}
	weather := NewFunctionToolFromStruct("weather", "Weather", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})
	tc := core.NewToolContext(dummyInvocationContext(), "fc", nil)

	res, err := weather.Run(tc, map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", res)
	_, err = weather.Run(tc, map[string]any{})
	assert.Error(t, err)
}

func TestLongRunningFunctionTool(t *testing.T) {
	approval := NewLongRunningFunctionTool("ask_approval", "Ask a human", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, nil
	})
	assert.True(t, approval.IsLongRunning())
	assert.Contains(t, approval.Declaration().Description, "long-running")

	res, err := approval.Run(core.NewToolContext(dummyInvocationContext(), "fc", nil), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

// -------------------- Built-in tools --------------------

func TestTransferToAgentTool(t *testing.T) {
	tr := NewTransferToAgentTool()
	tc := core.NewToolContext(dummyInvocationContext(), "fc", nil)

	_, err := tr.Run(tc, map[string]any{"agent_name": "billing"})
	require.NoError(t, err)
	assert.Equal(t, "billing", tc.Actions().TransferToAgent)

	_, err = tr.Run(tc, map[string]any{"agent_name": ""})
	assert.Error(t, err)
	assert.Equal(t, TransferToAgentName, tr.Declaration().Name)
}

func TestExitLoopTool(t *testing.T) {
	tc := core.NewToolContext(dummyInvocationContext(), "fc", nil)
	_, err := NewExitLoopTool().Run(tc, nil)
	require.NoError(t, err)
	assert.True(t, tc.Actions().Escalate)
	assert.True(t, tc.Actions().SkipSummarization)
}

func TestStateManagerTool_SetAndGetState(t *testing.T) {
	sm := NewStateManagerTool()
	inv := dummyInvocationContext()
	tc := core.NewToolContext(inv, "fc-set", nil)

	res, err := sm.Run(tc, map[string]any{"operation": "set_state", "key": "foo", "value": "bar"})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "foo", m["key"])
	assert.Equal(t, "bar", tc.Actions().StateDelta["foo"])

	res, err = sm.Run(tc, map[string]any{"operation": "get_state", "key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["exists"], "reads see the pending delta")

	fresh := core.NewToolContext(inv, "fc-get", nil)
	res, err = sm.Run(fresh, map[string]any{"operation": "get_state", "key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, false, res.(map[string]any)["exists"], "uncommitted writes are private to their call")

	inv.Session.ApplyDelta(tc.Actions().StateDelta)
	res, err = sm.Run(fresh, map[string]any{"operation": "get_state", "key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, "bar", res.(map[string]any)["value"])
}

func TestStateManagerTool_FlowControlActions(t *testing.T) {
	sm := NewStateManagerTool()
	inv := dummyInvocationContext()

	tc := core.NewToolContext(inv, "fc-flow", nil)
	_, err := sm.Run(tc, map[string]any{"operation": "escalate"})
	require.NoError(t, err)
	assert.True(t, tc.Actions().Escalate)

	tc2 := core.NewToolContext(inv, "fc-transfer", nil)
	_, err = sm.Run(tc2, map[string]any{"operation": "transfer_agent", "agent_name": "NextAgent"})
	require.NoError(t, err)
	assert.Equal(t, "NextAgent", tc2.Actions().TransferToAgent)

	tc3 := core.NewToolContext(inv, "fc-skip", nil)
	_, err = sm.Run(tc3, map[string]any{"operation": "skip_summarization"})
	require.NoError(t, err)
	assert.True(t, tc3.Actions().SkipSummarization)

	_, err = sm.Run(tc3, map[string]any{"operation": "dance"})
	assert.Error(t, err)
}

func TestStateManagerTool_Artifacts(t *testing.T) {
	sm := NewStateManagerTool()
	tc := core.NewToolContext(dummyInvocationContext(), "fc-art", nil)

	res, err := sm.Run(tc, map[string]any{"operation": "save_artifact", "filename": "notes.txt", "data": "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.(map[string]any)["version"])
	assert.Equal(t, 1, tc.Actions().ArtifactDelta["notes.txt"])

	res, err = sm.Run(tc, map[string]any{"operation": "load_artifact", "filename": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.(map[string]any)["data"])

	res, err = sm.Run(tc, map[string]any{"operation": "list_artifacts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, res.(map[string]any)["artifacts"])
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
