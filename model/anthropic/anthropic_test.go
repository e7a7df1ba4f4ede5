package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/model"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages_ToolRoundTrip(t *testing.T) {
	msgs := BuildMessages([]core.Content{
		*core.NewTextContent(core.RoleUser, "weather?"),
		{Role: core.RoleModel, Parts: []core.Part{core.NewFunctionCallPart("c1", "weather", map[string]any{"city": "Oslo"})}},
		{Role: core.RoleUser, Parts: []core.Part{core.NewFunctionResponsePart("c1", "weather", map[string]any{"result": "sunny"})}},
		{Role: core.RoleModel},
	})
	require.Len(t, msgs, 3, "empty contents are skipped")
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	require.Len(t, msgs[2].Content, 1)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", msgs[2].Content[0].OfToolResult.ToolUseID)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]core.ToolDeclaration{{
		Name:        "weather",
		Description: "Weather lookup",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []any{"city"},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "weather", tools[0].OfTool.Name)
	assert.Equal(t, []string{"city"}, tools[0].OfTool.InputSchema.Required)
}

func TestDecodeToolInput(t *testing.T) {
	assert.Equal(t, map[string]any{"city": "Oslo"}, decodeToolInput(json.RawMessage(`{"city":"Oslo"}`)))
	assert.Equal(t, map[string]any{}, decodeToolInput(json.RawMessage(nil)))
	assert.Equal(t, map[string]any{"_raw": `{"city":`}, decodeToolInput(json.RawMessage(`{"city":`)))
	assert.Equal(t, map[string]any{"_raw": "[1,2]"}, decodeToolInput(json.RawMessage(`[1,2]`)))
}
