package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentJSON_EventWithMixedParts(t *testing.T) {
	ev := NewEvent("inv", "agent")
	ev.Content = &Content{Role: RoleModel, Parts: []Part{
		TextPart{Text: "checking"},
		NewFunctionCallPart("c1", "lookup", map[string]any{"q": "go"}),
		NewFunctionResponsePart("c1", "lookup", map[string]any{"hits": float64(3)}),
	}}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"function_call"`)

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back.Content.Parts, 3)
	assert.Equal(t, "checking", back.Content.Text())
	assert.Equal(t, "go", back.FunctionCalls()[0].Args["q"])
	assert.Equal(t, float64(3), back.FunctionResponses()[0].Response["hits"])
}

func TestContentJSON_UnknownPartType(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"hologram"}]}`), &c)
	assert.ErrorContains(t, err, "hologram")
}
