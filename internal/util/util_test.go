package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleSchema struct {
	A    string   `json:"a" description:"Field A"`
	B    *int     `json:"b" description:"Optional pointer field"`
	C    int      `json:"c,omitempty" description:"Omit empty field"`
	Tags []string `json:"tags,omitempty"`
	Mode string   `json:"mode,omitempty" enum:"fast,slow"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["tags"])
	assert.Equal(t, []string{"fast", "slow"}, props["mode"].(map[string]any)["enum"])
	assert.ElementsMatch(t, []string{"a"}, schema["required"])
}

func TestCompileAndValidate(t *testing.T) {
	compiled, err := CompileSchema("sum", CreateSchema(struct {
		X int `json:"x"`
	}{}))
	require.NoError(t, err)

	assert.NoError(t, ValidateArgs(compiled, map[string]any{"x": 5}))
	assert.NoError(t, ValidateArgs(compiled, map[string]any{"x": float64(5)}))
	assert.Error(t, ValidateArgs(compiled, map[string]any{}))
	assert.Error(t, ValidateArgs(compiled, map[string]any{"x": "five"}))
	assert.NoError(t, ValidateArgs(nil, nil))
}

func TestInjectState(t *testing.T) {
	state := map[string]string{"name": "Ada", "user:lang": "go", "artifact.notes": "n"}
	lookup := func(key string) (string, bool, error) {
		v, ok := state[key]
		return v, ok, nil
	}

	out, err := InjectState("Hi {name}, you write {user:lang}. {missing?}{artifact.notes} {{raw}} {not a key}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, you write go. n {{raw}} {not a key}", out)

	_, err = InjectState("Hello {missing}", lookup)
	assert.ErrorContains(t, err, "missing")

	boom := errors.New("boom")
	_, err = InjectState("{name}", func(string) (string, bool, error) { return "", false, boom })
	assert.ErrorIs(t, err, boom)
}
