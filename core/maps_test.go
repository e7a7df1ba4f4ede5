package core

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"scalar": 1,
		"list":   []any{1, 2},
		"nested": map[string]any{"keep": true, "over": "old"},
	}
	src := map[string]any{
		"scalar": 2,
		"list":   []any{3},
		"nested": map[string]any{"over": "new", "add": 1},
		"fresh":  map[string]any{"x": 1},
	}

	got := DeepMerge(dst, src)

	assert.Equal(t, map[string]any{
		"scalar": 2,
		"list":   []any{3},
		"nested": map[string]any{"keep": true, "over": "new", "add": 1},
		"fresh":  map[string]any{"x": 1},
	}, got)

	src["fresh"].(map[string]any)["x"] = 99
	assert.Equal(t, 1, got["fresh"].(map[string]any)["x"], "merged values never alias the source")
}

func TestDeepMerge_NilDst(t *testing.T) {
	got := DeepMerge(nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, got)
}

func TestDeepMergeLastWinsProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("later scalar wins for shared keys", prop.ForAll(
		func(key string, a, b int) bool {
			got := DeepMerge(map[string]any{key: a}, map[string]any{key: b})
			return got[key] == b
		},
		gen.Identifier(), gen.Int(), gen.Int(),
	))

	properties.Property("disjoint keys commute", prop.ForAll(
		func(a, b int) bool {
			x := DeepMerge(DeepMerge(nil, map[string]any{"a": a}), map[string]any{"b": b})
			y := DeepMerge(DeepMerge(nil, map[string]any{"b": b}), map[string]any{"a": a})
			return x["a"] == y["a"] && x["b"] == y["b"]
		},
		gen.Int(), gen.Int(),
	))

	properties.TestingRun(t)
}
