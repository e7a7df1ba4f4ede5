// Package sessiontest provides a behavioural test suite every
// core.SessionStore implementation must pass.
package sessiontest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) core.SessionStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("AppendEvent", func(t *testing.T) { testAppendEvent(t, newStore(t)) })
	t.Run("RejectsPartial", func(t *testing.T) { testRejectsPartial(t, newStore(t)) })
	t.Run("ScopedState", func(t *testing.T) { testScopedState(t, newStore(t)) })
	t.Run("ListAndDelete", func(t *testing.T) { testListAndDelete(t, newStore(t)) })
}

func textEvent(author, text string, delta map[string]any) *core.Event {
	ev := core.NewEvent("inv-1", author)
	ev.Content = core.NewTextContent(core.RoleModel, text)
	ev.Actions.StateDelta = delta
	return ev
}

func testCreateAndGet(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	created, err := store.Create(ctx, "app", "u1", "s1", map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)

	got, err := store.Get(ctx, "app", "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "go", got.State["topic"])
	assert.Empty(t, got.Events)

	generated, err := store.Create(ctx, "app", "u1", "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
}

func testCreateDuplicate(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	_, err := store.Create(ctx, "app", "u1", "s1", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "app", "u1", "s1", nil)
	assert.Error(t, err)
}

func testGetMissing(t *testing.T, store core.SessionStore) {
	_, err := store.Get(context.Background(), "app", "u1", "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func testAppendEvent(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	sess, err := store.Create(ctx, "app", "u1", "s1", nil)
	require.NoError(t, err)

	ev := textEvent("assistant", "hello", map[string]any{"count": 1, "temp:scratch": "x"})
	require.NoError(t, store.AppendEvent(ctx, sess, ev))

	assert.Equal(t, 1, sess.State["count"])
	_, hasTemp := sess.State["temp:scratch"]
	assert.False(t, hasTemp)
	require.Len(t, sess.Events, 1)

	got, err := store.Get(ctx, "app", "u1", "s1")
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, ev.ID, got.Events[0].ID)
	assert.Equal(t, "hello", got.Events[0].Content.Text())
	assert.EqualValues(t, 1, got.State["count"])
	_, persistedTemp := got.Events[0].Actions.StateDelta["temp:scratch"]
	assert.False(t, persistedTemp, "temp: keys are trimmed before persistence")
}

func testRejectsPartial(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	sess, err := store.Create(ctx, "app", "u1", "s1", nil)
	require.NoError(t, err)

	ev := textEvent("assistant", "chunk", map[string]any{"k": "v"})
	ev.Partial = true
	assert.ErrorIs(t, store.AppendEvent(ctx, sess, ev), core.ErrPartialEvent)
	assert.Empty(t, sess.Events)

	got, err := store.Get(ctx, "app", "u1", "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Events)
	assert.NotContains(t, got.State, "k")
}

func testScopedState(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	s1, err := store.Create(ctx, "app", "u1", "s1", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "app", "u1", "s2", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "app", "u2", "s3", nil)
	require.NoError(t, err)

	require.NoError(t, store.AppendEvent(ctx, s1, textEvent("assistant", "x", map[string]any{
		"app:theme":  "dark",
		"user:name":  "ada",
		"local":      true,
		"temp:trace": "t",
	})))

	sibling, err := store.Get(ctx, "app", "u1", "s2")
	require.NoError(t, err)
	assert.Equal(t, "dark", sibling.State["app:theme"])
	assert.Equal(t, "ada", sibling.State["user:name"])
	assert.NotContains(t, sibling.State, "local")

	stranger, err := store.Get(ctx, "app", "u2", "s3")
	require.NoError(t, err)
	assert.Equal(t, "dark", stranger.State["app:theme"])
	assert.NotContains(t, stranger.State, "user:name")
	assert.NotContains(t, stranger.State, "temp:trace")
}

func testListAndDelete(t *testing.T, store core.SessionStore) {
	ctx := context.Background()
	for _, id := range []string{"b", "a"} {
		_, err := store.Create(ctx, "app", "u1", id, nil)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "app", "u2", "c", nil)
	require.NoError(t, err)

	list, err := store.List(ctx, "app", "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, store.Delete(ctx, "app", "u1", "a"))
	_, err = store.Get(ctx, "app", "u1", "a")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	list, err = store.List(ctx, "app", "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
