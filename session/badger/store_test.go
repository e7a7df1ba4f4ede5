package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/session/sessiontest"
)

var _ core.SessionStore = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(func(o *Options) {
		o.InMemory = true
		o.SyncWrites = false
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) core.SessionStore { return newTestStore(t) })
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := New(func(o *Options) { o.Path = dir })
	require.NoError(t, err)
	sess, err := store.Create(ctx, "app", "u", "s", nil)
	require.NoError(t, err)
	ev := core.NewEvent("inv", "assistant")
	ev.Content = core.NewTextContent(core.RoleModel, "persisted")
	ev.Actions.StateDelta = map[string]any{"user:lang": "go"}
	require.NoError(t, store.AppendEvent(ctx, sess, ev))
	require.NoError(t, store.Close())

	reopened, err := New(func(o *Options) { o.Path = dir })
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "app", "u", "s")
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "persisted", got.Events[0].Content.Text())
	assert.Equal(t, "go", got.State["user:lang"])
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}
