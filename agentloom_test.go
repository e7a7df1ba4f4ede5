package agentloom

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/agent"
	"github.com/hupe1980/agentloom/config"
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/logging"
	"github.com/hupe1980/agentloom/model"
)

func TestNew_FromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
app: helpdesk
run:
  auto_create_session: true
session:
  backend: badger
  in_memory: true
observability:
  metrics: true
`))
	require.NoError(t, err)

	root := agent.NewLLMAgent("assistant", func(o *agent.LLMAgentOptions) {
		o.Model = model.NewMockModel("mock-1").AddText("hello")
	})
	app, err := New(context.Background(), cfg, root, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Registerer = prometheus.NewRegistry()
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	events, err := app.RunSync(context.Background(), "u1", "s1", core.NewTextContent(core.RoleUser, "hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Content.Text())

	sess, err := app.SessionStore().Get(context.Background(), "helpdesk", "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Events, 2)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Backend = "mongo"
	_, err := New(context.Background(), cfg, agent.NewFuncAgent("noop", nil))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
