package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
)

func newInvocation(t *testing.T, root core.Agent, userText string, optFns ...func(o *core.InvocationOptions)) *core.InvocationContext {
	t.Helper()
	tree, err := core.NewAgentTree(root)
	require.NoError(t, err)

	sess := core.NewSession("app", "user", "s1")
	msg := core.NewTextContent(core.RoleUser, userText)
	ic := core.NewInvocationContext(context.Background(), sess, append([]func(o *core.InvocationOptions){func(o *core.InvocationOptions) {
		o.Tree = tree
		o.UserContent = msg
	}}, optFns...)...)
	require.NoError(t, sess.Append(core.NewUserContentEvent(ic.InvocationID, msg)))
	return ic
}

// drain consumes the root stream the way the runner does.
func drain(t *testing.T, ic *core.InvocationContext, agent core.Agent) ([]*core.Event, error) {
	t.Helper()
	stream := agent.Run(ic)
	var out []*core.Event
	for {
		ev, ok := stream.Next()
		if !ok {
			return out, stream.Wait()
		}
		if !ev.Partial {
			ic.TempState().Absorb(ev.Actions.StateDelta)
			require.NoError(t, ic.Session.Append(ev))
		}
		out = append(out, ev)
	}
}

// say returns a body yielding one text event per message.
func say(msgs ...string) Body {
	return func(ic *core.InvocationContext, yield core.YieldFunc) error {
		for _, m := range msgs {
			ev := ic.NewEvent()
			ev.Content = core.NewTextContent(core.RoleModel, m)
			if err := yield(ev); err != nil {
				return err
			}
		}
		return nil
	}
}

func eventTexts(events []*core.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Content != nil {
			out = append(out, ev.Content.Text())
		}
	}
	return out
}

func authors(events []*core.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Author
	}
	return out
}
