package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentloom/artifact"
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/flow"
	"github.com/hupe1980/agentloom/logging"
	"github.com/hupe1980/agentloom/memory"
	"github.com/hupe1980/agentloom/session"
)

var (
	// ErrTooManyInvocations is returned by Run when MaxConcurrentInvocations
	// invocations are already active.
	ErrTooManyInvocations = errors.New("too many concurrent invocations")
	// ErrInvocationNotFound is returned by Cancel for unknown ids.
	ErrInvocationNotFound = errors.New("invocation not found")
)

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	Plugins       []core.Plugin
	Logger        logging.Logger
	RunConfig     core.RunConfig
	// AutoCreateSession creates unknown sessions on first use instead of
	// failing with core.ErrSessionNotFound.
	AutoCreateSession bool
	// MaxConcurrentInvocations bounds active invocations; zero means no limit.
	MaxConcurrentInvocations int
}

// Runner drives invocations of one agent tree: it resolves the session,
// records the user message, picks the agent that should answer, persists
// every non-partial event before the next one is produced and surfaces
// failures as a terminal error event. Public methods are safe for
// concurrent use.
type Runner struct {
	appName string
	tree    *core.AgentTree

	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	plugins       *core.PluginManager
	logger        logging.Logger
	runConfig     core.RunConfig
	autoCreate    bool
	slots         *semaphore.Weighted

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New constructs a Runner for the tree rooted at root.
func New(appName string, root core.Agent, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		RunConfig: core.RunConfig{MaxLLMCalls: 100},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.ArtifactStore == nil {
		opts.ArtifactStore = artifact.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}

	tree, err := core.NewAgentTree(root)
	if err != nil {
		return nil, err
	}
	plugins, err := core.NewPluginManager(opts.Plugins...)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		appName:       appName,
		tree:          tree,
		sessionStore:  opts.SessionStore,
		artifactStore: opts.ArtifactStore,
		memoryStore:   opts.MemoryStore,
		plugins:       plugins,
		logger:        opts.Logger,
		runConfig:     opts.RunConfig,
		autoCreate:    opts.AutoCreateSession,
		active:        make(map[string]context.CancelFunc),
	}
	if opts.MaxConcurrentInvocations > 0 {
		r.slots = semaphore.NewWeighted(int64(opts.MaxConcurrentInvocations))
	}
	return r, nil
}

// Tree returns the agent tree the runner drives.
func (r *Runner) Tree() *core.AgentTree { return r.tree }

// SessionStore returns the store sessions are persisted in.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an invocation answering msg and returns its event stream.
// Nothing runs until the stream is pulled. Failures of the agent tree are
// reported as a final event carrying an error code, not through the stream's
// error; Err only reports persistence failures.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg *core.Content) (*core.EventStream, error) {
	sess, err := r.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if r.slots != nil && !r.slots.TryAcquire(1) {
		return nil, ErrTooManyInvocations
	}

	runCtx, cancel := context.WithCancel(ctx)
	ic := core.NewInvocationContext(runCtx, sess, func(o *core.InvocationOptions) {
		o.SessionStore = r.sessionStore
		o.ArtifactStore = r.artifactStore
		o.MemoryStore = r.memoryStore
		o.Plugins = r.plugins
		o.Tree = r.tree
		o.RunConfig = r.runConfig
		o.Logger = r.logger
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			r.mu.Lock()
			delete(r.active, ic.InvocationID)
			r.mu.Unlock()
			if r.slots != nil {
				r.slots.Release(1)
			}
		})
	}

	if msg != nil {
		replaced, err := r.plugins.RunOnUserMessage(ic, msg)
		if err != nil {
			release()
			return nil, err
		}
		if replaced != nil {
			msg = replaced
		}
		ic.UserContent = msg
		if err := r.sessionStore.AppendEvent(ctx, sess, core.NewUserContentEvent(ic.InvocationID, msg)); err != nil {
			release()
			return nil, fmt.Errorf("append user event: %w", err)
		}
	}

	r.mu.Lock()
	r.active[ic.InvocationID] = cancel
	r.mu.Unlock()

	ic.LogInfo("runner.invocation.start", "invocation", ic.InvocationID, "session", sess.ID, "user", userID)

	// The outer stream is bound to the caller's context so a terminal event
	// can still be delivered after Cancel.
	stream := core.NewEventStream(ctx, func(yield core.YieldFunc) error {
		return r.invoke(ic, yield)
	})
	go func() {
		<-stream.Finished()
		release()
	}()
	return stream, nil
}

// RunSync runs an invocation to completion and returns all its events.
func (r *Runner) RunSync(ctx context.Context, userID, sessionID string, msg *core.Content) ([]*core.Event, error) {
	stream, err := r.Run(ctx, userID, sessionID, msg)
	if err != nil {
		return nil, err
	}
	return stream.Collect()
}

// Cancel cancels an active invocation. Its stream ends with a terminal event
// carrying the CANCELLED code.
func (r *Runner) Cancel(invocationID string) error {
	r.mu.Lock()
	cancel, ok := r.active[invocationID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvocationNotFound, invocationID)
	}
	cancel()
	return nil
}

// Remember adds a session to the memory store so later invocations can
// search it.
func (r *Runner) Remember(ctx context.Context, userID, sessionID string) error {
	sess, err := r.sessionStore.Get(ctx, r.appName, userID, sessionID)
	if err != nil {
		return err
	}
	return r.memoryStore.AddSession(ctx, sess)
}

func (r *Runner) loadSession(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	sess, err := r.sessionStore.Get(ctx, r.appName, userID, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) || !r.autoCreate {
		return nil, err
	}
	return r.sessionStore.Create(ctx, r.appName, userID, sessionID, nil)
}

func (r *Runner) invoke(ic *core.InvocationContext, yield core.YieldFunc) error {
	content, err := r.plugins.RunBeforeRun(ic)
	if err != nil {
		return r.fail(ic, ic.Tree.Root(), err, yield)
	}
	if content != nil {
		ev := core.NewEvent(ic.InvocationID, ic.Tree.Root().Name())
		ev.Content = content
		if err := r.emit(ic, ev, yield); err != nil {
			return err
		}
		return r.afterRun(ic)
	}

	agent := r.selectAgent(ic)
	if err := ic.Err(); err != nil {
		return r.fail(ic, agent, err, yield)
	}
	ic.LogDebug("runner.agent.selected", "invocation", ic.InvocationID, "agent", agent.Name())

	stream := agent.Run(ic)
	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		if err := r.emit(ic, ev, yield); err != nil {
			stream.Close()
			return err
		}
	}
	if err := stream.Wait(); err != nil {
		return r.fail(ic, agent, err, yield)
	}
	return r.afterRun(ic)
}

// emit persists ev when it is complete, lets the on-event chain replace it
// and hands the result downstream.
func (r *Runner) emit(ic *core.InvocationContext, ev *core.Event, yield core.YieldFunc) error {
	if !ev.Partial {
		ic.TempState().Absorb(ev.Actions.StateDelta)
		// Persist with the caller's context: a cancelled run still records
		// what it produced.
		if err := r.sessionStore.AppendEvent(context.WithoutCancel(ic.Context), ic.Session, ev); err != nil {
			return fmt.Errorf("append event %s: %w", ev.ID, err)
		}
	}
	replaced, err := r.plugins.RunOnEvent(ic, ev)
	if err != nil {
		return err
	}
	if replaced != nil {
		ev = replaced
	}
	return yield(ev)
}

func (r *Runner) fail(ic *core.InvocationContext, agent core.Agent, cause error, yield core.YieldFunc) error {
	ic.LogError("runner.invocation.failed", "invocation", ic.InvocationID, "agent", agent.Name(), "code", core.ErrorCode(cause), "error", cause)
	ev := core.NewErrorEvent(ic.InvocationID, agent.Name(), ic.Branch, cause)
	if err := r.emit(ic, ev, yield); err != nil {
		return err
	}
	return nil
}

func (r *Runner) afterRun(ic *core.InvocationContext) error {
	ic.LogInfo("runner.invocation.end", "invocation", ic.InvocationID, "llm_calls", ic.LLMCallCount())
	return r.plugins.RunAfterRun(ic)
}

// selectAgent picks the agent that answers the new message: the owner of a
// long-running call the message responds to, else the agent that spoke last
// if control may flow back up from it, else the root.
func (r *Runner) selectAgent(ic *core.InvocationContext) core.Agent {
	root := r.tree.Root()
	events := ic.Events()

	if ic.UserContent != nil {
		probe := &core.Event{Content: ic.UserContent}
		if responses := probe.FunctionResponses(); len(responses) > 0 {
			if owner := r.callOwner(events, responses[0].ID); owner != nil {
				return owner
			}
		}
	}

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Author == core.AuthorUser {
			continue
		}
		if ev.Author == root.Name() {
			return root
		}
		candidate := r.tree.Find(ev.Author)
		if candidate == nil {
			ic.LogWarn("runner.agent.unknown_author", "author", ev.Author)
			continue
		}
		if r.transferableAcrossTree(candidate) {
			return candidate
		}
	}
	return root
}

func (r *Runner) callOwner(events []*core.Event, callID string) core.Agent {
	for i := len(events) - 1; i >= 0; i-- {
		for _, fc := range events[i].FunctionCalls() {
			if fc.ID == callID {
				return r.tree.Find(events[i].Author)
			}
		}
	}
	return nil
}

// transferableAcrossTree reports whether every agent from a up to the root
// is an LLM agent that allows transfer to its parent.
func (r *Runner) transferableAcrossTree(a core.Agent) bool {
	for cur := a; cur != nil; cur = r.tree.Parent(cur.Name()) {
		fa, ok := cur.(flow.FlowAgent)
		if !ok || fa.DisallowTransferToParent() {
			return false
		}
	}
	return true
}
