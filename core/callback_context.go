package core

import (
	"context"
	"fmt"
)

// CallbackContext is handed to agent and model callbacks. It exposes a live
// State view whose writes accumulate in Actions; every interceptor sharing the
// context sees the writes of the ones before it.
type CallbackContext struct {
	ic      *InvocationContext
	actions *EventActions
	state   *State

	*loggerAdapter
}

// NewCallbackContext binds a callback context to ic. When actions is nil a
// fresh buffer is allocated.
func NewCallbackContext(ic *InvocationContext, actions *EventActions) *CallbackContext {
	if actions == nil {
		actions = &EventActions{}
	}
	return &CallbackContext{
		ic:            ic,
		actions:       actions,
		state:         ic.State(actions),
		loggerAdapter: ic.loggerAdapter,
	}
}

// InvocationContext returns the invocation node the callback runs in.
func (cc *CallbackContext) InvocationContext() *InvocationContext { return cc.ic }

// Context returns the ambient context.
func (cc *CallbackContext) Context() context.Context { return cc.ic.Context }

// InvocationID returns the invocation identifier.
func (cc *CallbackContext) InvocationID() string { return cc.ic.InvocationID }

// AgentName returns the active agent's name.
func (cc *CallbackContext) AgentName() string { return cc.ic.AgentName() }

// Branch returns the current branch path.
func (cc *CallbackContext) Branch() string { return cc.ic.Branch }

// UserContent returns the message that started the invocation.
func (cc *CallbackContext) UserContent() *Content { return cc.ic.UserContent }

// State returns the live state view.
func (cc *CallbackContext) State() *State { return cc.state }

// Actions returns the accumulated side effects.
func (cc *CallbackContext) Actions() *EventActions { return cc.actions }

// SaveArtifact stores a new version of filename and records it in the
// artifact delta.
func (cc *CallbackContext) SaveArtifact(filename string, artifact Artifact) (int, error) {
	if cc.ic.ArtifactStore == nil {
		return 0, fmt.Errorf("artifact store not configured")
	}
	version, err := cc.ic.ArtifactStore.Save(cc.Context(), cc.ic.AppName(), cc.ic.UserID(), cc.ic.SessionID(), filename, artifact)
	if err != nil {
		return 0, err
	}
	if cc.actions.ArtifactDelta == nil {
		cc.actions.ArtifactDelta = map[string]int{}
	}
	cc.actions.ArtifactDelta[filename] = version
	return version, nil
}

// LoadArtifact loads a version of filename; version <= 0 loads the latest.
func (cc *CallbackContext) LoadArtifact(filename string, version int) (*Artifact, error) {
	if cc.ic.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return cc.ic.ArtifactStore.Load(cc.Context(), cc.ic.AppName(), cc.ic.UserID(), cc.ic.SessionID(), filename, version)
}

// ListArtifacts returns the artifact filenames visible to the session.
func (cc *CallbackContext) ListArtifacts() ([]string, error) {
	if cc.ic.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return cc.ic.ArtifactStore.List(cc.Context(), cc.ic.AppName(), cc.ic.UserID(), cc.ic.SessionID())
}
