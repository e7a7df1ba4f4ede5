package core

import (
	"fmt"
	"slices"
)

// AgentKind tags an agent implementation. It is fixed at construction time so
// call sites never need to inspect concrete types.
type AgentKind int

const (
	KindCustom AgentKind = iota
	KindLLM
	KindSequential
	KindParallel
	KindLoop
)

// String returns the lowercase name of the kind.
func (k AgentKind) String() string {
	switch k {
	case KindLLM:
		return "llm"
	case KindSequential:
		return "sequential"
	case KindParallel:
		return "parallel"
	case KindLoop:
		return "loop"
	default:
		return "custom"
	}
}

// Agent defines the contract all agents implement.
//
// Run returns a lazily produced event stream; each activation consumes its own
// context and the stream cannot be restarted. SubAgents is only consulted at
// construction time to build the AgentTree; runtime lookups (parent, peers,
// transfer targets) go through the tree in the InvocationContext.
type Agent interface {
	Name() string
	Description() string
	Kind() AgentKind
	SubAgents() []Agent
	Run(ic *InvocationContext) *EventStream
}

type treeNode struct {
	agent    Agent
	parent   int
	children []int
}

// AgentTree is a flat arena of agents. Parent/child relationships are stored
// as indices so agents never hold references to their parents.
type AgentTree struct {
	nodes  []treeNode
	byName map[string]int
}

// NewAgentTree indexes root and all its descendants. Agent names must be
// unique within the tree.
func NewAgentTree(root Agent) (*AgentTree, error) {
	t := &AgentTree{byName: map[string]int{}}
	if err := t.add(root, -1); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *AgentTree) add(a Agent, parent int) error {
	if a == nil {
		return fmt.Errorf("nil agent under %q", t.nameAt(parent))
	}
	if _, dup := t.byName[a.Name()]; dup {
		return fmt.Errorf("duplicate agent name %q", a.Name())
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{agent: a, parent: parent})
	t.byName[a.Name()] = idx
	if parent >= 0 {
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}
	for _, child := range a.SubAgents() {
		if err := t.add(child, idx); err != nil {
			return err
		}
	}
	return nil
}

func (t *AgentTree) nameAt(idx int) string {
	if idx < 0 || idx >= len(t.nodes) {
		return ""
	}
	return t.nodes[idx].agent.Name()
}

// Root returns the root agent.
func (t *AgentTree) Root() Agent {
	if t == nil || len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0].agent
}

// Find returns the agent with the given name, or nil.
func (t *AgentTree) Find(name string) Agent {
	if t == nil {
		return nil
	}
	idx, ok := t.byName[name]
	if !ok {
		return nil
	}
	return t.nodes[idx].agent
}

// Parent returns the parent of the named agent, or nil for the root and
// unknown names.
func (t *AgentTree) Parent(name string) Agent {
	if t == nil {
		return nil
	}
	idx, ok := t.byName[name]
	if !ok || t.nodes[idx].parent < 0 {
		return nil
	}
	return t.nodes[t.nodes[idx].parent].agent
}

// Children returns the direct sub-agents of the named agent.
func (t *AgentTree) Children(name string) []Agent {
	if t == nil {
		return nil
	}
	idx, ok := t.byName[name]
	if !ok {
		return nil
	}
	out := make([]Agent, 0, len(t.nodes[idx].children))
	for _, c := range t.nodes[idx].children {
		out = append(out, t.nodes[c].agent)
	}
	return out
}

// Peers returns the siblings of the named agent, excluding itself.
func (t *AgentTree) Peers(name string) []Agent {
	parent := t.Parent(name)
	if parent == nil {
		return nil
	}
	var out []Agent
	for _, a := range t.Children(parent.Name()) {
		if a.Name() != name {
			out = append(out, a)
		}
	}
	return out
}

// Path returns the names from the root down to the named agent.
func (t *AgentTree) Path(name string) []string {
	if t == nil {
		return nil
	}
	idx, ok := t.byName[name]
	if !ok {
		return nil
	}
	var path []string
	for ; idx >= 0; idx = t.nodes[idx].parent {
		path = append(path, t.nodes[idx].agent.Name())
	}
	slices.Reverse(path)
	return path
}

// Len returns the number of agents in the tree.
func (t *AgentTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}
