package flow

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/internal/util"
	"github.com/hupe1980/agentloom/tool"
)

// RequestProcessor contributes one aspect of a model request.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ic *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error
}

// DefaultRequestProcessors returns the processor chain used by NewLLMFlow.
func DefaultRequestProcessors() []RequestProcessor {
	return []RequestProcessor{
		NewBasicProcessor(),
		NewInstructionsProcessor(),
		NewIdentityProcessor(),
		NewContentsProcessor(),
		NewToolsProcessor(),
		NewTransferProcessor(),
	}
}

// BasicProcessor copies run-level settings onto the request.
type BasicProcessor struct{}

// NewBasicProcessor creates a new basic processor.
func NewBasicProcessor() *BasicProcessor { return &BasicProcessor{} }

// Name returns the processor's identifier.
func (p *BasicProcessor) Name() string { return "basic" }

// ProcessRequest sets the model name and streaming flag.
func (p *BasicProcessor) ProcessRequest(ic *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	m, err := agent.ResolveModel(ic)
	if err != nil {
		return err
	}
	req.Model = m.Info().Name
	req.Stream = ic.RunConfig.Streaming
	return nil
}

// InstructionsProcessor appends the global and agent instructions, with
// {key} placeholders resolved against state and artifacts.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds system instructions to the model request.
func (p *InstructionsProcessor) ProcessRequest(ic *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	cc := core.NewCallbackContext(ic, nil)

	if ic.Tree != nil {
		if root, ok := ic.Tree.Root().(FlowAgent); ok {
			text, bypass, err := root.ResolveGlobalInstruction(cc)
			if err != nil {
				return fmt.Errorf("failed to resolve global instruction: %w", err)
			}
			if text, err = render(cc, text, bypass); err != nil {
				return err
			}
			req.AppendInstructions(text)
		}
	}

	text, bypass, err := agent.ResolveInstruction(cc)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}
	if text, err = render(cc, text, bypass); err != nil {
		return err
	}
	ic.LogDebug("agent.instruction.resolved", "agent", agent.Name(), "length", len(text))
	req.AppendInstructions(text)
	return nil
}

func render(cc *core.CallbackContext, text string, bypass bool) (string, error) {
	if bypass || text == "" {
		return text, nil
	}
	out, err := util.InjectState(text, stateLookup(cc))
	if err != nil {
		return "", fmt.Errorf("failed to render instruction: %w", err)
	}
	return out, nil
}

func stateLookup(cc *core.CallbackContext) util.Lookup {
	return func(key string) (string, bool, error) {
		if name, ok := strings.CutPrefix(key, "artifact."); ok {
			artifact, err := cc.LoadArtifact(name, 0)
			if errors.Is(err, core.ErrArtifactNotFound) {
				return "", false, nil
			}
			if err != nil {
				return "", false, err
			}
			return string(artifact.Data), true, nil
		}
		v, ok := cc.State().Get(key)
		if !ok {
			return "", false, nil
		}
		if s, ok := v.(string); ok {
			return s, true, nil
		}
		return fmt.Sprint(v), true, nil
	}
}

// IdentityProcessor tells the model which agent it is playing.
type IdentityProcessor struct{}

// NewIdentityProcessor creates a new identity processor.
func NewIdentityProcessor() *IdentityProcessor { return &IdentityProcessor{} }

// Name returns the processor's identifier.
func (p *IdentityProcessor) Name() string { return "identity" }

// ProcessRequest appends the agent name and description.
func (p *IdentityProcessor) ProcessRequest(_ *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	text := fmt.Sprintf("You are an agent. Your internal name is %q.", agent.Name())
	if d := agent.Description(); d != "" {
		text += fmt.Sprintf(" The description about you is %q.", d)
	}
	req.AppendInstructions(text)
	return nil
}

// ContentsProcessor rebuilds the conversation history.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest fills req.Contents from the session log.
func (p *ContentsProcessor) ProcessRequest(ic *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	build := BuildContents
	if agent.IncludeContents() == IncludeContentsNone {
		build = BuildCurrentTurnContents
	}
	contents, err := build(ic.Branch, ic.Events(), agent.Name())
	if err != nil {
		return err
	}
	req.Contents = contents
	return nil
}

// ToolsProcessor declares the agent's tools.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest appends tool declarations.
func (p *ToolsProcessor) ProcessRequest(_ *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	for _, t := range agent.Tools() {
		if d := t.Declaration(); d != nil {
			req.AppendTools(*d)
		}
	}
	return nil
}

// TransferProcessor advertises the agents this agent may hand over to and
// declares the transfer tool when there is at least one.
type TransferProcessor struct{}

// NewTransferProcessor creates a new transfer processor.
func NewTransferProcessor() *TransferProcessor { return &TransferProcessor{} }

// Name returns the processor's identifier.
func (p *TransferProcessor) Name() string { return "transfer" }

// ProcessRequest appends transfer instructions and the transfer tool.
func (p *TransferProcessor) ProcessRequest(ic *core.InvocationContext, req *core.ModelRequest, agent FlowAgent) error {
	targets := TransferTargets(ic.Tree, agent)
	if len(targets) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("You have a list of other agents to transfer to:\n")
	for _, t := range targets {
		fmt.Fprintf(&sb, "\nAgent name: %s\nAgent description: %s\n", t.Name(), t.Description())
	}
	fmt.Fprintf(&sb, "\nIf you are the best to answer the question according to your description, you can answer it.\n\n"+
		"If another agent is better for answering the question according to its description, call `%s` "+
		"to transfer the question to that agent. When transferring, do not generate any text other than the function call.",
		tool.TransferToAgentName)
	if parent := ic.Tree.Parent(agent.Name()); parent != nil && slices.Contains(targets, parent) {
		fmt.Fprintf(&sb, "\n\nYour parent agent is %s. If neither the other agents nor you are best for answering "+
			"the question according to the descriptions, transfer to your parent agent.", parent.Name())
	}

	req.AppendInstructions(sb.String())
	req.AppendTools(*tool.NewTransferToAgentTool().Declaration())
	return nil
}

// TransferTargets lists the agents agent may transfer to: its children, its
// parent and its peers. Parent and peers are only reachable under an LLM
// parent, and each can be disallowed individually.
func TransferTargets(tree *core.AgentTree, agent FlowAgent) []core.Agent {
	if tree == nil {
		return nil
	}
	targets := tree.Children(agent.Name())
	parent := tree.Parent(agent.Name())
	if parent == nil || parent.Kind() != core.KindLLM {
		return targets
	}
	if !agent.DisallowTransferToParent() {
		targets = append(targets, parent)
	}
	if !agent.DisallowTransferToPeers() {
		targets = append(targets, tree.Peers(agent.Name())...)
	}
	return targets
}
