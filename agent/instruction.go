package agent

import "github.com/hupe1980/agentloom/core"

// Provider supplies instruction text at runtime.
type Provider interface {
	Instruction(cc *core.CallbackContext) (string, error)
}

// ProviderFunc adapts an ordinary function to a Provider.
type ProviderFunc func(cc *core.CallbackContext) (string, error)

// Instruction implements Provider.
func (f ProviderFunc) Instruction(cc *core.CallbackContext) (string, error) { return f(cc) }

// Instruction is either static text or a dynamic provider. Static text is
// templated with {key} placeholders before it reaches the model; provider
// output is used as is.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(cc *core.CallbackContext) (string, error)) Instruction {
	return Instruction{provider: ProviderFunc(f)}
}

// IsStatic reports whether the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text and whether templating must be
// bypassed.
func (i Instruction) Resolve(cc *core.CallbackContext) (string, bool, error) {
	if i.provider != nil {
		text, err := i.provider.Instruction(cc)
		return text, true, err
	}
	return i.text, false, nil
}
