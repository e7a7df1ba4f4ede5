package core

// ToolDeclaration is the schema of a tool as advertised to a model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ModelRequest is what a model backend receives for one call: the
// reconstructed conversation, the system instruction and the declared tools.
type ModelRequest struct {
	Model             string            `json:"model,omitempty"`
	SystemInstruction string            `json:"system_instruction,omitempty"`
	Contents          []Content         `json:"contents"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
	Stream            bool              `json:"stream,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
}

// AppendInstructions adds text to the system instruction, separated by a
// blank line.
func (r *ModelRequest) AppendInstructions(text ...string) {
	for _, t := range text {
		if t == "" {
			continue
		}
		if r.SystemInstruction != "" {
			r.SystemInstruction += "\n\n"
		}
		r.SystemInstruction += t
	}
}

// AppendTools declares tools, skipping names that are already declared.
func (r *ModelRequest) AppendTools(decls ...ToolDeclaration) {
	seen := make(map[string]struct{}, len(r.Tools))
	for _, d := range r.Tools {
		seen[d.Name] = struct{}{}
	}
	for _, d := range decls {
		if _, ok := seen[d.Name]; ok {
			continue
		}
		seen[d.Name] = struct{}{}
		r.Tools = append(r.Tools, d)
	}
}

// TokenUsage reports token accounting for one response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelResponse is one (possibly partial) response from a model backend.
type ModelResponse struct {
	Content        *Content       `json:"content,omitempty"`
	Partial        bool           `json:"partial,omitempty"`
	TurnComplete   bool           `json:"turn_complete,omitempty"`
	FinishReason   string         `json:"finish_reason,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Interrupted    bool           `json:"interrupted,omitempty"`
	Usage          *TokenUsage    `json:"usage,omitempty"`
	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`
}
