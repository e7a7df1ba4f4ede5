package core

import "strings"

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any // Structured key/value payload
	Metadata map[string]any
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FilePart is a file attachment segment.
type FilePart struct {
	File     FilePartFile // File metadata / reference
	Metadata map[string]any
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FilePartFile represents a file attachment segment.
type FilePartFile struct {
	Bytes    string  `json:"bytes,omitempty"`     // Base64 encoded contents (if inlined)
	MimeType *string `json:"mime_type,omitempty"` // Optional MIME type
	Name     *string `json:"name,omitempty"`      // Original filename hint
	URI      string  `json:"uri,omitempty"`       // External retrieval URI (if not inlined)
}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`   // Correlation id; assigned by the engine when the model omits it
	Name string         `json:"name"`           // Tool / function name
	Args map[string]any `json:"args,omitempty"` // Decoded argument payload
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string         `json:"name"`               // Function name
	Response map[string]any `json:"response,omitempty"` // Result object
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// CodeExecutionResult carries the outcome of model-side code execution.
type CodeExecutionResult struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output,omitempty"`
}

// CodeExecutionResultPart wraps a CodeExecutionResult as a content part.
type CodeExecutionResultPart struct {
	Result   CodeExecutionResult
	Metadata map[string]any
}

// isPart implements the Part interface for CodeExecutionResultPart.
func (CodeExecutionResultPart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, model, ...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// Roles used by the engine when it synthesizes content.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// NewTextContent builds a single text part content.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Clone returns a copy of the content with an independent parts slice.
// Function call arguments and responses are deep-copied.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	out := &Content{Role: c.Role, Parts: make([]Part, len(c.Parts))}
	for i, p := range c.Parts {
		switch v := p.(type) {
		case FunctionCallPart:
			v.FunctionCall.Args = CloneMap(v.FunctionCall.Args)
			out.Parts[i] = v
		case FunctionResponsePart:
			v.FunctionResponse.Response = CloneMap(v.FunctionResponse.Response)
			out.Parts[i] = v
		default:
			out.Parts[i] = p
		}
	}
	return out
}

// NewFunctionCallPart builds a function call part.
func NewFunctionCallPart(id, name string, args map[string]any) Part {
	return FunctionCallPart{FunctionCall: FunctionCall{ID: id, Name: name, Args: args}}
}

// NewFunctionResponsePart builds a function response part.
func NewFunctionResponsePart(id, name string, response map[string]any) Part {
	return FunctionResponsePart{FunctionResponse: FunctionResponse{ID: id, Name: name, Response: response}}
}

// FunctionCalls returns the function call parts in order.
func (c *Content) FunctionCalls() []FunctionCall {
	if c == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
