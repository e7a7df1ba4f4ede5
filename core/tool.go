package core

// Tool is a capability an LLM agent can invoke through a function call.
//
// Run receives a private deep copy of the call arguments. A long-running tool
// may return a nil result; the call is then left pending until the client
// supplies a matching function response.
type Tool interface {
	Name() string
	Description() string
	IsLongRunning() bool
	// Declaration returns the schema advertised to the model, or nil for
	// tools that are never declared (e.g. built-in plumbing).
	Declaration() *ToolDeclaration
	Run(tc *ToolContext, args map[string]any) (any, error)
}

// NormalizeToolResult wraps non-map results as {"result": v}. A nil result
// stays nil.
func NormalizeToolResult(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return t
	default:
		return map[string]any{"result": v}
	}
}
