// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side‑effects) with schema
// validated arguments, consistent error handling and rich metadata for LLM guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentloom/core"
)

// Tool is the capability contract shared with the rest of agentloom.
//
// Tools have access to the ToolContext for session state, agent flow control,
// credential requests, memory and artifact management. Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Declare a JSON schema for their parameters
//   - Be safe for concurrent use; calls of one model turn run in parallel
type Tool = core.Tool

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying error when Details carries one.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// declaration builds the model-facing schema for a tool.
func declaration(name, description string, parameters map[string]any) *core.ToolDeclaration {
	return &core.ToolDeclaration{Name: name, Description: description, Parameters: parameters}
}
