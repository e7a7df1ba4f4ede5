package tool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/internal/util"
)

// Func is the signature of a function exposed as a tool.
type Func func(tc *core.ToolContext, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the JSON schema of the accepted arguments (parameters)
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext giving access to state,
//     logging, the function call id, artifacts and memory
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency:
//
//	A FunctionTool has no mutable state after its schema is compiled and is safe
//	for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	longRunning bool
	fn          Func

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	// LongRunning marks the tool as completing outside the current turn.
	LongRunning bool
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		longRunning: opts.LongRunning,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := tool.NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// NewLongRunningFunctionTool wraps fn as a long-running tool. Returning a nil
// result leaves the call pending; the client resolves it later with a
// function response carrying the same call id.
func NewLongRunningFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, parameters, fn, func(o *FunctionToolOptions) { o.LongRunning = true })
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// IsLongRunning reports whether the tool may leave its call pending.
func (t *FunctionTool) IsLongRunning() bool { return t.longRunning }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Declaration returns the schema advertised to the model. Long-running tools
// get a note so the model does not call them again while pending.
func (t *FunctionTool) Declaration() *core.ToolDeclaration {
	desc := t.description
	if t.longRunning {
		desc += "\n\nNOTE: This is a long-running operation. Do not call this tool again if it has already returned some status."
	}
	return declaration(t.name, desc, t.parameters)
}

func (t *FunctionTool) schema() (*jsonschema.Schema, error) {
	t.compileOnce.Do(func() {
		if len(t.parameters) == 0 {
			return
		}
		t.compiled, t.compileErr = util.CompileSchema(t.name, t.parameters)
	})
	return t.compiled, t.compileErr
}

// Run validates the provided args against the declared schema then invokes the
// underlying function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Run(tc *core.ToolContext, args map[string]any) (any, error) {
	start := time.Now()

	tc.LogDebug("tool.call.start", "tool", t.name, "fc_id", tc.FunctionCallID())

	schema, err := t.schema()
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation, Details: err}
	}
	if err := util.ValidateArgs(schema, args); err != nil {
		tc.LogWarn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			tc.LogError("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		tc.LogError("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	tc.LogInfo("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
