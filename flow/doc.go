// Package flow drives a single LLM agent: it assembles a model request from
// the session history through a chain of request processors, calls the
// model, executes the function calls it returns and hands control to other
// agents on transfer.
//
// The history reconstruction (BuildContents) and the parallel function-call
// coordinator (HandleFunctionCalls) are exported so custom agents can reuse
// them.
package flow
