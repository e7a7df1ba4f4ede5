// Package runner is the entry point for executing an agent tree.
//
// A Runner owns the stores, plugins and run configuration shared by every
// invocation. For each user message it:
//   - loads (or creates) the session and records the message
//   - selects the agent that should answer: the owner of a long-running call
//     the message responds to, else the last agent that spoke if control can
//     flow back from it, else the root
//   - pulls the agent's event stream, committing each non-partial event to
//     the session before the next one is produced
//   - turns a failure of the tree into a terminal event carrying an error
//     code and message
//
// Invocations can be cancelled by id; in-flight model and tool calls observe
// the cancellation through their context.
package runner
