// Package core provides the foundational domain types, interfaces and execution
// contexts used by agentloom. It defines the core abstractions for:
//
//   - Agents and the arena AgentTree (units of work and their hierarchy)
//   - Events and EventStream (the append-only log and lazily produced sequences)
//   - Sessions and the layered State view (committed state plus pending delta)
//   - InvocationContext / CallbackContext / ToolContext (scoped execution)
//   - The plugin chain and agent-local callbacks around every boundary
//   - Pluggable stores for sessions, artifacts and memory
//
// Implementation concerns (persistence backends, flows, concrete agents) live
// in other packages; core keeps small interfaces so they can be swapped.
package core
