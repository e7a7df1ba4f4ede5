// Package agent contains the agent implementations of agentloom:
//
//  1. Lifecycle plumbing shared by every agent (BaseAgent)
//  2. Composition operators (SequentialAgent, ParallelAgent, LoopAgent)
//  3. The model-driven conversational agent (LLMAgent)
//  4. FuncAgent, an adapter for hand-written agents
//
// Every agent's Run returns a lazily produced core.EventStream. Composite
// agents pull their children's streams and re-yield the events; they never
// append to the session themselves. Persisting non-partial events before the
// next pull is the job of the consumer (normally the runner), which is what
// lets a later agent observe the state written by an earlier one.
//
// Agents hold no references to their parents. Runtime lookups such as model
// inheritance or transfer targets go through the core.AgentTree carried by
// the InvocationContext.
package agent
