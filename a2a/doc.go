// Package a2a adapts agentloom to an agent-to-agent task protocol.
//
// ConvertEvent and ConvertMessage translate between core events and the
// protocol's JSON data model, TaskStateAggregator derives the terminal task
// state from a stream of status updates, and Executor serves a task end to
// end on top of a runner.Runner.
package a2a
