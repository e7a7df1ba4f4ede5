// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing sessions and events (text, function call and
// function response parts). Not intended for production usage.
package testutil
