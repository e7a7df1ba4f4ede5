// Package memory contains concrete MemoryStore implementations. The store
// interface and MemoryEntry type reside in the core package. Depend on
// core.MemoryStore in your code and select an implementation (like the
// in‑memory store below) at wiring time.
package memory
