// Package session houses concrete implementations of core.SessionStore and the
// scoping rules every backend shares.
//
// State keys are partitioned by prefix: "app:" keys are shared by every
// session of an app, "user:" keys by every session of a user, unprefixed keys
// belong to one session and "temp:" keys are never persisted. Backends persist
// the three durable scopes separately and merge them back on Get.
//
// Sub‑packages add durable backends (badger, redis) without changing any
// calling code – only the wiring layer decides which implementation to
// instantiate.
package session
