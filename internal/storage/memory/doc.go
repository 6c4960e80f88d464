// Package memory provides an in-memory credential store.
//
// It backs tests and ephemeral deployments where sessions are not
// expected to survive a restart. Failures can be injected per operation
// to exercise the lifecycle's error paths.
package memory
