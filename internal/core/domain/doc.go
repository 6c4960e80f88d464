// Package domain defines the core domain models for pairlink.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - State: the session lifecycle graph
//   - Session: the per-session record kept in the registry
//   - Event: what a protocol connection reports back
//   - Credentials: the durable material needed to resume without pairing
//   - Errors: domain error catalogue
package domain
