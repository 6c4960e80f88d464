// Package service provides the session lifecycle services for pairlink.
//
// Domain services contain the business logic and orchestrate the
// registry, the credential store and the protocol driver. They define
// interfaces for their storage and rendering dependencies, allowing for
// dependency injection and testability.
//
// This package contains:
//
//   - Manager: start, status, wait, logout and send for named sessions
//   - runner: the per-session actor that owns the connection
//   - ReconnectPolicy and Scheduler: backoff timing for reconnects
//   - Bootstrapper: resumes stored sessions at process start
//   - AuthService: API key authentication, authorization, and rate limiting
//
// Every session has exactly one runner goroutine. All transitions of a
// session are committed by its runner, so transitions are serialized per
// session without a lock held across IO.
package service
