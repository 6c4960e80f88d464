// Package registry holds the in-memory table of live sessions.
//
// Every entry is an immutable snapshot. Writers replace the snapshot
// atomically under the shard lock, and every replacement or removal
// closes a change channel so waiters can block on the next commit
// instead of polling.
package registry
