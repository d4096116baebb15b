// Package state holds per-conversation flag state and the in-memory cache
// that fronts an optional external persistence provider.
//
// Conversation state is keyed by the (tokenId, conversationId, accountId)
// tuple and carries a set of named boolean flags plus an append-only history
// of flag mutations. State objects are treated as immutable once published:
// the evaluator mutates by cloning, so a snapshot handed out in one result
// is never changed by a later rule (copy-on-write).
//
// The Cache keeps recently used states in memory with a last-access TTL and
// LRU eviction, and batches write-through to the provider: dirty entries are
// flushed together a short debounce interval after the first dirty mark in
// an idle window. A dirty entry is always flushed before it is evicted.
package state
