// Package storage provides persistence backends for conversation state.
//
// Three implementations of state.Provider are available: an in-memory store
// for tests and single-process deployments, a SQLite store (pure-Go driver,
// WAL mode) for durable single-node deployments, and a Redis store for
// sharing state across processes. The SQLite and Redis stores serialize
// flags and flag history as JSON; the in-memory store keeps cloned records.
// All stores honor each record's expires_at.
package storage
