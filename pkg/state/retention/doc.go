// Package retention removes expired conversation state from the SQLite
// store on a cron schedule. Redis evicts via key TTLs and the in-memory
// store prunes on read, so only the SQLite backend needs a sweeper.
package retention
