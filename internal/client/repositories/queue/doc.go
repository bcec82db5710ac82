// Package queue persists the pending operation queue: the durable record of
// every local change that still has to reach the server.
//
// The queue holds at most one operation per (entity type, entity id). A new
// mutation replaces the queued one in a single upsert statement, so
// concurrent enqueuers for the same entity always leave exactly one row.
package queue
