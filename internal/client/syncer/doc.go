// Package syncer reconciles the local store with the server.
//
// A round pushes the pending operation queue in priority order, in batches,
// and finishes with a pull of every entity type changed since its watermark.
// The last batch and the pull share one SyncChanges call. Each response is
// applied locally in a single transaction.
//
// Per-operation failures never abort a round: transient ones are rescheduled
// with exponential backoff, permanent ones are frozen for an operator and
// version conflicts are settled in favor of the server. A transport failure
// ends the round in the BACKOFF state with the queue and the watermarks left
// as they were.
//
// Only one round runs at a time. Triggers that arrive while a round is in
// flight are coalesced into it.
package syncer
