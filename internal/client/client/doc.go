// Package client is the transport of the sync engine.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): Ping,
//     SyncChanges and RefreshToken.
//  2. A gRPC implementation (see GRPCClient) that speaks the JSON-encoded
//     motium.sync.v1.SyncService, attaches the access token and device id via
//     an interceptor, renews an expired token once per call through a
//     TokenSource, and guards calls with a circuit breaker so an unreachable
//     server fails fast instead of stacking timeouts.
//
// # Error Handling
//
// Transport conditions are exposed as sentinel errors that callers can match
// with errors.Is: ErrUnavailable (network down, deadline, open breaker) and
// ErrUnauthorized (credentials rejected).
//
// All operations accept context.Context and honor cancellation. A per-call
// timeout is applied when configured.
package client
