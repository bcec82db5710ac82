// Package cli wires the sync client together and exposes it as a small set
// of commands: a long-running "run" mode that keeps the local store in sync
// with the server, plus one-shot commands for inspecting and repairing the
// outbound queue and for recording local changes.
package cli
