// Package models defines the client-side sync domain: locally stored entities
// and the pending operations that carry their changes to the server.
package models

import (
	"time"

	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type (
	EntityType = syncapi.EntityType
	Action     = syncapi.Action
)

// SyncStatus tracks whether a local entity agrees with the server.
type SyncStatus string

const (
	StatusSynced        SyncStatus = "SYNCED"
	StatusPendingUpload SyncStatus = "PENDING_UPLOAD"
	StatusConflict      SyncStatus = "CONFLICT"
)

// Entity is a locally stored, versioned business object.
type Entity struct {
	ID   string
	Type EntityType

	// Payload is the full business document; nil for tombstones created
	// from a pulled delete that was never seen locally.
	Payload syncapi.Payload

	// Version is bumped on every local mutation and overwritten by the
	// server's value whenever the server is authoritative.
	Version    int64
	SyncStatus SyncStatus

	LocalUpdatedAt  time.Time
	ServerUpdatedAt time.Time

	Deleted bool
}

// Pending reports whether the entity carries a local change that has not
// been acknowledged by the server. Pulls never overwrite such entities.
func (e *Entity) Pending() bool {
	return e.SyncStatus == StatusPendingUpload
}
