// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"

	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// Record is the server copy of one synchronized entity. Deleted records are
// kept as tombstones so that pulls can report the delete.
type Record struct {
	EntityType syncapi.EntityType
	EntityID   string
	// UserID owns the record; other users may neither read nor write it.
	UserID    string
	Payload   json.RawMessage
	Version   int64
	UpdatedAt time.Time
	Deleted   bool
}

// Change converts r to its pull representation.
func (r *Record) Change() syncapi.RemoteChange {
	c := syncapi.RemoteChange{
		EntityID:  r.EntityID,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
		Deleted:   r.Deleted,
	}
	if !r.Deleted {
		c.Payload = r.Payload
	}
	return c
}
