package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wichigo/Motium-sub012/internal/cryptox"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// PendingOperation is a queued local change awaiting a push. At most one
// exists per (EntityType, EntityID).
type PendingOperation struct {
	ID         string
	EntityType EntityType
	EntityID   string
	Action     Action
	Payload    json.RawMessage
	CreatedAt  time.Time
	Priority   int

	RetryCount    int
	LastAttemptAt time.Time
	LastError     string
	NextAttemptAt time.Time

	// BaseVersion is the last server-confirmed version the change builds on.
	BaseVersion int64

	// Frozen marks a permanent failure; frozen ops wait for an operator.
	Frozen bool
}

// NewPendingOperation builds a fresh operation with a random id and the
// default priority of its entity type.
func NewPendingOperation(t EntityType, entityID string, action Action, payload json.RawMessage, baseVersion int64, now time.Time) *PendingOperation {
	return &PendingOperation{
		ID:          uuid.NewString(),
		EntityType:  t,
		EntityID:    entityID,
		Action:      action,
		Payload:     payload,
		CreatedAt:   now.UTC().Truncate(time.Microsecond),
		Priority:    DefaultPriority(t),
		BaseVersion: baseVersion,
	}
}

// ExpectedVersion is the version the server must reach by applying this op.
func (op *PendingOperation) ExpectedVersion() int64 {
	return op.BaseVersion + 1
}

// IdempotencyKey is stable for a given (type, id, action, createdAt), so a
// resend after a lost response is recognized by the server.
func (op *PendingOperation) IdempotencyKey() string {
	return cryptox.Digest(
		string(op.EntityType),
		op.EntityID,
		string(op.Action),
		strconv.FormatInt(timex.ToMicros(op.CreatedAt), 10),
	)
}

func (op *PendingOperation) PushItem() syncapi.PushItem {
	item := syncapi.PushItem{
		EntityType:      op.EntityType,
		EntityID:        op.EntityID,
		Action:          op.Action,
		ExpectedVersion: op.ExpectedVersion(),
		IdempotencyKey:  op.IdempotencyKey(),
	}
	if op.Action != syncapi.ActionDelete {
		item.Payload = op.Payload
	}
	return item
}

// DefaultPriority drains parents before the rows that reference them:
// users, then licenses, then vehicles, then trips.
func DefaultPriority(t EntityType) int {
	switch t {
	case syncapi.EntityUser:
		return 30
	case syncapi.EntityLicense:
		return 20
	case syncapi.EntityVehicle:
		return 10
	default:
		return 0
	}
}

// ResolveAction picks the action for a fresh local mutation. An entity the
// server has never confirmed (baseVersion 0) can only be created.
func ResolveAction(deleted bool, baseVersion int64) Action {
	switch {
	case deleted:
		return syncapi.ActionDelete
	case baseVersion == 0:
		return syncapi.ActionCreate
	default:
		return syncapi.ActionUpdate
	}
}
