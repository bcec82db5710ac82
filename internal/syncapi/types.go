package syncapi

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType names a synchronized table.
type EntityType string

const (
	EntityTrip    EntityType = "TRIP"
	EntityVehicle EntityType = "VEHICLE"
	EntityUser    EntityType = "USER"
	EntityLicense EntityType = "LICENSE"
)

// AllEntityTypes lists every synchronized type in dependency order
// (parents before children), which is also the pull application order.
var AllEntityTypes = []EntityType{EntityUser, EntityLicense, EntityVehicle, EntityTrip}

func (t EntityType) Valid() bool {
	switch t {
	case EntityTrip, EntityVehicle, EntityUser, EntityLicense:
		return true
	}
	return false
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Action is the kind of mutation carried by a push item.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Error codes returned in PushResult.ErrorCode.
const (
	CodeVersionConflict      = "VERSION_CONFLICT"
	CodeNotAuthenticated     = "NOT_AUTHENTICATED"
	CodeNotAuthorized        = "NOT_AUTHORIZED"
	CodeReferentialViolation = "REFERENTIAL_VIOLATION"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeTransient            = "TRANSIENT"
	CodeInternal             = "INTERNAL"
)

// PushItem is one pending operation as sent to the server.
type PushItem struct {
	EntityType      EntityType      `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Action          Action          `json:"action"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ExpectedVersion int64           `json:"expected_version"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

// PushResult is the server's verdict for the PushItem at the same index.
type PushResult struct {
	Success         bool      `json:"success"`
	ServerVersion   int64     `json:"server_version,omitempty"`
	ServerUpdatedAt time.Time `json:"server_updated_at,omitzero"`
	ErrorCode       string    `json:"error_code,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// RemoteChange is one row of a pull result.
type RemoteChange struct {
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted,omitempty"`
}

type SyncChangesRequest struct {
	Push      []PushItem               `json:"push"`
	PullSince map[EntityType]time.Time `json:"pull_since,omitempty"`
}

type SyncChangesResponse struct {
	PushResults []PushResult                  `json:"push_results"`
	PullResults map[EntityType][]RemoteChange `json:"pull_results,omitempty"`
	// HasMore marks the types whose pull result was cut at the page size.
	// The next page starts after the newest updated_at of this one.
	HasMore       map[EntityType]bool `json:"has_more,omitempty"`
	SyncTimestamp time.Time           `json:"sync_timestamp"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
