package syncapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
)

// Payload is the closed set of business documents that can be synchronized.
// Every push and pull payload is a full snapshot of the entity.
type Payload interface {
	EntityType() EntityType
	Validate() error
}

type TripType string

const (
	TripPro   TripType = "PRO"
	TripPerso TripType = "PERSO"
)

type Trip struct {
	UserID              string     `json:"user_id"`
	VehicleID           string     `json:"vehicle_id,omitempty"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	DistanceKm          float64    `json:"distance_km"`
	StartAddress        string     `json:"start_address,omitempty"`
	EndAddress          string     `json:"end_address,omitempty"`
	Type                TripType   `json:"type"`
	IsValidated         bool       `json:"is_validated"`
	ReimbursementAmount float64    `json:"reimbursement_amount"`
	Notes               string     `json:"notes,omitempty"`
}

func (Trip) EntityType() EntityType { return EntityTrip }

func (t Trip) Validate() error {
	var errs []error
	if t.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if t.Type != TripPro && t.Type != TripPerso {
		errs = append(errs, fmt.Errorf("invalid trip type %q", t.Type))
	}
	if t.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if t.EndTime != nil && t.EndTime.Before(t.StartTime) {
		errs = append(errs, errors.New("end_time before start_time"))
	}
	if t.DistanceKm < 0 {
		errs = append(errs, errors.New("distance_km must not be negative"))
	}
	if t.ReimbursementAmount < 0 {
		errs = append(errs, errors.New("reimbursement_amount must not be negative"))
	}
	return joinValidation(errs)
}

type VehicleType string

const (
	VehicleCar        VehicleType = "CAR"
	VehicleMotorcycle VehicleType = "MOTORCYCLE"
	VehicleScooter    VehicleType = "SCOOTER"
	VehicleBike       VehicleType = "BIKE"
)

type Vehicle struct {
	UserID       string      `json:"user_id"`
	Name         string      `json:"name"`
	Type         VehicleType `json:"type"`
	LicensePlate string      `json:"license_plate,omitempty"`
	Power        string      `json:"power,omitempty"`
	FuelType     string      `json:"fuel_type,omitempty"`
	MileageRate  float64     `json:"mileage_rate"`
	IsDefault    bool        `json:"is_default"`
}

func (Vehicle) EntityType() EntityType { return EntityVehicle }

func (v Vehicle) Validate() error {
	var errs []error
	if v.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if strings.TrimSpace(v.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch v.Type {
	case VehicleCar, VehicleMotorcycle, VehicleScooter, VehicleBike:
	default:
		errs = append(errs, fmt.Errorf("invalid vehicle type %q", v.Type))
	}
	if v.MileageRate < 0 {
		errs = append(errs, errors.New("mileage_rate must not be negative"))
	}
	return joinValidation(errs)
}

type SubscriptionType string

const (
	SubscriptionFree     SubscriptionType = "FREE"
	SubscriptionPremium  SubscriptionType = "PREMIUM"
	SubscriptionLifetime SubscriptionType = "LIFETIME"
	SubscriptionLicensed SubscriptionType = "LICENSED"
)

type User struct {
	Email            string           `json:"email"`
	Name             string           `json:"name"`
	PhoneNumber      string           `json:"phone_number,omitempty"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	MonthlyTripCount int              `json:"monthly_trip_count"`
}

func (User) EntityType() EntityType { return EntityUser }

func (u User) Validate() error {
	var errs []error
	if !strings.Contains(u.Email, "@") {
		errs = append(errs, fmt.Errorf("invalid email %q", u.Email))
	}
	switch u.SubscriptionType {
	case SubscriptionFree, SubscriptionPremium, SubscriptionLifetime, SubscriptionLicensed:
	default:
		errs = append(errs, fmt.Errorf("invalid subscription type %q", u.SubscriptionType))
	}
	if u.MonthlyTripCount < 0 {
		errs = append(errs, errors.New("monthly_trip_count must not be negative"))
	}
	return joinValidation(errs)
}

type LicenseStatus string

const (
	LicenseAvailable LicenseStatus = "AVAILABLE"
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseCanceled  LicenseStatus = "CANCELED"
	LicenseExpired   LicenseStatus = "EXPIRED"
)

type License struct {
	ProAccountID      string        `json:"pro_account_id"`
	LinkedAccountID   *string       `json:"linked_account_id,omitempty"`
	Status            LicenseStatus `json:"status"`
	StartDate         *time.Time    `json:"start_date,omitempty"`
	EndDate           *time.Time    `json:"end_date,omitempty"`
	IsLifetime        bool          `json:"is_lifetime"`
	UnlinkRequestedAt *time.Time    `json:"unlink_requested_at,omitempty"`
	UnlinkEffectiveAt *time.Time    `json:"unlink_effective_at,omitempty"`
}

func (License) EntityType() EntityType { return EntityLicense }

func (l License) Validate() error {
	var errs []error
	if l.ProAccountID == "" {
		errs = append(errs, errors.New("pro_account_id is required"))
	}
	switch l.Status {
	case LicenseAvailable, LicenseCanceled, LicenseExpired:
	case LicenseActive:
		if l.LinkedAccountID == nil || *l.LinkedAccountID == "" {
			errs = append(errs, errors.New("active license requires linked_account_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid license status %q", l.Status))
	}
	if l.StartDate != nil && l.EndDate != nil && l.EndDate.Before(*l.StartDate) {
		errs = append(errs, errors.New("end_date before start_date"))
	}
	if l.UnlinkRequestedAt != nil && l.UnlinkEffectiveAt != nil && l.UnlinkEffectiveAt.Before(*l.UnlinkRequestedAt) {
		errs = append(errs, errors.New("unlink_effective_at before unlink_requested_at"))
	}
	return joinValidation(errs)
}

func joinValidation(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrValidation, errors.Join(errs...))
}

// DecodePayload parses raw into the concrete payload for t and validates it.
// Unknown fields are rejected so that a typo never silently drops data.
func DecodePayload(t EntityType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case EntityTrip:
		p = &Trip{}
	case EntityVehicle:
		p = &Vehicle{}
	case EntityUser:
		p = &User{}
	case EntityLicense:
		p = &License{}
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", common.ErrValidation, t)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrValidation)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %w", common.ErrValidation, t, err)
	}

	p = deref(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodePayload validates p and marshals it to its wire form.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", common.ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EntityType(), err)
	}
	return b, nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *Trip:
		return *v
	case *Vehicle:
		return *v
	case *User:
		return *v
	case *License:
		return *v
	}
	return p
}
