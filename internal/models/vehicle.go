package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Vehicle status values.
const (
	VehicleActive           = "active"
	VehicleUnderMaintenance = "under_maintenance"
	VehicleInactive         = "inactive"
)

// ServiceRecord is one append-only entry in a vehicle's service history.
type ServiceRecord struct {
	ServiceKm   float64   `bson:"service_km" json:"service_km"`
	Notes       string    `bson:"notes" json:"notes"`
	PerformedBy string    `bson:"performed_by" json:"performed_by"`
	ServiceDate time.Time `bson:"service_date" json:"service_date"`
}

// Vehicle represents a fleet vehicle and its odometer state.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PlateNumber        string             `bson:"plate_number" json:"plate_number"`
	Make               string             `bson:"make" json:"make"`
	Model              string             `bson:"model" json:"model"`
	Year               int                `bson:"year" json:"year"`
	CurrentKm          float64            `bson:"current_km" json:"current_km"`
	InitialKm          float64            `bson:"initial_km" json:"initial_km"` // odometer snapshot at registration
	ServiceIntervalKm  float64            `bson:"service_interval_km" json:"service_interval_km"`
	PreviousServiceKm  float64            `bson:"previous_service_km" json:"previous_service_km"`
	Status             string             `bson:"status" json:"status"` // "active", "under_maintenance", "inactive"
	ServiceHistory     []ServiceRecord    `bson:"service_history" json:"service_history"`
	LastLocation       *Location          `bson:"last_location,omitempty" json:"last_location,omitempty"`
	LastLocationUpdate *time.Time         `bson:"last_location_update,omitempty" json:"last_location_update,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}
