package models

import (
	"time"
)

// LocationPing is a position report from a vehicle's tracker. The engine only
// keeps the latest ping per vehicle to derive online status.
type LocationPing struct {
	VehicleID string    `bson:"vehicle_id" json:"vehicle_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Location  Location  `bson:"location" json:"location"`
	SpeedKmh  float64   `bson:"speed_kmh" json:"speed_kmh"`
}
