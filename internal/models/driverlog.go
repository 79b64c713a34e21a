package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// MaxDailyDistanceKm caps the distance a single driver log may record.
const MaxDailyDistanceKm = 1500

// DriverLog is one trip record in a vehicle's odometer chain. Consecutive
// logs for a vehicle, ordered by date, must have no gaps or overlaps:
// each log's start km equals the previous log's end km.
type DriverLog struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID  string             `json:"vehicle_id" bson:"vehicle_id"`
	DriverID   string             `json:"driver_id" bson:"driver_id"`
	Date       time.Time          `json:"date" bson:"date"`
	StartKm    float64            `json:"start_km" bson:"start_km"`
	EndKm      float64            `json:"end_km" bson:"end_km"`
	Distance   float64            `json:"distance" bson:"distance"` // end_km - start_km
	Remarks    string             `json:"remarks" bson:"remarks"`
	IsEditable bool               `json:"is_editable" bson:"is_editable"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}
