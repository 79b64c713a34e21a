package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// RequestKind identifies which approval workflow a request belongs to.
type RequestKind string

const (
	RequestMaintenance RequestKind = "maintenance"
	RequestSparePart   RequestKind = "spare_part"
	RequestFuel        RequestKind = "fuel"
	RequestPerDiem     RequestKind = "per_diem"
)

// IsValidRequestKind checks if a request kind is valid.
func IsValidRequestKind(kind RequestKind) bool {
	switch kind {
	case RequestMaintenance, RequestSparePart, RequestFuel, RequestPerDiem:
		return true
	default:
		return false
	}
}

// Request status values.
const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestCompleted = "completed" // maintenance only
)

// Request is the shared shape of all approval workflows. Kind-specific
// payload fields are populated according to Kind and ignored otherwise.
type Request struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Kind        RequestKind        `json:"kind" bson:"kind"`
	VehicleID   string             `json:"vehicle_id" bson:"vehicle_id"`
	RequesterID string             `json:"requester_id" bson:"requester_id"`
	Status      string             `json:"status" bson:"status"` // "pending", "approved", "rejected", "completed"
	Description string             `json:"description" bson:"description"`

	// maintenance
	Category string  `json:"category,omitempty" bson:"category,omitempty"` // "engine", "brakes", "electrical", "tires", "body", "other"
	Cost     float64 `json:"cost,omitempty" bson:"cost,omitempty"`         // set when the linked work order completes

	// spare_part
	ItemID   string `json:"item_id,omitempty" bson:"item_id,omitempty"`
	Quantity int    `json:"quantity,omitempty" bson:"quantity,omitempty"`

	// fuel
	Liters float64 `json:"liters,omitempty" bson:"liters,omitempty"`

	// fuel / per_diem
	Amount float64 `json:"amount,omitempty" bson:"amount,omitempty"` // in USD

	// per_diem
	PeriodStart *time.Time `json:"period_start,omitempty" bson:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty" bson:"period_end,omitempty"`

	ApprovedBy    string     `json:"approved_by,omitempty" bson:"approved_by,omitempty"`
	ApprovedDate  *time.Time `json:"approved_date,omitempty" bson:"approved_date,omitempty"`
	RejectedBy    string     `json:"rejected_by,omitempty" bson:"rejected_by,omitempty"`
	RejectionNote string     `json:"rejection_note,omitempty" bson:"rejection_note,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty" bson:"completed_date,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// IsOpen reports whether the request still occupies its uniqueness scope.
func (r *Request) IsOpen() bool {
	return r.Status == RequestPending || r.Status == RequestApproved
}
