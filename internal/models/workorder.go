package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Work order status values.
const (
	WorkOrderOpen       = "open"
	WorkOrderInProgress = "in_progress"
	WorkOrderOnHold     = "on_hold"
	WorkOrderCompleted  = "completed"
	WorkOrderCancelled  = "cancelled"
)

// SparePartLine is one parts cost line on a work order. Unit cost is a
// snapshot of the inventory price at consumption time.
type SparePartLine struct {
	ItemID    string    `json:"item_id" bson:"item_id"`
	ItemName  string    `json:"item_name" bson:"item_name"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	UnitCost  float64   `json:"unit_cost" bson:"unit_cost"`
	TotalCost float64   `json:"total_cost" bson:"total_cost"`
	AddedBy   string    `json:"added_by" bson:"added_by"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
}

// LaborLine is one labor cost line on a work order.
type LaborLine struct {
	MechanicID  string    `json:"mechanic_id" bson:"mechanic_id"`
	Description string    `json:"description" bson:"description"`
	Hours       float64   `json:"hours" bson:"hours"`
	HourlyRate  float64   `json:"hourly_rate" bson:"hourly_rate"` // in USD
	TotalCost   float64   `json:"total_cost" bson:"total_cost"`
	AddedBy     string    `json:"added_by" bson:"added_by"`
	AddedAt     time.Time `json:"added_at" bson:"added_at"`
}

// ProgressNote is one append-only progress update on a work order.
type ProgressNote struct {
	Note      string    `json:"note" bson:"note"`
	AddedBy   string    `json:"added_by" bson:"added_by"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// HistoryEntry is one append-only audit record of a mutating work order action.
type HistoryEntry struct {
	Action      string    `json:"action" bson:"action"`
	Details     string    `json:"details" bson:"details"`
	PerformedBy string    `json:"performed_by" bson:"performed_by"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// WorkOrder is the executable unit of maintenance labor and parts accounting,
// created from an approved maintenance request.
type WorkOrder struct {
	ID                   primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	WorkOrderNumber      string             `json:"work_order_number" bson:"work_order_number"` // "WO-{year}-{seq:04}"
	MaintenanceRequestID string             `json:"maintenance_request_id" bson:"maintenance_request_id"`
	VehicleID            string             `json:"vehicle_id" bson:"vehicle_id"`
	Status               string             `json:"status" bson:"status"` // "open", "in_progress", "on_hold", "completed", "cancelled"
	AssignedMechanics    []string           `json:"assigned_mechanics" bson:"assigned_mechanics"`
	SpareParts           []SparePartLine    `json:"spare_parts" bson:"spare_parts"`
	LaborCosts           []LaborLine        `json:"labor_costs" bson:"labor_costs"`
	TotalPartsCost       float64            `json:"total_parts_cost" bson:"total_parts_cost"`
	TotalLaborCost       float64            `json:"total_labor_cost" bson:"total_labor_cost"`
	TotalCost            float64            `json:"total_cost" bson:"total_cost"`
	ProgressNotes        []ProgressNote     `json:"progress_notes" bson:"progress_notes"`
	History              []HistoryEntry     `json:"history" bson:"history"`
	FinalNotes           string             `json:"final_notes,omitempty" bson:"final_notes,omitempty"`
	StartedDate          *time.Time         `json:"started_date,omitempty" bson:"started_date,omitempty"`
	CompletedDate        *time.Time         `json:"completed_date,omitempty" bson:"completed_date,omitempty"`
	CreatedBy            string             `json:"created_by" bson:"created_by"`
	CreatedAt            time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" bson:"updated_at"`
}

// IsTerminal reports whether the work order accepts no further transitions.
func (w *WorkOrder) IsTerminal() bool {
	return w.Status == WorkOrderCompleted || w.Status == WorkOrderCancelled
}

// RecomputeTotals recalculates the cost aggregates from the cost lines.
// Called as the final step of every cost-affecting mutation.
func (w *WorkOrder) RecomputeTotals() {
	w.TotalPartsCost = 0
	for _, p := range w.SpareParts {
		w.TotalPartsCost += p.TotalCost
	}
	w.TotalLaborCost = 0
	for _, l := range w.LaborCosts {
		w.TotalLaborCost += l.TotalCost
	}
	w.TotalCost = w.TotalPartsCost + w.TotalLaborCost
}
