package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StockMovementKind classifies a single stock ledger entry.
type StockMovementKind string

const (
	StockAddition   StockMovementKind = "addition"
	StockUsage      StockMovementKind = "usage"
	StockAdjustment StockMovementKind = "adjustment"
	StockDamage     StockMovementKind = "damage"
	StockReturn     StockMovementKind = "return"
)

// IsValidStockMovementKind checks if a movement kind is valid.
func IsValidStockMovementKind(kind StockMovementKind) bool {
	switch kind {
	case StockAddition, StockUsage, StockAdjustment, StockDamage, StockReturn:
		return true
	default:
		return false
	}
}

// StockEntry is one immutable ledger record describing a single stock change.
// Entries are appended to an item's history and never edited or deleted.
type StockEntry struct {
	Kind          StockMovementKind `json:"kind" bson:"kind"`
	Quantity      int               `json:"quantity" bson:"quantity"`
	Delta         int               `json:"delta" bson:"delta"` // signed; what was actually applied to the stock
	PreviousStock int               `json:"previous_stock" bson:"previous_stock"`
	NewStock      int               `json:"new_stock" bson:"new_stock"`
	Reason        string            `json:"reason" bson:"reason"`
	VehicleID     string            `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	PerformedBy   string            `json:"performed_by" bson:"performed_by"`
	Timestamp     time.Time         `json:"timestamp" bson:"timestamp"`
}

// InventoryItem represents a spare part or consumable tracked by the stock ledger.
type InventoryItem struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ItemCode     string             `json:"item_code" bson:"item_code"`
	ItemName     string             `json:"item_name" bson:"item_name"`
	Category     string             `json:"category" bson:"category"` // "engine", "brakes", "electrical", "tires", "fluids", "other"
	Unit         string             `json:"unit" bson:"unit"`         // "piece", "liter", "kg", "set"
	CurrentStock int                `json:"current_stock" bson:"current_stock"`
	MinimumStock int                `json:"minimum_stock" bson:"minimum_stock"`
	MaximumStock int                `json:"maximum_stock" bson:"maximum_stock"` // 0 means no maximum
	UnitPrice    float64            `json:"unit_price" bson:"unit_price"`       // in USD
	Status       string             `json:"status" bson:"status"`               // "active", "discontinued", "out_of_stock"
	StockHistory []StockEntry       `json:"stock_history" bson:"stock_history"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

// StockStatus classifies an item's stock level relative to its thresholds.
// Derived on read, never stored.
func (i *InventoryItem) StockStatus() string {
	switch {
	case i.CurrentStock == 0:
		return "out_of_stock"
	case i.CurrentStock <= i.MinimumStock:
		return "low_stock"
	case i.MaximumStock > 0 && i.CurrentStock >= i.MaximumStock:
		return "overstocked"
	default:
		return "adequate"
	}
}
