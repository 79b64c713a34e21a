package workflow

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// strategy supplies the kind-specific pieces of the shared workflow: payload
// validation, the single-open-request uniqueness scope, and the side effects
// of approval and of leaving the open state.
type strategy interface {
	validate(req *models.Request) error
	// scope returns the filter one open request may occupy, or nil when the
	// kind has no uniqueness rule.
	scope(req *models.Request) bson.M
	// onApprove runs before the pending → approved transition is persisted.
	// An error aborts the transition and the request stays pending.
	onApprove(ctx context.Context, e *Engine, req *models.Request, actor domain.Actor) error
	// onClose runs before rejection or completion is persisted.
	onClose(ctx context.Context, e *Engine, req *models.Request) error
	// compensate undoes onApprove/onClose effects after a lost transition race.
	compensate(ctx context.Context, e *Engine, req *models.Request, target string, actor domain.Actor)
}

type maintenanceStrategy struct{}

func (maintenanceStrategy) validate(req *models.Request) error {
	if req.VehicleID == "" {
		return domain.Validation("vehicle_id", "is required")
	}
	if req.Category == "" {
		return domain.Validation("category", "is required")
	}
	if req.Description == "" {
		return domain.Validation("description", "is required")
	}
	return nil
}

func (maintenanceStrategy) scope(req *models.Request) bson.M {
	return bson.M{
		"kind":       models.RequestMaintenance,
		"vehicle_id": req.VehicleID,
		"category":   req.Category,
	}
}

func (maintenanceStrategy) onApprove(ctx context.Context, e *Engine, req *models.Request, _ domain.Actor) error {
	return e.tracker.SetStatus(ctx, req.VehicleID, models.VehicleUnderMaintenance)
}

func (maintenanceStrategy) onClose(ctx context.Context, e *Engine, req *models.Request) error {
	return e.tracker.SetStatus(ctx, req.VehicleID, models.VehicleActive)
}

func (maintenanceStrategy) compensate(ctx context.Context, e *Engine, req *models.Request, target string, _ domain.Actor) {
	if target != models.RequestApproved {
		return
	}
	// The lost approval had parked the vehicle; release it.
	if err := e.tracker.SetStatus(ctx, req.VehicleID, models.VehicleActive); err != nil {
		log.WithError(err).WithField("vehicle_id", req.VehicleID).Error("failed to restore vehicle status")
	}
}

type sparePartStrategy struct{}

func (sparePartStrategy) validate(req *models.Request) error {
	if req.VehicleID == "" {
		return domain.Validation("vehicle_id", "is required")
	}
	if req.ItemID == "" {
		return domain.Validation("item_id", "is required")
	}
	if req.Quantity <= 0 {
		return domain.Validation("quantity", "must be positive")
	}
	return nil
}

func (sparePartStrategy) scope(_ *models.Request) bson.M { return nil }

// onApprove consumes the requested stock. Insufficient stock aborts the
// whole transition: the ledger is untouched and the request stays pending.
func (sparePartStrategy) onApprove(ctx context.Context, e *Engine, req *models.Request, actor domain.Actor) error {
	_, err := e.ledger.AdjustStock(ctx, req.ItemID, models.StockUsage, req.Quantity, 0,
		"spare part request "+req.ID.Hex(), req.VehicleID, actor)
	return err
}

func (sparePartStrategy) onClose(context.Context, *Engine, *models.Request) error { return nil }

func (sparePartStrategy) compensate(ctx context.Context, e *Engine, req *models.Request, target string, actor domain.Actor) {
	if target != models.RequestApproved {
		return
	}
	// Return the stock consumed by the lost approval.
	_, err := e.ledger.AdjustStock(ctx, req.ItemID, models.StockReturn, req.Quantity, 0,
		"spare part request "+req.ID.Hex()+" (approval lost race)", req.VehicleID, actor)
	if err != nil {
		log.WithError(err).WithField("item_id", req.ItemID).Error("failed to return stock after lost approval race")
	}
}

type fuelStrategy struct{}

func (fuelStrategy) validate(req *models.Request) error {
	if req.VehicleID == "" {
		return domain.Validation("vehicle_id", "is required")
	}
	if req.Liters <= 0 {
		return domain.Validation("liters", "must be positive")
	}
	if req.Amount < 0 {
		return domain.Validation("amount", "must not be negative")
	}
	return nil
}

func (fuelStrategy) scope(req *models.Request) bson.M {
	return bson.M{
		"kind":       models.RequestFuel,
		"vehicle_id": req.VehicleID,
	}
}

func (fuelStrategy) onApprove(context.Context, *Engine, *models.Request, domain.Actor) error {
	return nil
}

func (fuelStrategy) onClose(context.Context, *Engine, *models.Request) error { return nil }

func (fuelStrategy) compensate(context.Context, *Engine, *models.Request, string, domain.Actor) {}

type perDiemStrategy struct{}

func (perDiemStrategy) validate(req *models.Request) error {
	if req.Amount <= 0 {
		return domain.Validation("amount", "must be positive")
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		return domain.Validation("period_end", "must not precede period start")
	}
	return nil
}

func (perDiemStrategy) scope(req *models.Request) bson.M {
	return bson.M{
		"kind":         models.RequestPerDiem,
		"requester_id": req.RequesterID,
	}
}

func (perDiemStrategy) onApprove(context.Context, *Engine, *models.Request, domain.Actor) error {
	return nil
}

func (perDiemStrategy) onClose(context.Context, *Engine, *models.Request) error { return nil }

func (perDiemStrategy) compensate(context.Context, *Engine, *models.Request, string, domain.Actor) {}
