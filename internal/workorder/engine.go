package workorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/ledger"
	"github.com/ukydev/fleet-ops/internal/models"
	"github.com/ukydev/fleet-ops/internal/notify"
	"github.com/ukydev/fleet-ops/internal/odometer"
	"github.com/ukydev/fleet-ops/internal/workflow"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Engine drives the work order lifecycle: open → in_progress → (on_hold ⇄
// in_progress) → completed/cancelled. It consumes the stock ledger for
// parts, aggregates cost lines, and cascades completion into the vehicle and
// the originating maintenance request.
type Engine struct {
	orders   db.WorkOrderCollection
	counters db.CounterCollection
	ledger   *ledger.Store
	tracker  *odometer.Tracker
	requests *workflow.Engine
	sink     notify.Sink
}

// NewEngine wires a work order engine.
func NewEngine(orders db.WorkOrderCollection, counters db.CounterCollection, store *ledger.Store, tracker *odometer.Tracker, requests *workflow.Engine, sink notify.Sink) *Engine {
	return &Engine{
		orders:   orders,
		counters: counters,
		ledger:   store,
		tracker:  tracker,
		requests: requests,
		sink:     sink,
	}
}

// Convert opens a work order for an approved maintenance request. At most
// one work order may exist per request; a second conversion fails with
// Conflict carrying the existing order's number. Numbers are
// "WO-{year}-{seq}" with the sequence drawn from an atomically incremented
// per-year counter.
func (e *Engine) Convert(ctx context.Context, maintenanceRequestID string, actor domain.Actor) (*models.WorkOrder, error) {
	if !actor.CanApprove() {
		return nil, domain.Forbidden("approver role required")
	}
	req, err := e.requests.Get(ctx, maintenanceRequestID)
	if err != nil {
		return nil, err
	}
	if req.Kind != models.RequestMaintenance {
		return nil, domain.Validation("request_id", "not a maintenance request")
	}
	if req.Status != models.RequestApproved {
		return nil, domain.Conflict(maintenanceRequestID, fmt.Sprintf("request is %s, not approved", req.Status))
	}

	if existing, err := e.orders.FindWorkOrderByRequestID(ctx, maintenanceRequestID); err == nil {
		return nil, domain.Conflict(existing.WorkOrderNumber, "work order already exists for this request")
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("lookup work order: %w", err)
	}

	year := time.Now().Year()
	seq, err := e.counters.NextSequence(ctx, fmt.Sprintf("work_orders_%d", year))
	if err != nil {
		return nil, fmt.Errorf("next work order sequence: %w", err)
	}

	wo := models.WorkOrder{
		WorkOrderNumber:      fmt.Sprintf("WO-%d-%04d", year, seq),
		MaintenanceRequestID: maintenanceRequestID,
		VehicleID:            req.VehicleID,
		Status:               models.WorkOrderOpen,
		AssignedMechanics:    []string{},
		SpareParts:           []models.SparePartLine{},
		LaborCosts:           []models.LaborLine{},
		ProgressNotes:        []models.ProgressNote{},
		CreatedBy:            actor.ID,
	}
	appendHistory(&wo, "created", "converted from maintenance request "+maintenanceRequestID, actor)

	id, err := e.orders.InsertWorkOrder(ctx, wo)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the conversion race; report the winner's number.
			if existing, lookupErr := e.orders.FindWorkOrderByRequestID(ctx, maintenanceRequestID); lookupErr == nil {
				return nil, domain.Conflict(existing.WorkOrderNumber, "work order already exists for this request")
			}
			return nil, domain.Conflict("", "work order already exists for this request")
		}
		return nil, fmt.Errorf("insert work order: %w", err)
	}

	created, err := e.orders.FindWorkOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload work order: %w", err)
	}

	e.sink.Notify(models.Notification{
		Recipient: req.RequesterID,
		Kind:      models.NotifyWorkOrderCreated,
		Title:     "Work order opened",
		Message:   fmt.Sprintf("Work order %s was opened for your maintenance request", created.WorkOrderNumber),
		ActionURL: "/work-orders/" + id,
		Meta:      map[string]string{"work_order_number": created.WorkOrderNumber},
	})

	log.WithFields(log.Fields{
		"work_order": created.WorkOrderNumber,
		"request_id": maintenanceRequestID,
		"actor":      actor.ID,
	}).Info("work order created")

	return created, nil
}

// AssignMechanics adds mechanics to a work order, ignoring ones already
// assigned. The first assignment ever starts the order.
func (e *Engine) AssignMechanics(ctx context.Context, id string, mechanicIDs []string, actor domain.Actor) (*models.WorkOrder, error) {
	if !actor.CanApprove() {
		return nil, domain.Forbidden("approver role required")
	}
	if len(mechanicIDs) == 0 {
		return nil, domain.Validation("mechanic_ids", "must not be empty")
	}

	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	assigned := make(map[string]bool, len(wo.AssignedMechanics))
	for _, m := range wo.AssignedMechanics {
		assigned[m] = true
	}
	var added []string
	for _, m := range mechanicIDs {
		if m == "" || assigned[m] {
			continue
		}
		assigned[m] = true
		wo.AssignedMechanics = append(wo.AssignedMechanics, m)
		added = append(added, m)
	}
	if len(added) == 0 {
		return wo, nil
	}

	if wo.Status == models.WorkOrderOpen {
		wo.Status = models.WorkOrderInProgress
		now := time.Now()
		wo.StartedDate = &now
		appendHistory(wo, "status_changed", "started by first mechanic assignment", actor)
	}
	appendHistory(wo, "mechanics_assigned", fmt.Sprintf("assigned %d mechanic(s)", len(added)), actor)

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		return nil, err
	}

	for _, m := range added {
		e.sink.Notify(models.Notification{
			Recipient: m,
			Kind:      models.NotifyMechanicAssigned,
			Title:     "Assigned to work order",
			Message:   fmt.Sprintf("You were assigned to work order %s", wo.WorkOrderNumber),
			ActionURL: "/work-orders/" + id,
			Meta:      map[string]string{"work_order_number": wo.WorkOrderNumber},
		})
	}

	return wo, nil
}

// AddSpareParts consumes parts from the ledger and appends one cost line per
// item, with the unit cost snapshotted at consumption time. All-or-nothing:
// when any line lacks stock, nothing is consumed and no line is added.
func (e *Engine) AddSpareParts(ctx context.Context, id string, lines []ledger.ConsumeLine, actor domain.Actor) (*models.WorkOrder, error) {
	if !canWork(actor) {
		return nil, domain.Forbidden("mechanic or approver role required")
	}
	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	consumed, err := e.ledger.ConsumeBatch(ctx, lines, "work order "+wo.WorkOrderNumber, wo.VehicleID, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, part := range consumed {
		wo.SpareParts = append(wo.SpareParts, models.SparePartLine{
			ItemID:    part.ItemID,
			ItemName:  part.ItemName,
			Quantity:  part.Quantity,
			UnitCost:  part.UnitPrice,
			TotalCost: part.UnitPrice * float64(part.Quantity),
			AddedBy:   actor.ID,
			AddedAt:   now,
		})
	}
	wo.RecomputeTotals()
	appendHistory(wo, "parts_added", fmt.Sprintf("consumed %d part line(s)", len(consumed)), actor)

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		// The order moved concurrently; hand the consumed stock back.
		for _, part := range consumed {
			if _, retErr := e.ledger.AdjustStock(ctx, part.ItemID, models.StockReturn, part.Quantity, 0,
				"work order "+wo.WorkOrderNumber+" (save lost race)", wo.VehicleID, actor); retErr != nil {
				log.WithError(retErr).WithField("item_id", part.ItemID).Error("failed to return stock after lost save race")
			}
		}
		return nil, err
	}

	return wo, nil
}

// AddLaborCost appends a labor cost line and recomputes the aggregates.
func (e *Engine) AddLaborCost(ctx context.Context, id, mechanicID string, hours, hourlyRate float64, description string, actor domain.Actor) (*models.WorkOrder, error) {
	if !canWork(actor) {
		return nil, domain.Forbidden("mechanic or approver role required")
	}
	if mechanicID == "" {
		return nil, domain.Validation("mechanic_id", "is required")
	}
	if hours < 0 {
		return nil, domain.Validation("hours", "must not be negative")
	}
	if hourlyRate < 0 {
		return nil, domain.Validation("hourly_rate", "must not be negative")
	}

	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	wo.LaborCosts = append(wo.LaborCosts, models.LaborLine{
		MechanicID:  mechanicID,
		Description: description,
		Hours:       hours,
		HourlyRate:  hourlyRate,
		TotalCost:   hours * hourlyRate,
		AddedBy:     actor.ID,
		AddedAt:     time.Now(),
	})
	wo.RecomputeTotals()
	appendHistory(wo, "labor_added", fmt.Sprintf("%.1fh at %.2f/h for %s", hours, hourlyRate, mechanicID), actor)

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// UpdateProgress appends a progress note and optionally moves the order
// between the working states. This path can never complete or cancel.
func (e *Engine) UpdateProgress(ctx context.Context, id, note, status string, actor domain.Actor) (*models.WorkOrder, error) {
	if !canWork(actor) {
		return nil, domain.Forbidden("mechanic or approver role required")
	}
	if note == "" {
		return nil, domain.Validation("note", "is required")
	}
	if status != "" && status != models.WorkOrderOpen && status != models.WorkOrderInProgress && status != models.WorkOrderOnHold {
		return nil, domain.Validation("status", "progress updates may only move between open, in_progress and on_hold")
	}

	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	wo.ProgressNotes = append(wo.ProgressNotes, models.ProgressNote{
		Note:      note,
		AddedBy:   actor.ID,
		Timestamp: time.Now(),
	})
	appendHistory(wo, "progress_updated", note, actor)

	if status != "" && status != wo.Status {
		wo.Status = status
		if status == models.WorkOrderInProgress && wo.StartedDate == nil {
			now := time.Now()
			wo.StartedDate = &now
		}
		appendHistory(wo, "status_changed", fromStatus+" -> "+status, actor)
	}

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// Complete closes the work order from any non-terminal state and cascades:
// the vehicle returns to active when it was under maintenance, the
// originating maintenance request completes with the order's total cost, and
// each assigned mechanic is notified best-effort.
func (e *Engine) Complete(ctx context.Context, id, finalNotes string, actor domain.Actor) (*models.WorkOrder, error) {
	if !canWork(actor) {
		return nil, domain.Forbidden("mechanic or approver role required")
	}
	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	now := time.Now()
	wo.Status = models.WorkOrderCompleted
	wo.CompletedDate = &now
	wo.FinalNotes = finalNotes
	wo.RecomputeTotals()
	appendHistory(wo, "completed", fmt.Sprintf("total cost %.2f", wo.TotalCost), actor)

	// Cascade before the terminal save. Both writes are idempotent toward a
	// retry, so a save that loses a race cannot strand the maintenance
	// request in approved: the caller retries Complete and only the order
	// save remains to be done.
	if err := e.releaseVehicle(ctx, wo.VehicleID); err != nil {
		return nil, fmt.Errorf("release vehicle: %w", err)
	}
	if err := e.requests.CompleteWithCost(ctx, wo.MaintenanceRequestID, wo.TotalCost, actor); err != nil {
		if !domain.IsConflict(err) {
			return nil, fmt.Errorf("complete maintenance request: %w", err)
		}
		// Already closed, by a prior attempt or elsewhere; completion stands.
		log.WithError(err).WithField("request_id", wo.MaintenanceRequestID).Warn("maintenance request already closed")
	}

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		return nil, err
	}

	for _, m := range wo.AssignedMechanics {
		e.sink.Notify(models.Notification{
			Recipient: m,
			Kind:      models.NotifyWorkOrderCompleted,
			Title:     "Work order completed",
			Message:   fmt.Sprintf("Work order %s was completed", wo.WorkOrderNumber),
			ActionURL: "/work-orders/" + id,
			Meta:      map[string]string{"work_order_number": wo.WorkOrderNumber},
		})
	}

	log.WithFields(log.Fields{
		"work_order": wo.WorkOrderNumber,
		"total_cost": wo.TotalCost,
		"actor":      actor.ID,
	}).Info("work order completed")

	return wo, nil
}

// Cancel abandons the work order from any non-terminal state and releases
// the vehicle. The maintenance request stays approved; closing it out is a
// separate decision for the approver.
func (e *Engine) Cancel(ctx context.Context, id, reason string, actor domain.Actor) (*models.WorkOrder, error) {
	if !actor.CanApprove() {
		return nil, domain.Forbidden("approver role required")
	}
	wo, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	fromStatus := wo.Status

	wo.Status = models.WorkOrderCancelled
	appendHistory(wo, "cancelled", reason, actor)

	if err := e.save(ctx, id, fromStatus, wo); err != nil {
		return nil, err
	}

	if err := e.releaseVehicle(ctx, wo.VehicleID); err != nil {
		return nil, fmt.Errorf("release vehicle: %w", err)
	}
	return wo, nil
}

// Get returns one work order.
func (e *Engine) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	wo, err := e.orders.FindWorkOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load work order: %w", err)
	}
	return wo, nil
}

// List returns work orders, optionally filtered by status.
func (e *Engine) List(ctx context.Context, status string) ([]models.WorkOrder, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	orders, err := e.orders.FindWorkOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	return orders, nil
}

// loadOpen loads a work order and rejects terminal ones.
func (e *Engine) loadOpen(ctx context.Context, id string) (*models.WorkOrder, error) {
	wo, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if wo.IsTerminal() {
		return nil, domain.Conflict(id, "work order is "+wo.Status)
	}
	return wo, nil
}

// save persists a mutation guarded by the status the order was loaded with.
func (e *Engine) save(ctx context.Context, id, fromStatus string, wo *models.WorkOrder) error {
	ok, err := e.orders.SaveWorkOrder(ctx, id, fromStatus, *wo)
	if err != nil {
		return fmt.Errorf("save work order: %w", err)
	}
	if !ok {
		return domain.Conflict(id, "work order was modified concurrently")
	}
	return nil
}

// releaseVehicle returns a vehicle to active when it sits in maintenance.
func (e *Engine) releaseVehicle(ctx context.Context, vehicleID string) error {
	vehicle, err := e.tracker.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if vehicle.Status != models.VehicleUnderMaintenance {
		return nil
	}
	return e.tracker.SetStatus(ctx, vehicleID, models.VehicleActive)
}

// canWork reports whether the actor may mutate an order's contents.
// Converting, assigning, and cancelling stay with approvers.
func canWork(actor domain.Actor) bool {
	return actor.IsMechanic() || actor.CanApprove()
}

// appendHistory records one mutating action in the order's audit trail.
func appendHistory(wo *models.WorkOrder, action, details string, actor domain.Actor) {
	wo.History = append(wo.History, models.HistoryEntry{
		Action:      action,
		Details:     details,
		PerformedBy: actor.ID,
		Timestamp:   time.Now(),
	})
}
