package workflow

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
	"github.com/ukydev/fleet-ops/internal/odometer"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Engine runs the shared pending → approved/rejected state machine for all
// request kinds. Kind-specific validation, uniqueness scope and transition
// side effects come from the kind's strategy.
type Engine struct {
	requests db.RequestCollection
	ledger   *ledger.Store
	tracker  *odometer.Tracker

	strategies map[models.RequestKind]strategy
}

// NewEngine creates a workflow engine over the requests collection, the
// stock ledger and the odometer tracker.
func NewEngine(requests db.RequestCollection, store *ledger.Store, tracker *odometer.Tracker) *Engine {
	return &Engine{
		requests: requests,
		ledger:   store,
		tracker:  tracker,
		strategies: map[models.RequestKind]strategy{
			models.RequestMaintenance: maintenanceStrategy{},
			models.RequestSparePart:   sparePartStrategy{},
			models.RequestFuel:        fuelStrategy{},
			models.RequestPerDiem:     perDiemStrategy{},
		},
	}
}

// Create validates and files a new request. The requester is the actor.
// Creation fails with Conflict, naming the competing request, when an open
// request already occupies the kind's uniqueness scope.
func (e *Engine) Create(ctx context.Context, req models.Request, actor domain.Actor) (*models.Request, error) {
	strat, ok := e.strategies[req.Kind]
	if !ok {
		return nil, domain.Validation("kind", "unknown request kind")
	}

	req.RequesterID = actor.ID
	if err := strat.validate(&req); err != nil {
		return nil, err
	}

	if req.VehicleID != "" {
		if _, err := e.tracker.GetVehicle(ctx, req.VehicleID); err != nil {
			return nil, err
		}
	}
	if req.Kind == models.RequestSparePart {
		if _, err := e.ledger.GetItem(ctx, req.ItemID); err != nil {
			return nil, err
		}
	}

	if scope := strat.scope(&req); scope != nil {
		existing, err := e.requests.FindOpenRequest(ctx, scope)
		if err == nil {
			return nil, domain.Conflict(existing.ID.Hex(),
				fmt.Sprintf("an open %s request already exists (status: %s)", req.Kind, existing.Status))
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("lookup open request: %w", err)
		}
	}

	id, err := e.requests.InsertRequest(ctx, req)
	if err != nil {
		// The partial unique index backstops the check above under races.
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.Conflict("", fmt.Sprintf("an open %s request already exists", req.Kind))
		}
		return nil, fmt.Errorf("insert request: %w", err)
	}

	created, err := e.requests.FindRequestByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id": id,
		"kind":       req.Kind,
		"requester":  actor.ID,
	}).Info("request created")

	return created, nil
}

// UpdatePending lets the requester edit a request's payload while it is
// still pending. Edits and approvals are distinct paths: approvers use
// Transition, never this.
func (e *Engine) UpdatePending(ctx context.Context, id string, updated models.Request, actor domain.Actor) (*models.Request, error) {
	req, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, domain.Forbidden("only the requester may edit a pending request")
	}
	if req.Status != models.RequestPending {
		return nil, domain.Conflict(id, "request is no longer pending")
	}

	strat := e.strategies[req.Kind]
	updated.Kind = req.Kind
	updated.RequesterID = req.RequesterID
	updated.CreatedAt = req.CreatedAt
	if updated.VehicleID == "" {
		updated.VehicleID = req.VehicleID
	}
	if err := strat.validate(&updated); err != nil {
		return nil, err
	}

	ok, err := e.requests.UpdateRequestPending(ctx, id, updated)
	if err != nil {
		// The partial unique index rejects edits that land in a scope an
		// open request already occupies.
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.Conflict(id, fmt.Sprintf("an open %s request already exists", req.Kind))
		}
		return nil, fmt.Errorf("update request: %w", err)
	}
	if !ok {
		return nil, domain.Conflict(id, "request is no longer pending")
	}

	return e.Get(ctx, id)
}

// Transition moves a request to a new status. Only pending requests may be
// approved or rejected; approved maintenance requests may additionally be
// completed. Kind side effects run before the status is persisted, so a
// failed side effect (insufficient stock) leaves the request pending.
func (e *Engine) Transition(ctx context.Context, id, newStatus, note string, actor domain.Actor) (*models.Request, error) {
	req, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	strat := e.strategies[req.Kind]

	switch newStatus {
	case models.RequestApproved, models.RequestRejected:
		if req.Status != models.RequestPending {
			return nil, domain.Conflict(id, fmt.Sprintf("request is already %s", req.Status))
		}
		if !actor.CanApprove() {
			return nil, domain.Forbidden("approver role required")
		}
		if actor.ID == req.RequesterID {
			return nil, domain.Forbidden("requests cannot be approved by their requester")
		}
	case models.RequestCompleted:
		if req.Kind != models.RequestMaintenance {
			return nil, domain.Validation("status", "only maintenance requests can be completed")
		}
		if req.Status != models.RequestApproved {
			return nil, domain.Conflict(id, fmt.Sprintf("request is %s, not approved", req.Status))
		}
		if !actor.CanApprove() {
			return nil, domain.Forbidden("approver role required")
		}
	default:
		return nil, domain.Validation("status", "unknown target status")
	}

	now := time.Now()
	var set bson.M
	switch newStatus {
	case models.RequestApproved:
		if err := strat.onApprove(ctx, e, req, actor); err != nil {
			return nil, err
		}
		set = bson.M{"approved_by": actor.ID, "approved_date": now}
	case models.RequestRejected:
		if err := strat.onClose(ctx, e, req); err != nil {
			return nil, err
		}
		set = bson.M{"rejected_by": actor.ID, "rejection_note": note}
	case models.RequestCompleted:
		if err := strat.onClose(ctx, e, req); err != nil {
			return nil, err
		}
		set = bson.M{"completed_date": now}
	}

	ok, err := e.requests.TransitionStatus(ctx, id, req.Status, newStatus, set)
	if err != nil {
		return nil, fmt.Errorf("transition request: %w", err)
	}
	if !ok {
		// Lost a transition race after the side effects ran; undo them.
		strat.compensate(ctx, e, req, newStatus, actor)
		return nil, domain.Conflict(id, "request was transitioned concurrently")
	}

	log.WithFields(log.Fields{
		"request_id": id,
		"kind":       req.Kind,
		"status":     newStatus,
		"actor":      actor.ID,
	}).Info("request transitioned")

	return e.Get(ctx, id)
}

// CompleteWithCost closes an approved maintenance request from a completed
// work order, recording the order's total cost. The work order engine is the
// only caller.
func (e *Engine) CompleteWithCost(ctx context.Context, id string, cost float64, actor domain.Actor) error {
	req, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Kind != models.RequestMaintenance {
		return domain.Validation("kind", "not a maintenance request")
	}
	if req.Status != models.RequestApproved {
		return domain.Conflict(id, fmt.Sprintf("request is %s, not approved", req.Status))
	}

	ok, err := e.requests.TransitionStatus(ctx, id, models.RequestApproved, models.RequestCompleted, bson.M{
		"completed_date": time.Now(),
		"cost":           cost,
	})
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if !ok {
		return domain.Conflict(id, "request was transitioned concurrently")
	}
	return nil
}

// Get returns one request.
func (e *Engine) Get(ctx context.Context, id string) (*models.Request, error) {
	req, err := e.requests.FindRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	return req, nil
}

// List returns requests filtered by kind and/or status.
func (e *Engine) List(ctx context.Context, kind models.RequestKind, status string) ([]models.Request, error) {
	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}
	if status != "" {
		filter["status"] = status
	}
	requests, err := e.requests.FindRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}
