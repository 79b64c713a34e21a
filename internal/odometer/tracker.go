package odometer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// onlineWindow is how recent a location ping must be for a vehicle to count
// as online.
const onlineWindow = 5 * time.Minute

// Tracker is the single owner of a vehicle's odometer and status. Every
// component that needs to move current_km or flip the vehicle status calls
// through it.
type Tracker struct {
	vehicles db.VehicleCollection
}

// NewTracker creates a tracker over a vehicle collection.
func NewTracker(vehicles db.VehicleCollection) *Tracker {
	return &Tracker{vehicles: vehicles}
}

// RegisterVehicle registers a new vehicle. The odometer reading at
// registration is snapshotted as the initial km, which anchors service-due
// math until the first recorded service.
func (t *Tracker) RegisterVehicle(ctx context.Context, vehicle models.Vehicle, actor domain.Actor) (*models.Vehicle, error) {
	if vehicle.PlateNumber == "" {
		return nil, domain.Validation("plate_number", "is required")
	}
	if vehicle.CurrentKm < 0 {
		return nil, domain.Validation("current_km", "must not be negative")
	}
	if vehicle.ServiceIntervalKm < 0 {
		return nil, domain.Validation("service_interval_km", "must not be negative")
	}

	if existing, err := t.vehicles.FindVehicleByPlate(ctx, vehicle.PlateNumber); err == nil {
		return nil, domain.Conflict(existing.ID.Hex(), "plate number already exists")
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("lookup plate: %w", err)
	}

	vehicle.InitialKm = vehicle.CurrentKm
	vehicle.PreviousServiceKm = 0
	vehicle.ServiceHistory = []models.ServiceRecord{}
	if vehicle.Status == "" {
		vehicle.Status = models.VehicleActive
	}

	id, err := t.vehicles.InsertVehicle(ctx, vehicle)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.Conflict("", "plate number already exists")
		}
		return nil, fmt.Errorf("insert vehicle: %w", err)
	}

	created, err := t.vehicles.FindVehicleByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload vehicle: %w", err)
	}

	log.WithFields(log.Fields{
		"plate": created.PlateNumber,
		"km":    created.CurrentKm,
		"actor": actor.ID,
	}).Info("vehicle registered")

	return created, nil
}

// GetVehicle returns one vehicle.
func (t *Tracker) GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	vehicle, err := t.vehicles.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}
	return vehicle, nil
}

// PublishOdometer moves a vehicle's odometer to km. The odometer is
// monotonic: a reading behind the stored one is rejected unless force is set,
// which the log chain uses when the latest log is edited downwards.
func (t *Tracker) PublishOdometer(ctx context.Context, vehicleID string, km float64, force bool) error {
	if _, err := t.GetVehicle(ctx, vehicleID); err != nil {
		return err
	}

	ok, err := t.vehicles.SetCurrentKm(ctx, vehicleID, km, force)
	if err != nil {
		return fmt.Errorf("set odometer: %w", err)
	}
	if !ok {
		return domain.Validation("current_km", "odometer cannot move backwards")
	}
	return nil
}

// SetStatus flips a vehicle's status. Used by the request workflows and the
// work order engine for maintenance cascades.
func (t *Tracker) SetStatus(ctx context.Context, vehicleID, status string) error {
	err := t.vehicles.UpdateVehicleStatus(ctx, vehicleID, status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("set vehicle status: %w", err)
	}
	return nil
}

// RecordService appends a service history entry and advances the
// previous-service marker the service-due math anchors on.
func (t *Tracker) RecordService(ctx context.Context, vehicleID string, km float64, notes string, actor domain.Actor) error {
	if km <= 0 {
		return domain.Validation("service_km", "must be positive")
	}
	if _, err := t.GetVehicle(ctx, vehicleID); err != nil {
		return err
	}

	err := t.vehicles.AppendServiceRecord(ctx, vehicleID, models.ServiceRecord{
		ServiceKm:   km,
		Notes:       notes,
		PerformedBy: actor.ID,
		ServiceDate: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("append service record: %w", err)
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicleID,
		"service_km": km,
		"actor":      actor.ID,
	}).Info("vehicle service recorded")

	return nil
}

// RecordLocation stores a vehicle's latest position report.
func (t *Tracker) RecordLocation(ctx context.Context, ping models.LocationPing) error {
	if ping.VehicleID == "" {
		return domain.Validation("vehicle_id", "is required")
	}
	if !ping.Location.Valid() {
		return domain.Validation("location", "coordinates out of range")
	}
	at := ping.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	if err := t.vehicles.UpdateLastLocation(ctx, ping.VehicleID, ping.Location, at); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// ServiceInfo is the derived service-due state of a vehicle.
type ServiceInfo struct {
	ServicesDue        int     `json:"services_due"`
	NextServiceKm      float64 `json:"next_service_km"`
	KmUntilNextService float64 `json:"km_until_next_service"`
}

// ServiceInfoOf derives the service-due state from a vehicle's odometer.
// Returns nil when the vehicle has no service interval configured. The
// anchor is the last recorded service, falling back to the registration
// snapshot when the vehicle has never been serviced.
func ServiceInfoOf(vehicle *models.Vehicle) *ServiceInfo {
	if vehicle.ServiceIntervalKm <= 0 {
		return nil
	}

	prev := vehicle.PreviousServiceKm
	if prev <= 0 {
		prev = vehicle.InitialKm
	}
	delta := vehicle.CurrentKm - prev

	info := &ServiceInfo{}
	if delta > 0 {
		info.ServicesDue = int(math.Floor(delta / vehicle.ServiceIntervalKm))
	}

	intervals := math.Ceil(delta / vehicle.ServiceIntervalKm)
	if intervals < 1 {
		intervals = 1
	}
	info.NextServiceKm = prev + intervals*vehicle.ServiceIntervalKm
	info.KmUntilNextService = info.NextServiceKm - vehicle.CurrentKm

	return info
}

// IsOnline reports whether the vehicle's tracker has pinged recently.
func IsOnline(vehicle *models.Vehicle) bool {
	if vehicle.LastLocationUpdate == nil {
		return false
	}
	return time.Since(*vehicle.LastLocationUpdate) <= onlineWindow
}
