package odometer

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// LogChain enforces the per-vehicle odometer chain across driver logs:
// ordered by date, each log starts exactly where the previous one ended.
type LogChain struct {
	logs    db.DriverLogCollection
	tracker *Tracker
}

// NewLogChain creates a log chain over a driver log collection and the
// odometer tracker that owns vehicle state.
func NewLogChain(logs db.DriverLogCollection, tracker *Tracker) *LogChain {
	return &LogChain{logs: logs, tracker: tracker}
}

// CreateLog appends a trip log to a vehicle's chain. The start km is never
// supplied by the caller: it is the previous log's end km, or the vehicle's
// current odometer when the chain is empty. On success the vehicle's
// odometer is published to the new end km.
func (c *LogChain) CreateLog(ctx context.Context, vehicleID string, endKm float64, date *time.Time, remarks string, actor domain.Actor) (*models.DriverLog, error) {
	vehicle, err := c.tracker.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	startKm := vehicle.CurrentKm
	prev, err := c.logs.FindLatestLog(ctx, vehicleID)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("load latest log: %w", err)
	}
	if prev != nil {
		startKm = prev.EndKm
		if date != nil && date.Before(prev.Date) {
			return nil, domain.Validation("date", "precedes the previous log")
		}
	}

	if endKm <= startKm {
		return nil, domain.Validation("end_km", fmt.Sprintf("must exceed start km (%.1f)", startKm))
	}
	if endKm-startKm > models.MaxDailyDistanceKm {
		return nil, domain.Validation("end_km", fmt.Sprintf("distance exceeds daily cap of %d km", models.MaxDailyDistanceKm))
	}

	logDate := time.Now()
	if date != nil {
		logDate = *date
	}

	entry := models.DriverLog{
		VehicleID:  vehicleID,
		DriverID:   actor.ID,
		Date:       logDate,
		StartKm:    startKm,
		EndKm:      endKm,
		Distance:   endKm - startKm,
		Remarks:    remarks,
		IsEditable: true,
	}

	id, err := c.logs.InsertLog(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("insert log: %w", err)
	}

	if err := c.tracker.PublishOdometer(ctx, vehicleID, endKm, false); err != nil {
		return nil, fmt.Errorf("publish odometer: %w", err)
	}

	created, err := c.logs.FindLogByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload log: %w", err)
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicleID,
		"start_km":   startKm,
		"end_km":     endKm,
		"driver":     actor.ID,
	}).Info("driver log created")

	return created, nil
}

// UpdateLog edits a log that is still editable. The submitted start km is
// re-validated against the chronologically previous log rather than trusted,
// and an edit may not break the link to the following log. Editing the
// latest log republishes the vehicle's odometer to the new end km.
func (c *LogChain) UpdateLog(ctx context.Context, id string, startKm, endKm float64, remarks string, actor domain.Actor) (*models.DriverLog, error) {
	entry, err := c.logs.FindLogByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load log: %w", err)
	}

	if !entry.IsEditable {
		return nil, domain.Forbidden("log is no longer editable")
	}
	if actor.ID != entry.DriverID && !actor.CanApprove() {
		return nil, domain.Forbidden("only the log's driver or a manager may edit it")
	}

	prev, err := c.logs.FindPreviousLog(ctx, entry.VehicleID, entry.Date, id)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("load previous log: %w", err)
	}
	if prev != nil {
		if startKm != prev.EndKm {
			return nil, domain.Validation("start_km", fmt.Sprintf("must equal the previous log's end km (%.1f)", prev.EndKm))
		}
	} else if startKm != entry.StartKm {
		// First log of the chain keeps its original anchor.
		return nil, domain.Validation("start_km", fmt.Sprintf("must keep the chain anchor (%.1f)", entry.StartKm))
	}

	if endKm <= startKm {
		return nil, domain.Validation("end_km", "must exceed start km")
	}
	if endKm-startKm > models.MaxDailyDistanceKm {
		return nil, domain.Validation("end_km", fmt.Sprintf("distance exceeds daily cap of %d km", models.MaxDailyDistanceKm))
	}

	latest, err := c.logs.FindLatestLog(ctx, entry.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("load latest log: %w", err)
	}
	isLatest := latest.ID == entry.ID
	if !isLatest {
		// A mid-chain edit may not detach the following log.
		next, err := c.findNextLog(ctx, entry)
		if err != nil {
			return nil, err
		}
		if next != nil && endKm != next.StartKm {
			return nil, domain.Validation("end_km", fmt.Sprintf("must equal the next log's start km (%.1f)", next.StartKm))
		}
	}

	entry.StartKm = startKm
	entry.EndKm = endKm
	entry.Distance = endKm - startKm
	if remarks != "" {
		entry.Remarks = remarks
	}

	if err := c.logs.UpdateLog(ctx, id, *entry); err != nil {
		return nil, fmt.Errorf("update log: %w", err)
	}

	if isLatest {
		if err := c.tracker.PublishOdometer(ctx, entry.VehicleID, endKm, true); err != nil {
			return nil, fmt.Errorf("publish odometer: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"log_id":     id,
		"vehicle_id": entry.VehicleID,
		"end_km":     endKm,
		"actor":      actor.ID,
	}).Info("driver log updated")

	return entry, nil
}

// LockLog flips a log to non-editable after review.
func (c *LogChain) LockLog(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.CanApprove() {
		return domain.Forbidden("only a manager may lock logs")
	}

	entry, err := c.logs.FindLogByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load log: %w", err)
	}

	entry.IsEditable = false
	if err := c.logs.UpdateLog(ctx, id, *entry); err != nil {
		return fmt.Errorf("update log: %w", err)
	}
	return nil
}

// ListLogs returns a vehicle's logs in chain order.
func (c *LogChain) ListLogs(ctx context.Context, vehicleID string) ([]models.DriverLog, error) {
	logs, err := c.logs.FindLogsByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}

// VerifyChain checks the chain invariant for one vehicle: every log starts
// where its predecessor ended.
func (c *LogChain) VerifyChain(ctx context.Context, vehicleID string) error {
	logs, err := c.ListLogs(ctx, vehicleID)
	if err != nil {
		return err
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].StartKm != logs[i-1].EndKm {
			return fmt.Errorf("odometer chain broken at log %s: starts at %.1f, previous ended at %.1f",
				logs[i].ID.Hex(), logs[i].StartKm, logs[i-1].EndKm)
		}
	}
	return nil
}

// findNextLog locates the log immediately after entry in chain order.
func (c *LogChain) findNextLog(ctx context.Context, entry *models.DriverLog) (*models.DriverLog, error) {
	logs, err := c.logs.FindLogsByVehicle(ctx, entry.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	for i, l := range logs {
		if l.ID == entry.ID && i+1 < len(logs) {
			next := logs[i+1]
			return &next, nil
		}
	}
	return nil, nil
}
