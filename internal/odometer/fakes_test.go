package odometer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeVehicles is an in-memory VehicleCollection mirroring the Mongo
// implementation's conditional odometer update.
type fakeVehicles struct {
	mu       sync.Mutex
	vehicles map[string]*models.Vehicle
}

func newFakeVehicles() *fakeVehicles {
	return &fakeVehicles{vehicles: make(map[string]*models.Vehicle)}
}

func (f *fakeVehicles) InsertVehicle(ctx context.Context, vehicle models.Vehicle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vehicles {
		if v.PlateNumber == vehicle.PlateNumber {
			return "", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
	vehicle.ID = primitive.NewObjectID()
	f.vehicles[vehicle.ID.Hex()] = &vehicle
	return vehicle.ID.Hex(), nil
}

func (f *fakeVehicles) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *v
	return &copied, nil
}

func (f *fakeVehicles) FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vehicles {
		if v.PlateNumber == plate {
			copied := *v
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeVehicles) FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Vehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		if status, ok := filter["status"].(string); ok && v.Status != status {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (f *fakeVehicles) UpdateVehicleStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	v.Status = status
	return nil
}

func (f *fakeVehicles) SetCurrentKm(ctx context.Context, id string, km float64, force bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return false, nil
	}
	if !force && v.CurrentKm > km {
		return false, nil
	}
	v.CurrentKm = km
	return true, nil
}

func (f *fakeVehicles) AppendServiceRecord(ctx context.Context, id string, record models.ServiceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	v.ServiceHistory = append(v.ServiceHistory, record)
	v.PreviousServiceKm = record.ServiceKm
	return nil
}

func (f *fakeVehicles) UpdateLastLocation(ctx context.Context, id string, loc models.Location, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	v.LastLocation = &loc
	v.LastLocationUpdate = &at
	return nil
}

// fakeLogs is an in-memory DriverLogCollection keeping logs per vehicle.
type fakeLogs struct {
	mu   sync.Mutex
	logs map[string]*models.DriverLog
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{logs: make(map[string]*models.DriverLog)}
}

func (f *fakeLogs) InsertLog(ctx context.Context, entry models.DriverLog) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	f.logs[entry.ID.Hex()] = &entry
	return entry.ID.Hex(), nil
}

func (f *fakeLogs) FindLogByID(ctx context.Context, id string) (*models.DriverLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *l
	return &copied, nil
}

func (f *fakeLogs) vehicleLogs(vehicleID string) []models.DriverLog {
	out := make([]models.DriverLog, 0)
	for _, l := range f.logs {
		if l.VehicleID == vehicleID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (f *fakeLogs) FindLatestLog(ctx context.Context, vehicleID string) (*models.DriverLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := f.vehicleLogs(vehicleID)
	if len(logs) == 0 {
		return nil, mongo.ErrNoDocuments
	}
	last := logs[len(logs)-1]
	return &last, nil
}

func (f *fakeLogs) FindPreviousLog(ctx context.Context, vehicleID string, before time.Time, excludeID string) (*models.DriverLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := f.vehicleLogs(vehicleID)
	var prev *models.DriverLog
	for i := range logs {
		l := logs[i]
		if l.ID.Hex() == excludeID || !l.Date.Before(before) {
			continue
		}
		if prev == nil || l.Date.After(prev.Date) {
			prev = &logs[i]
		}
	}
	if prev == nil {
		return nil, mongo.ErrNoDocuments
	}
	copied := *prev
	return &copied, nil
}

func (f *fakeLogs) FindLogsByVehicle(ctx context.Context, vehicleID string) ([]models.DriverLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vehicleLogs(vehicleID), nil
}

func (f *fakeLogs) UpdateLog(ctx context.Context, id string, entry models.DriverLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.logs[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	entry.ID = stored.ID
	*stored = entry
	return nil
}
