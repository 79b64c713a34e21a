package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeInventory is an in-memory InventoryCollection backing the ledger store
// in workflow tests.
type fakeInventory struct {
	mu    sync.Mutex
	items map[string]*models.InventoryItem
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: make(map[string]*models.InventoryItem)}
}

func (f *fakeInventory) InsertItem(ctx context.Context, item models.InventoryItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = primitive.NewObjectID()
	f.items[item.ID.Hex()] = &item
	return item.ID.Hex(), nil
}

func (f *fakeInventory) FindItemByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *item
	copied.StockHistory = append([]models.StockEntry(nil), item.StockHistory...)
	return &copied, nil
}

func (f *fakeInventory) FindItemByCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ItemCode == code {
			copied := *item
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeInventory) FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ItemName == name {
			copied := *item
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeInventory) FindItems(ctx context.Context, filter bson.M) ([]models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.InventoryItem, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeInventory) UpdateStockCAS(ctx context.Context, id string, entry models.StockEntry, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.CurrentStock != entry.PreviousStock {
		return false, nil
	}
	item.CurrentStock = entry.NewStock
	item.Status = status
	item.StockHistory = append(item.StockHistory, entry)
	return true, nil
}

// fakeVehicles is an in-memory VehicleCollection backing the tracker in
// workflow tests.
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
