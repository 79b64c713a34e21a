package workorder

import (
	"context"
	"sync"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeOrders is an in-memory WorkOrderCollection with the Mongo
// implementation's guarded save and per-request uniqueness.
type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*models.WorkOrder

	// failNextSave makes the next SaveWorkOrder lose its guarded write, the
	// way a concurrent writer would defeat the CAS.
	failNextSave bool
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]*models.WorkOrder)}
}

func (f *fakeOrders) InsertWorkOrder(ctx context.Context, wo models.WorkOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orders {
		if existing.MaintenanceRequestID == wo.MaintenanceRequestID {
			return "", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
	wo.ID = primitive.NewObjectID()
	wo.CreatedAt = time.Now()
	f.orders[wo.ID.Hex()] = &wo
	return wo.ID.Hex(), nil
}

func (f *fakeOrders) FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wo, ok := f.orders[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *wo
	return &copied, nil
}

func (f *fakeOrders) FindWorkOrderByRequestID(ctx context.Context, requestID string) (*models.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wo := range f.orders {
		if wo.MaintenanceRequestID == requestID {
			copied := *wo
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeOrders) FindWorkOrders(ctx context.Context, filter bson.M) ([]models.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WorkOrder, 0, len(f.orders))
	for _, wo := range f.orders {
		if status, ok := filter["status"].(string); ok && wo.Status != status {
			continue
		}
		out = append(out, *wo)
	}
	return out, nil
}

func (f *fakeOrders) SaveWorkOrder(ctx context.Context, id, fromStatus string, wo models.WorkOrder) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextSave {
		f.failNextSave = false
		return false, nil
	}
	stored, ok := f.orders[id]
	if !ok || stored.Status != fromStatus {
		return false, nil
	}
	wo.ID = stored.ID
	wo.UpdatedAt = time.Now()
	*stored = wo
	return true, nil
}

// fakeCounters is an in-memory CounterCollection.
type fakeCounters struct {
	mu   sync.Mutex
	seqs map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{seqs: make(map[string]int)}
}

func (f *fakeCounters) NextSequence(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqs[name]++
	return f.seqs[name], nil
}

// captureSink records notifications for assertions.
type captureSink struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *captureSink) Notify(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
}

func (s *captureSink) forRecipient(recipient string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.sent {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// fakeRequests is an in-memory RequestCollection, enough of it for the
// conversion and completion cascades.
type fakeRequests struct {
	mu       sync.Mutex
	requests map[string]*models.Request
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: make(map[string]*models.Request)}
}

func (f *fakeRequests) InsertRequest(ctx context.Context, req models.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req.ID = primitive.NewObjectID()
	req.Status = models.RequestPending
	req.CreatedAt = time.Now()
	f.requests[req.ID.Hex()] = &req
	return req.ID.Hex(), nil
}

func (f *fakeRequests) FindRequestByID(ctx context.Context, id string) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRequests) FindOpenRequest(ctx context.Context, scope bson.M) (*models.Request, error) {
	return nil, mongo.ErrNoDocuments
}

func (f *fakeRequests) FindRequests(ctx context.Context, filter bson.M) ([]models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Request, 0, len(f.requests))
	for _, req := range f.requests {
		out = append(out, *req)
	}
	return out, nil
}

func (f *fakeRequests) TransitionStatus(ctx context.Context, id, from, to string, set bson.M) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	if cost, ok := set["cost"].(float64); ok {
		req.Cost = cost
	}
	if d, ok := set["completed_date"].(time.Time); ok {
		req.CompletedDate = &d
	}
	if by, ok := set["approved_by"].(string); ok {
		req.ApprovedBy = by
	}
	return true, nil
}

func (f *fakeRequests) UpdateRequestPending(ctx context.Context, id string, updated models.Request) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != models.RequestPending {
		return false, nil
	}
	updated.ID = req.ID
	*req = updated
	return true, nil
}

// fakeInventory is an in-memory InventoryCollection backing the ledger store.
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

// fakeVehicles is an in-memory VehicleCollection backing the tracker.
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
