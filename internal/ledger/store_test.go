package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeInventory is an in-memory InventoryCollection with the same conditional
// update semantics as the Mongo implementation.
type fakeInventory struct {
	mu    sync.Mutex
	items map[string]*models.InventoryItem

	// forcedMisses makes the next n CAS attempts miss without changing
	// anything, to exercise the retry loop.
	forcedMisses int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: make(map[string]*models.InventoryItem)}
}

func (f *fakeInventory) InsertItem(ctx context.Context, item models.InventoryItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.ItemCode == item.ItemCode || existing.ItemName == item.ItemName {
			return "", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
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
		if category, ok := filter["category"].(string); ok && item.Category != category {
			continue
		}
		if _, ok := filter["$expr"]; ok && item.CurrentStock > item.MinimumStock {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeInventory) UpdateStockCAS(ctx context.Context, id string, entry models.StockEntry, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forcedMisses > 0 {
		f.forcedMisses--
		return false, nil
	}
	item, ok := f.items[id]
	if !ok || item.CurrentStock != entry.PreviousStock {
		return false, nil
	}
	item.CurrentStock = entry.NewStock
	item.Status = status
	item.StockHistory = append(item.StockHistory, entry)
	return true, nil
}

var testActor = domain.Actor{ID: "actor-1", Role: models.RoleManager}

func registerTestItem(t *testing.T, store *Store, code string, stock int) *models.InventoryItem {
	t.Helper()
	item, err := store.RegisterItem(context.Background(), models.InventoryItem{
		ItemCode:     code,
		ItemName:     "name-" + code,
		Category:     "brakes",
		Unit:         "piece",
		CurrentStock: stock,
		MinimumStock: 2,
		UnitPrice:    12.5,
	}, testActor)
	require.NoError(t, err)
	return item
}

func TestRegisterItem(t *testing.T) {
	store := NewStore(newFakeInventory())

	item := registerTestItem(t, store, "BRK-001", 5)

	assert.Equal(t, 5, item.CurrentStock)
	assert.Equal(t, "active", item.Status)
	require.Len(t, item.StockHistory, 1)
	assert.Equal(t, models.StockAddition, item.StockHistory[0].Kind)
	assert.Equal(t, 0, item.StockHistory[0].PreviousStock)
	assert.Equal(t, 5, item.StockHistory[0].NewStock)
	assert.Equal(t, "initial stock", item.StockHistory[0].Reason)
}

func TestRegisterItemZeroStock(t *testing.T) {
	store := NewStore(newFakeInventory())

	item := registerTestItem(t, store, "BRK-002", 0)

	assert.Equal(t, "out_of_stock", item.Status)
	assert.Empty(t, item.StockHistory)
}

func TestRegisterItemValidation(t *testing.T) {
	store := NewStore(newFakeInventory())

	tests := []struct {
		name string
		item models.InventoryItem
	}{
		{"missing code", models.InventoryItem{ItemName: "n", Category: "c", Unit: "piece"}},
		{"missing name", models.InventoryItem{ItemCode: "c", Category: "c", Unit: "piece"}},
		{"negative stock", models.InventoryItem{ItemCode: "c", ItemName: "n", Category: "c", Unit: "piece", CurrentStock: -1}},
		{"max below min", models.InventoryItem{ItemCode: "c", ItemName: "n", Category: "c", Unit: "piece", MinimumStock: 5, MaximumStock: 3}},
		{"negative price", models.InventoryItem{ItemCode: "c", ItemName: "n", Category: "c", Unit: "piece", UnitPrice: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.RegisterItem(context.Background(), tt.item, testActor)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestRegisterItemDuplicateCode(t *testing.T) {
	store := NewStore(newFakeInventory())
	existing := registerTestItem(t, store, "BRK-003", 5)

	_, err := store.RegisterItem(context.Background(), models.InventoryItem{
		ItemCode:     "BRK-003",
		ItemName:     "other name",
		Category:     "brakes",
		Unit:         "piece",
		CurrentStock: 1,
	}, testActor)

	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, existing.ID.Hex(), cerr.EntityID)
}

func TestAdjustStockUsage(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-004", 10)

	updated, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 4, 0, "installed on truck", "veh-1", testActor)
	require.NoError(t, err)

	assert.Equal(t, 6, updated.CurrentStock)
	require.Len(t, updated.StockHistory, 2)
	last := updated.StockHistory[1]
	assert.Equal(t, -4, last.Delta)
	assert.Equal(t, 10, last.PreviousStock)
	assert.Equal(t, 6, last.NewStock)
	assert.Equal(t, "veh-1", last.VehicleID)
	assert.Equal(t, testActor.ID, last.PerformedBy)
}

func TestAdjustStockInsufficient(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-005", 3)

	_, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 5, 0, "too much", "", testActor)

	var ierr *domain.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 3, ierr.Available)
	assert.Equal(t, 5, ierr.Requested)
	assert.Equal(t, "Insufficient stock. Available: 3, Requested: 5", err.Error())

	// Nothing was written.
	reloaded, err := store.GetItem(context.Background(), item.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.CurrentStock)
	assert.Len(t, reloaded.StockHistory, 1)
}

func TestAdjustStockAdjustmentDelta(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-006", 10)

	updated, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockAdjustment, 0, -3, "stocktake correction", "", testActor)
	require.NoError(t, err)

	assert.Equal(t, 7, updated.CurrentStock)
	last := updated.StockHistory[len(updated.StockHistory)-1]
	assert.Equal(t, -3, last.Delta)
	assert.Equal(t, 3, last.Quantity)

	_, err = store.AdjustStock(context.Background(), item.ID.Hex(), models.StockAdjustment, 0, 0, "no-op", "", testActor)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAdjustStockToZeroDerivesStatus(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-007", 2)

	updated, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 2, 0, "last ones", "", testActor)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CurrentStock)
	assert.Equal(t, "out_of_stock", updated.Status)

	updated, err = store.AdjustStock(context.Background(), item.ID.Hex(), models.StockAddition, 5, 0, "restock", "", testActor)
	require.NoError(t, err)
	assert.Equal(t, "active", updated.Status)
}

func TestAdjustStockNotFound(t *testing.T) {
	store := NewStore(newFakeInventory())

	_, err := store.AdjustStock(context.Background(), primitive.NewObjectID().Hex(), models.StockAddition, 1, 0, "x", "", testActor)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustStockRetriesAfterCASMiss(t *testing.T) {
	fake := newFakeInventory()
	store := NewStore(fake)
	item := registerTestItem(t, store, "BRK-008", 10)

	fake.forcedMisses = 2
	updated, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 1, 0, "retry me", "", testActor)
	require.NoError(t, err)
	assert.Equal(t, 9, updated.CurrentStock)
}

func TestAdjustStockContentionExhausted(t *testing.T) {
	fake := newFakeInventory()
	store := NewStore(fake)
	item := registerTestItem(t, store, "BRK-009", 10)

	fake.forcedMisses = casRetries + 1
	_, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 1, 0, "never lands", "", testActor)
	assert.ErrorIs(t, err, ErrContention)
}

func TestConsumeBatch(t *testing.T) {
	store := NewStore(newFakeInventory())
	a := registerTestItem(t, store, "BRK-010", 10)
	b := registerTestItem(t, store, "BRK-011", 4)

	consumed, err := store.ConsumeBatch(context.Background(), []ConsumeLine{
		{ItemID: a.ID.Hex(), Quantity: 3},
		{ItemID: b.ID.Hex(), Quantity: 2},
	}, "work order WO-2026-0001", "veh-1", testActor)
	require.NoError(t, err)

	require.Len(t, consumed, 2)
	assert.Equal(t, a.ItemName, consumed[0].ItemName)
	assert.Equal(t, 12.5, consumed[0].UnitPrice)

	ra, _ := store.GetItem(context.Background(), a.ID.Hex())
	rb, _ := store.GetItem(context.Background(), b.ID.Hex())
	assert.Equal(t, 7, ra.CurrentStock)
	assert.Equal(t, 2, rb.CurrentStock)
}

func TestConsumeBatchAllOrNothing(t *testing.T) {
	store := NewStore(newFakeInventory())
	a := registerTestItem(t, store, "BRK-012", 10)
	b := registerTestItem(t, store, "BRK-013", 1)

	_, err := store.ConsumeBatch(context.Background(), []ConsumeLine{
		{ItemID: a.ID.Hex(), Quantity: 3},
		{ItemID: b.ID.Hex(), Quantity: 2},
	}, "short batch", "", testActor)

	var ierr *domain.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, b.ID.Hex(), ierr.ItemID)

	// Neither item moved and no history was written.
	ra, _ := store.GetItem(context.Background(), a.ID.Hex())
	rb, _ := store.GetItem(context.Background(), b.ID.Hex())
	assert.Equal(t, 10, ra.CurrentStock)
	assert.Equal(t, 1, rb.CurrentStock)
	assert.Len(t, ra.StockHistory, 1)
	assert.Len(t, rb.StockHistory, 1)
}

func TestConsumeBatchValidation(t *testing.T) {
	store := NewStore(newFakeInventory())
	a := registerTestItem(t, store, "BRK-014", 10)

	var verr *domain.ValidationError

	_, err := store.ConsumeBatch(context.Background(), nil, "r", "", testActor)
	assert.ErrorAs(t, err, &verr)

	_, err = store.ConsumeBatch(context.Background(), []ConsumeLine{
		{ItemID: a.ID.Hex(), Quantity: 1},
		{ItemID: a.ID.Hex(), Quantity: 2},
	}, "dup", "", testActor)
	assert.ErrorAs(t, err, &verr)

	_, err = store.ConsumeBatch(context.Background(), []ConsumeLine{{ItemID: a.ID.Hex(), Quantity: 0}}, "zero", "", testActor)
	assert.ErrorAs(t, err, &verr)
}

func TestConcurrentAdjustmentsNeverGoNegative(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-015", 20)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AdjustStock(context.Background(), item.ID.Hex(), models.StockUsage, 1, 0, "concurrent", "", testActor)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrContention) {
				var ierr *domain.InsufficientStockError
				assert.ErrorAs(t, err, &ierr)
			}
		}()
	}
	wg.Wait()

	reloaded, err := store.GetItem(context.Background(), item.ID.Hex())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reloaded.CurrentStock, 0)
	assert.Equal(t, 20-succeeded, reloaded.CurrentStock)
}

func TestHistoryChainsContiguously(t *testing.T) {
	store := NewStore(newFakeInventory())
	item := registerTestItem(t, store, "BRK-016", 5)
	id := item.ID.Hex()

	_, err := store.AdjustStock(context.Background(), id, models.StockAddition, 10, 0, "restock", "", testActor)
	require.NoError(t, err)
	_, err = store.AdjustStock(context.Background(), id, models.StockUsage, 7, 0, "used", "", testActor)
	require.NoError(t, err)
	_, err = store.AdjustStock(context.Background(), id, models.StockDamage, 2, 0, "dropped", "", testActor)
	require.NoError(t, err)

	reloaded, err := store.GetItem(context.Background(), id)
	require.NoError(t, err)

	// Each entry starts where the previous one ended and the final entry
	// matches the stored stock.
	require.NotEmpty(t, reloaded.StockHistory)
	prev := 0
	for _, entry := range reloaded.StockHistory {
		assert.Equal(t, prev, entry.PreviousStock)
		assert.Equal(t, entry.PreviousStock+entry.Delta, entry.NewStock)
		prev = entry.NewStock
	}
	assert.Equal(t, reloaded.CurrentStock, prev)
}

func TestListItemsLowStockFilter(t *testing.T) {
	store := NewStore(newFakeInventory())
	registerTestItem(t, store, "BRK-017", 1) // at or below minimum of 2
	registerTestItem(t, store, "BRK-018", 10)

	low, err := store.ListItems(context.Background(), "", true)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "BRK-017", low[0].ItemCode)

	all, err := store.ListItems(context.Background(), "brakes", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
