package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// casRetries bounds the optimistic-update loop on a single item.
const casRetries = 8

// ErrContention is returned when an item's stock keeps moving under us and
// the optimistic update never lands.
var ErrContention = errors.New("stock update contention, retry")

// Store owns inventory items and their append-only stock history. All stock
// mutations go through it; it never edits or deletes a history entry.
type Store struct {
	items db.InventoryCollection

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a ledger store over an inventory collection.
func NewStore(items db.InventoryCollection) *Store {
	return &Store{
		items: items,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the in-process mutex serializing batch work on one item.
func (s *Store) lockFor(itemID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[itemID] = l
	}
	return l
}

// RegisterItem registers a new inventory item. Item code and name must be
// unique; a positive initial stock is recorded as a synthetic addition entry
// so the history reconstructs the stock from zero.
func (s *Store) RegisterItem(ctx context.Context, item models.InventoryItem, actor domain.Actor) (*models.InventoryItem, error) {
	if item.ItemCode == "" {
		return nil, domain.Validation("item_code", "is required")
	}
	if item.ItemName == "" {
		return nil, domain.Validation("item_name", "is required")
	}
	if item.Category == "" {
		return nil, domain.Validation("category", "is required")
	}
	if item.Unit == "" {
		return nil, domain.Validation("unit", "is required")
	}
	if item.CurrentStock < 0 {
		return nil, domain.Validation("current_stock", "must not be negative")
	}
	if item.MinimumStock < 0 {
		return nil, domain.Validation("minimum_stock", "must not be negative")
	}
	if item.MaximumStock > 0 && item.MaximumStock < item.MinimumStock {
		return nil, domain.Validation("maximum_stock", "must not be below minimum stock")
	}
	if item.UnitPrice < 0 {
		return nil, domain.Validation("unit_price", "must not be negative")
	}

	if existing, err := s.items.FindItemByCode(ctx, item.ItemCode); err == nil {
		return nil, domain.Conflict(existing.ID.Hex(), "item code already exists")
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("lookup item code: %w", err)
	}
	if existing, err := s.items.FindItemByName(ctx, item.ItemName); err == nil {
		return nil, domain.Conflict(existing.ID.Hex(), "item name already exists")
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("lookup item name: %w", err)
	}

	item.StockHistory = []models.StockEntry{}
	if item.CurrentStock > 0 {
		item.StockHistory = append(item.StockHistory, models.StockEntry{
			Kind:          models.StockAddition,
			Quantity:      item.CurrentStock,
			Delta:         item.CurrentStock,
			PreviousStock: 0,
			NewStock:      item.CurrentStock,
			Reason:        "initial stock",
			PerformedBy:   actor.ID,
			Timestamp:     time.Now(),
		})
	}
	item.Status = deriveStatus(item.Status, item.CurrentStock)

	id, err := s.items.InsertItem(ctx, item)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.Conflict("", "item code or name already exists")
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}

	created, err := s.items.FindItemByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}

	log.WithFields(log.Fields{
		"item_code": created.ItemCode,
		"stock":     created.CurrentStock,
		"actor":     actor.ID,
	}).Info("inventory item registered")

	return created, nil
}

// AdjustStock applies one stock movement to an item. quantity must be
// positive for addition, usage, damage and return; the adjustment kind
// ignores quantity and applies the signed delta instead. Movements that would
// take the stock negative fail with InsufficientStockError and change
// nothing.
func (s *Store) AdjustStock(ctx context.Context, itemID string, kind models.StockMovementKind, quantity, delta int, reason, vehicleID string, actor domain.Actor) (*models.InventoryItem, error) {
	if !models.IsValidStockMovementKind(kind) {
		return nil, domain.Validation("kind", "unknown stock movement kind")
	}
	if kind == models.StockAdjustment {
		if delta == 0 {
			return nil, domain.Validation("delta", "must be non-zero for adjustments")
		}
	} else if quantity <= 0 {
		return nil, domain.Validation("quantity", "must be positive")
	}
	if reason == "" {
		return nil, domain.Validation("reason", "is required")
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		item, err := s.items.FindItemByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("load item: %w", err)
		}

		entry, err := buildEntry(item, kind, quantity, delta, reason, vehicleID, actor)
		if err != nil {
			return nil, err
		}

		ok, err := s.items.UpdateStockCAS(ctx, itemID, entry, deriveStatus(item.Status, entry.NewStock))
		if err != nil {
			return nil, fmt.Errorf("apply stock change: %w", err)
		}
		if !ok {
			// Lost the race against a concurrent writer; re-read and retry.
			continue
		}

		item.CurrentStock = entry.NewStock
		item.Status = deriveStatus(item.Status, entry.NewStock)
		item.StockHistory = append(item.StockHistory, entry)

		log.WithFields(log.Fields{
			"item_code": item.ItemCode,
			"kind":      kind,
			"delta":     entry.Delta,
			"stock":     entry.NewStock,
			"actor":     actor.ID,
		}).Info("stock adjusted")

		return item, nil
	}

	return nil, ErrContention
}

// ConsumeLine names one item and the quantity to consume from it.
type ConsumeLine struct {
	ItemID   string
	Quantity int
}

// ConsumedPart reports one applied consumption with the unit price
// snapshotted at consumption time.
type ConsumedPart struct {
	ItemID    string
	ItemName  string
	Quantity  int
	UnitPrice float64
}

// ConsumeBatch consumes stock for several items with all-or-nothing
// semantics: when any line lacks sufficient stock, no line is consumed.
// Batches are serialized per item through in-process locks taken in sorted
// order; the underlying writes stay conditional, so a writer outside this
// process cannot make the ledger go negative either.
func (s *Store) ConsumeBatch(ctx context.Context, lines []ConsumeLine, reason, vehicleID string, actor domain.Actor) ([]ConsumedPart, error) {
	if len(lines) == 0 {
		return nil, domain.Validation("lines", "must not be empty")
	}
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.ItemID == "" {
			return nil, domain.Validation("item_id", "is required")
		}
		if l.Quantity <= 0 {
			return nil, domain.Validation("quantity", "must be positive")
		}
		if seen[l.ItemID] {
			return nil, domain.Validation("item_id", "duplicated in batch")
		}
		seen[l.ItemID] = true
		ids = append(ids, l.ItemID)
	}

	// Sorted lock order prevents deadlock between overlapping batches.
	sort.Strings(ids)
	for _, id := range ids {
		l := s.lockFor(id)
		l.Lock()
		defer l.Unlock()
	}

	// Pre-check every line before touching any of them.
	itemsByID := make(map[string]*models.InventoryItem, len(lines))
	for _, l := range lines {
		item, err := s.items.FindItemByID(ctx, l.ItemID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("load item: %w", err)
		}
		if item.CurrentStock < l.Quantity {
			return nil, &domain.InsufficientStockError{
				ItemID:    l.ItemID,
				Available: item.CurrentStock,
				Requested: l.Quantity,
			}
		}
		itemsByID[l.ItemID] = item
	}

	consumed := make([]ConsumedPart, 0, len(lines))
	applied := make([]ConsumeLine, 0, len(lines))
	for _, l := range lines {
		item := itemsByID[l.ItemID]
		entry := models.StockEntry{
			Kind:          models.StockUsage,
			Quantity:      l.Quantity,
			Delta:         -l.Quantity,
			PreviousStock: item.CurrentStock,
			NewStock:      item.CurrentStock - l.Quantity,
			Reason:        reason,
			VehicleID:     vehicleID,
			PerformedBy:   actor.ID,
			Timestamp:     time.Now(),
		}

		ok, err := s.items.UpdateStockCAS(ctx, l.ItemID, entry, deriveStatus(item.Status, entry.NewStock))
		if err != nil {
			s.rollback(ctx, applied, reason, vehicleID, actor)
			return nil, fmt.Errorf("apply stock change: %w", err)
		}
		if !ok {
			// An external writer moved the stock under the in-process lock.
			if err := s.retryLine(ctx, l, reason, vehicleID, actor, itemsByID); err != nil {
				s.rollback(ctx, applied, reason, vehicleID, actor)
				return nil, err
			}
			item = itemsByID[l.ItemID]
		}

		applied = append(applied, l)
		consumed = append(consumed, ConsumedPart{
			ItemID:    l.ItemID,
			ItemName:  item.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	log.WithFields(log.Fields{
		"lines":  len(lines),
		"reason": reason,
		"actor":  actor.ID,
	}).Info("stock batch consumed")

	return consumed, nil
}

// retryLine re-reads an item and re-applies one consumption after a CAS miss.
func (s *Store) retryLine(ctx context.Context, l ConsumeLine, reason, vehicleID string, actor domain.Actor, itemsByID map[string]*models.InventoryItem) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		item, err := s.items.FindItemByID(ctx, l.ItemID)
		if err != nil {
			return fmt.Errorf("reload item: %w", err)
		}
		if item.CurrentStock < l.Quantity {
			return &domain.InsufficientStockError{
				ItemID:    l.ItemID,
				Available: item.CurrentStock,
				Requested: l.Quantity,
			}
		}
		entry := models.StockEntry{
			Kind:          models.StockUsage,
			Quantity:      l.Quantity,
			Delta:         -l.Quantity,
			PreviousStock: item.CurrentStock,
			NewStock:      item.CurrentStock - l.Quantity,
			Reason:        reason,
			VehicleID:     vehicleID,
			PerformedBy:   actor.ID,
			Timestamp:     time.Now(),
		}
		ok, err := s.items.UpdateStockCAS(ctx, l.ItemID, entry, deriveStatus(item.Status, entry.NewStock))
		if err != nil {
			return fmt.Errorf("apply stock change: %w", err)
		}
		if ok {
			itemsByID[l.ItemID] = item
			return nil
		}
	}
	return ErrContention
}

// rollback returns already-consumed lines after a failed batch. The
// reversals are regular ledger entries, so the audit trail shows both the
// consumption and its return.
func (s *Store) rollback(ctx context.Context, applied []ConsumeLine, reason, vehicleID string, actor domain.Actor) {
	for _, l := range applied {
		for attempt := 0; attempt < casRetries; attempt++ {
			item, err := s.items.FindItemByID(ctx, l.ItemID)
			if err != nil {
				break
			}
			entry := models.StockEntry{
				Kind:          models.StockReturn,
				Quantity:      l.Quantity,
				Delta:         l.Quantity,
				PreviousStock: item.CurrentStock,
				NewStock:      item.CurrentStock + l.Quantity,
				Reason:        reason + " (batch rolled back)",
				VehicleID:     vehicleID,
				PerformedBy:   actor.ID,
				Timestamp:     time.Now(),
			}
			ok, casErr := s.items.UpdateStockCAS(ctx, l.ItemID, entry, deriveStatus(item.Status, entry.NewStock))
			if casErr == nil && ok {
				break
			}
			if casErr != nil {
				log.WithError(casErr).WithField("item_id", l.ItemID).Error("failed to roll back batch line")
				break
			}
		}
	}
}

// GetItem returns one inventory item.
func (s *Store) GetItem(ctx context.Context, itemID string) (*models.InventoryItem, error) {
	item, err := s.items.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load item: %w", err)
	}
	return item, nil
}

// ListItems lists inventory items, optionally filtered by category or down
// to items at or below their minimum stock.
func (s *Store) ListItems(ctx context.Context, category string, lowOnly bool) ([]models.InventoryItem, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}
	if lowOnly {
		filter["$expr"] = bson.M{"$lte": bson.A{"$current_stock", "$minimum_stock"}}
	}
	items, err := s.items.FindItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// buildEntry computes the before/after stock for one movement against a
// loaded item snapshot.
func buildEntry(item *models.InventoryItem, kind models.StockMovementKind, quantity, delta int, reason, vehicleID string, actor domain.Actor) (models.StockEntry, error) {
	var applied int
	switch kind {
	case models.StockAddition, models.StockReturn:
		applied = quantity
	case models.StockUsage, models.StockDamage:
		applied = -quantity
	case models.StockAdjustment:
		applied = delta
		if delta < 0 {
			quantity = -delta
		} else {
			quantity = delta
		}
	}

	newStock := item.CurrentStock + applied
	if newStock < 0 {
		return models.StockEntry{}, &domain.InsufficientStockError{
			ItemID:    item.ID.Hex(),
			Available: item.CurrentStock,
			Requested: -applied,
		}
	}

	return models.StockEntry{
		Kind:          kind,
		Quantity:      quantity,
		Delta:         applied,
		PreviousStock: item.CurrentStock,
		NewStock:      newStock,
		Reason:        reason,
		VehicleID:     vehicleID,
		PerformedBy:   actor.ID,
		Timestamp:     time.Now(),
	}, nil
}

// deriveStatus rewrites the stored status from the new stock level.
// Discontinued items stay discontinued.
func deriveStatus(current string, stock int) string {
	if current == "discontinued" {
		return current
	}
	if stock == 0 {
		return "out_of_stock"
	}
	return "active"
}
