package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InventoryCollection defines the interface for inventory database operations.
type InventoryCollection interface {
	InsertItem(ctx context.Context, item models.InventoryItem) (string, error)
	FindItemByID(ctx context.Context, id string) (*models.InventoryItem, error)
	FindItemByCode(ctx context.Context, code string) (*models.InventoryItem, error)
	FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error)
	FindItems(ctx context.Context, filter bson.M) ([]models.InventoryItem, error)
	// UpdateStockCAS applies one stock ledger entry if and only if the item's
	// current stock still equals entry.PreviousStock. Returns false when a
	// concurrent writer got there first; the caller re-reads and retries.
	UpdateStockCAS(ctx context.Context, id string, entry models.StockEntry, status string) (bool, error)
}

// MongoInventoryCollection implements InventoryCollection for MongoDB.
type MongoInventoryCollection struct {
	Collection *mongo.Collection
}

// InsertItem inserts a new inventory item and returns its id.
func (c *MongoInventoryCollection) InsertItem(ctx context.Context, item models.InventoryItem) (string, error) {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()

	res, err := c.Collection.InsertOne(ctx, item)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", nil
	}
	return oid.Hex(), nil
}

// FindItemByID finds an inventory item by its ID.
func (c *MongoInventoryCollection) FindItemByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var item models.InventoryItem
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&item)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// FindItemByCode finds an inventory item by its unique item code.
func (c *MongoInventoryCollection) FindItemByCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := c.Collection.FindOne(ctx, bson.M{"item_code": code}).Decode(&item)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// FindItemByName finds an inventory item by its unique item name.
func (c *MongoInventoryCollection) FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := c.Collection.FindOne(ctx, bson.M{"item_name": name}).Decode(&item)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// FindItems finds inventory items with optional filtering.
func (c *MongoInventoryCollection) FindItems(ctx context.Context, filter bson.M) ([]models.InventoryItem, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.M{"item_code": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.InventoryItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStockCAS conditionally applies a stock change. The filter pins the
// stock the caller computed the entry from, so two concurrent writers cannot
// both succeed against the same snapshot.
func (c *MongoInventoryCollection) UpdateStockCAS(ctx context.Context, id string, entry models.StockEntry, status string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "current_stock": entry.PreviousStock},
		bson.M{
			"$set":  bson.M{"current_stock": entry.NewStock, "status": status, "updated_at": time.Now()},
			"$push": bson.M{"stock_history": entry},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
