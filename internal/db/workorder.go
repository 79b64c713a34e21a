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

// WorkOrderCollection defines the interface for work order database operations.
type WorkOrderCollection interface {
	InsertWorkOrder(ctx context.Context, wo models.WorkOrder) (string, error)
	FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error)
	FindWorkOrderByRequestID(ctx context.Context, requestID string) (*models.WorkOrder, error)
	FindWorkOrders(ctx context.Context, filter bson.M) ([]models.WorkOrder, error)
	// SaveWorkOrder replaces the work order only while its stored status still
	// equals fromStatus. Returns false when a concurrent mutation won.
	SaveWorkOrder(ctx context.Context, id, fromStatus string, wo models.WorkOrder) (bool, error)
}

// MongoWorkOrderCollection implements WorkOrderCollection for MongoDB.
type MongoWorkOrderCollection struct {
	Collection *mongo.Collection
}

// InsertWorkOrder inserts a work order record and returns its id.
func (c *MongoWorkOrderCollection) InsertWorkOrder(ctx context.Context, wo models.WorkOrder) (string, error) {
	wo.CreatedAt = time.Now()
	wo.UpdatedAt = time.Now()

	res, err := c.Collection.InsertOne(ctx, wo)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", nil
	}
	return oid.Hex(), nil
}

// FindWorkOrderByID finds a work order by its ID.
func (c *MongoWorkOrderCollection) FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var wo models.WorkOrder
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&wo)
	if err != nil {
		return nil, err
	}

	return &wo, nil
}

// FindWorkOrderByRequestID finds the work order linked to a maintenance request.
func (c *MongoWorkOrderCollection) FindWorkOrderByRequestID(ctx context.Context, requestID string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := c.Collection.FindOne(ctx, bson.M{"maintenance_request_id": requestID}).Decode(&wo)
	if err != nil {
		return nil, err
	}

	return &wo, nil
}

// FindWorkOrders finds work orders with optional filtering.
func (c *MongoWorkOrderCollection) FindWorkOrders(ctx context.Context, filter bson.M) ([]models.WorkOrder, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.WorkOrder
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// SaveWorkOrder replaces a work order guarded by its loaded status.
func (c *MongoWorkOrderCollection) SaveWorkOrder(ctx context.Context, id, fromStatus string, wo models.WorkOrder) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	wo.UpdatedAt = time.Now()
	wo.ID = objectID

	res, err := c.Collection.ReplaceOne(ctx,
		bson.M{"_id": objectID, "status": fromStatus},
		wo,
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// CounterCollection defines the interface for named sequence counters.
type CounterCollection interface {
	// NextSequence atomically increments and returns the named counter.
	NextSequence(ctx context.Context, name string) (int, error)
}

// MongoCounterCollection implements CounterCollection over a counters
// collection of {_id: name, seq: n} documents.
type MongoCounterCollection struct {
	Collection *mongo.Collection
}

// NextSequence atomically increments and returns the named counter. The
// upsert creates the counter at 1 on first use, so work order numbering
// never depends on counting existing rows.
func (c *MongoCounterCollection) NextSequence(ctx context.Context, name string) (int, error) {
	var doc struct {
		Seq int `bson:"seq"`
	}
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}
