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

// RequestCollection defines the interface for request database operations.
type RequestCollection interface {
	InsertRequest(ctx context.Context, req models.Request) (string, error)
	FindRequestByID(ctx context.Context, id string) (*models.Request, error)
	// FindOpenRequest finds a pending or approved request matching the scope
	// filter, or returns mongo.ErrNoDocuments.
	FindOpenRequest(ctx context.Context, scope bson.M) (*models.Request, error)
	FindRequests(ctx context.Context, filter bson.M) ([]models.Request, error)
	// TransitionStatus atomically moves a request from one status to another,
	// applying the extra field updates in the same write. Returns false when
	// the request was no longer in the expected status.
	TransitionStatus(ctx context.Context, id, from, to string, set bson.M) (bool, error)
	// UpdateRequestPending rewrites a request's payload only while it is
	// still pending. Returns false otherwise.
	UpdateRequestPending(ctx context.Context, id string, req models.Request) (bool, error)
}

// MongoRequestCollection implements RequestCollection for MongoDB. All four
// request kinds share one collection; the "open" flag backs the partial
// unique indexes that enforce the single-open-request rule per kind.
type MongoRequestCollection struct {
	Collection *mongo.Collection
}

// InsertRequest inserts a request record and returns its id.
func (c *MongoRequestCollection) InsertRequest(ctx context.Context, req models.Request) (string, error) {
	req.CreatedAt = time.Now()
	req.UpdatedAt = time.Now()
	req.Status = models.RequestPending

	res, err := c.Collection.InsertOne(ctx, toRequestDoc(req))
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", nil
	}
	return oid.Hex(), nil
}

// FindRequestByID finds a request by its ID.
func (c *MongoRequestCollection) FindRequestByID(ctx context.Context, id string) (*models.Request, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var req models.Request
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&req)
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// FindOpenRequest finds a pending or approved request matching the scope filter.
func (c *MongoRequestCollection) FindOpenRequest(ctx context.Context, scope bson.M) (*models.Request, error) {
	filter := bson.M{"open": true}
	for k, v := range scope {
		filter[k] = v
	}

	var req models.Request
	err := c.Collection.FindOne(ctx, filter).Decode(&req)
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// FindRequests finds requests with optional filtering.
func (c *MongoRequestCollection) FindRequests(ctx context.Context, filter bson.M) ([]models.Request, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var requests []models.Request
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// TransitionStatus atomically moves a request between statuses.
func (c *MongoRequestCollection) TransitionStatus(ctx context.Context, id, from, to string, set bson.M) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	update := bson.M{
		"status":     to,
		"open":       to == models.RequestPending || to == models.RequestApproved,
		"updated_at": time.Now(),
	}
	for k, v := range set {
		update[k] = v
	}

	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "status": from},
		bson.M{"$set": update},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// UpdateRequestPending rewrites a request's payload while it is still pending.
func (c *MongoRequestCollection) UpdateRequestPending(ctx context.Context, id string, req models.Request) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	req.UpdatedAt = time.Now()
	req.ID = objectID
	req.Status = models.RequestPending

	res, err := c.Collection.ReplaceOne(ctx,
		bson.M{"_id": objectID, "status": models.RequestPending},
		toRequestDoc(req),
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// toRequestDoc attaches the "open" marker the partial unique indexes key on.
func toRequestDoc(req models.Request) bson.M {
	doc := bson.M{
		"kind":         req.Kind,
		"vehicle_id":   req.VehicleID,
		"requester_id": req.RequesterID,
		"status":       req.Status,
		"description":  req.Description,
		"open":         req.Status == models.RequestPending || req.Status == models.RequestApproved,
		"created_at":   req.CreatedAt,
		"updated_at":   req.UpdatedAt,
	}
	if !req.ID.IsZero() {
		doc["_id"] = req.ID
	}
	if req.Category != "" {
		doc["category"] = req.Category
	}
	if req.ItemID != "" {
		doc["item_id"] = req.ItemID
	}
	if req.Quantity != 0 {
		doc["quantity"] = req.Quantity
	}
	if req.Liters != 0 {
		doc["liters"] = req.Liters
	}
	if req.Amount != 0 {
		doc["amount"] = req.Amount
	}
	if req.PeriodStart != nil {
		doc["period_start"] = req.PeriodStart
	}
	if req.PeriodEnd != nil {
		doc["period_end"] = req.PeriodEnd
	}
	return doc
}
