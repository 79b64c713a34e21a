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

// DriverLogCollection defines the interface for driver log database operations.
type DriverLogCollection interface {
	InsertLog(ctx context.Context, log models.DriverLog) (string, error)
	FindLogByID(ctx context.Context, id string) (*models.DriverLog, error)
	// FindLatestLog returns the chronologically last log for a vehicle, or
	// mongo.ErrNoDocuments when the vehicle has none.
	FindLatestLog(ctx context.Context, vehicleID string) (*models.DriverLog, error)
	// FindPreviousLog returns the last log for a vehicle dated before the
	// given date, excluding the given log id.
	FindPreviousLog(ctx context.Context, vehicleID string, before time.Time, excludeID string) (*models.DriverLog, error)
	FindLogsByVehicle(ctx context.Context, vehicleID string) ([]models.DriverLog, error)
	UpdateLog(ctx context.Context, id string, log models.DriverLog) error
}

// MongoDriverLogCollection implements DriverLogCollection for MongoDB.
type MongoDriverLogCollection struct {
	Collection *mongo.Collection
}

// InsertLog inserts a driver log record and returns its id.
func (c *MongoDriverLogCollection) InsertLog(ctx context.Context, log models.DriverLog) (string, error) {
	log.CreatedAt = time.Now()
	log.UpdatedAt = time.Now()

	res, err := c.Collection.InsertOne(ctx, log)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", nil
	}
	return oid.Hex(), nil
}

// FindLogByID finds a driver log by its ID.
func (c *MongoDriverLogCollection) FindLogByID(ctx context.Context, id string) (*models.DriverLog, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var log models.DriverLog
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&log)
	if err != nil {
		return nil, err
	}

	return &log, nil
}

// FindLatestLog returns the chronologically last log for a vehicle.
func (c *MongoDriverLogCollection) FindLatestLog(ctx context.Context, vehicleID string) (*models.DriverLog, error) {
	var log models.DriverLog
	err := c.Collection.FindOne(ctx,
		bson.M{"vehicle_id": vehicleID},
		options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}}),
	).Decode(&log)
	if err != nil {
		return nil, err
	}

	return &log, nil
}

// FindPreviousLog returns the last log for a vehicle dated before the given date.
func (c *MongoDriverLogCollection) FindPreviousLog(ctx context.Context, vehicleID string, before time.Time, excludeID string) (*models.DriverLog, error) {
	filter := bson.M{
		"vehicle_id": vehicleID,
		"date":       bson.M{"$lt": before},
	}
	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	var log models.DriverLog
	err := c.Collection.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}}),
	).Decode(&log)
	if err != nil {
		return nil, err
	}

	return &log, nil
}

// FindLogsByVehicle returns a vehicle's logs in chain order.
func (c *MongoDriverLogCollection) FindLogsByVehicle(ctx context.Context, vehicleID string) ([]models.DriverLog, error) {
	cursor, err := c.Collection.Find(ctx,
		bson.M{"vehicle_id": vehicleID},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.DriverLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// UpdateLog replaces a driver log by its ID.
func (c *MongoDriverLogCollection) UpdateLog(ctx context.Context, id string, log models.DriverLog) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	log.UpdatedAt = time.Now()
	log.ID = objectID

	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": objectID}, log)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
