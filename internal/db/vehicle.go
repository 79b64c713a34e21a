package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// VehicleCollection defines the interface for vehicle database operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) (string, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
	FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error)
	UpdateVehicleStatus(ctx context.Context, id string, status string) error
	// SetCurrentKm publishes a new odometer reading. Unless force is set the
	// update only matches when the stored reading is not ahead of km, which
	// keeps the odometer monotonic under concurrent writers.
	SetCurrentKm(ctx context.Context, id string, km float64, force bool) (bool, error)
	AppendServiceRecord(ctx context.Context, id string, record models.ServiceRecord) error
	UpdateLastLocation(ctx context.Context, id string, loc models.Location, at time.Time) error
}

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record and returns its id.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) (string, error) {
	vehicle.CreatedAt = time.Now()
	vehicle.UpdatedAt = time.Now()

	res, err := c.Collection.InsertOne(ctx, vehicle)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", nil
	}
	return oid.Hex(), nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var vehicle models.Vehicle
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&vehicle)
	if err != nil {
		return nil, err
	}

	return &vehicle, nil
}

// FindVehicleByPlate finds a vehicle by its unique plate number.
func (c *MongoVehicleCollection) FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, bson.M{"plate_number": plate}).Decode(&vehicle)
	if err != nil {
		return nil, err
	}

	return &vehicle, nil
}

// FindVehicles finds vehicles with optional filtering.
func (c *MongoVehicleCollection) FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error) {
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UpdateVehicleStatus sets a vehicle's status.
func (c *MongoVehicleCollection) UpdateVehicleStatus(ctx context.Context, id string, status string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetCurrentKm publishes a new odometer reading.
func (c *MongoVehicleCollection) SetCurrentKm(ctx context.Context, id string, km float64, force bool) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	filter := bson.M{"_id": objectID}
	if !force {
		filter["current_km"] = bson.M{"$lte": km}
	}

	res, err := c.Collection.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"current_km": km, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// AppendServiceRecord appends a service history entry and advances the
// previous-service odometer marker.
func (c *MongoVehicleCollection) AppendServiceRecord(ctx context.Context, id string, record models.ServiceRecord) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{
			"$push": bson.M{"service_history": record},
			"$set":  bson.M{"previous_service_km": record.ServiceKm, "updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateLastLocation stores a vehicle's latest position report.
func (c *MongoVehicleCollection) UpdateLastLocation(ctx context.Context, id string, loc models.Location, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"last_location": loc, "last_location_update": at, "updated_at": time.Now()}},
	)
	return err
}
