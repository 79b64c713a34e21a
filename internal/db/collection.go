package db

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// Collections bundles the engine's collection handles over one database.
type Collections struct {
	Inventory  InventoryCollection
	Vehicles   VehicleCollection
	Requests   RequestCollection
	WorkOrders WorkOrderCollection
	DriverLogs DriverLogCollection
	Counters   CounterCollection
	Users      UserCollection
}

// NewCollections wires the Mongo implementations over a database handle.
func NewCollections(database *mongo.Database) *Collections {
	return &Collections{
		Inventory:  &MongoInventoryCollection{Collection: database.Collection("inventory")},
		Vehicles:   &MongoVehicleCollection{Collection: database.Collection("vehicles")},
		Requests:   &MongoRequestCollection{Collection: database.Collection("requests")},
		WorkOrders: &MongoWorkOrderCollection{Collection: database.Collection("work_orders")},
		DriverLogs: &MongoDriverLogCollection{Collection: database.Collection("driver_logs")},
		Counters:   &MongoCounterCollection{Collection: database.Collection("counters")},
		Users:      &MongoUserCollection{Collection: database.Collection("users")},
	}
}
