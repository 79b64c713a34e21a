package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-ops/internal/auth"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/handlers"
	"github.com/ukydev/fleet-ops/internal/ledger"
	"github.com/ukydev/fleet-ops/internal/middleware"
	"github.com/ukydev/fleet-ops/internal/models"
	"github.com/ukydev/fleet-ops/internal/notify"
	"github.com/ukydev/fleet-ops/internal/odometer"
	"github.com/ukydev/fleet-ops/internal/workflow"
	"github.com/ukydev/fleet-ops/internal/workorder"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "fleet_ops"
	}
	database := client.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		cancel()
		log.WithError(err).Fatal("failed to create indexes")
	}
	cancel()

	collections := db.NewCollections(database)

	var sink notify.Sink = notify.LogSink{}
	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		mqttSink, err := notify.NewMQTTSink(brokerURL, "fleet-ops-server", os.Getenv("MQTT_TOPIC_PREFIX"))
		if err != nil {
			log.WithError(err).Warn("MQTT broker unavailable, notifications go to the log")
		} else {
			defer mqttSink.Close()
			sink = mqttSink
		}
	}

	store := ledger.NewStore(collections.Inventory)
	tracker := odometer.NewTracker(collections.Vehicles)
	chain := odometer.NewLogChain(collections.DriverLogs, tracker)
	requests := workflow.NewEngine(collections.Requests, store, tracker)
	orders := workorder.NewEngine(collections.WorkOrders, collections.Counters, store, tracker, requests, sink)

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()

	authHandler := handlers.NewAuthHandler(authService, collections.Users)
	userHandler := handlers.NewUserHandler(collections.Users)
	inventoryHandler := handlers.NewInventoryHandler(store)
	vehicleHandler := handlers.NewVehicleHandler(tracker, chain)
	requestHandler := handlers.NewRequestHandler(requests)
	workOrderHandler := handlers.NewWorkOrderHandler(orders, collections.Users)

	loginLimit := rateLimiter.RateLimit(10, time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/api/auth/login", loginLimit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("/api/auth/register", loginLimit(http.HandlerFunc(authHandler.Register)))
	mux.HandleFunc("/api/auth/profile", authHandler.Profile)
	mux.HandleFunc("/api/auth/password", authHandler.ChangePassword)

	mux.Handle("/api/users", authMiddleware.RequirePermission("view_users")(http.HandlerFunc(userHandler.Users)))
	mux.Handle("/api/users/", authMiddleware.RequirePermission("delete_user")(http.HandlerFunc(userHandler.User)))

	mux.HandleFunc("/api/inventory", inventoryHandler.Items)
	mux.Handle("/api/inventory/adjust", authMiddleware.RequireRole(models.RoleManager)(http.HandlerFunc(inventoryHandler.AdjustStock)))
	mux.HandleFunc("/api/inventory/", inventoryHandler.Item)

	mux.HandleFunc("/api/vehicles", vehicleHandler.Vehicles)
	mux.HandleFunc("/api/vehicles/", vehicleHandler.Vehicle)
	mux.HandleFunc("/api/vehicles/service", vehicleHandler.RecordService)
	mux.HandleFunc("/api/locations", vehicleHandler.Locations)
	mux.HandleFunc("/api/logs", vehicleHandler.Logs)
	mux.HandleFunc("/api/logs/", vehicleHandler.Log)

	mux.HandleFunc("/api/requests", requestHandler.Requests)
	mux.HandleFunc("/api/requests/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			requestHandler.Transition(w, r)
			return
		}
		requestHandler.Request(w, r)
	})

	mux.HandleFunc("/api/work-orders", workOrderHandler.WorkOrders)
	mux.HandleFunc("/api/work-orders/", workOrderHandler.WorkOrder)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.WithField("port", port).Info("fleet-ops server listening")
	if err := http.ListenAndServe(":"+port, authMiddleware.Authenticate(mux)); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
