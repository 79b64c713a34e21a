package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationPing is a position report sent to the locations endpoint.
type LocationPing struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	Location  Location  `json:"location"`
	SpeedKmh  float64   `json:"speed_kmh"`
}

// Depots the simulated fleet operates from.
var depots = []Location{
	{Lat: 41.0082, Lon: 28.9784}, // Istanbul
	{Lat: 39.9334, Lon: 32.8597}, // Ankara
	{Lat: 38.4237, Lon: 27.1428}, // Izmir
	{Lat: 40.1885, Lon: 29.0610}, // Bursa
	{Lat: 36.8969, Lon: 30.7133}, // Antalya
	{Lat: 37.0000, Lon: 35.3213}, // Adana
	{Lat: 37.8746, Lon: 32.4932}, // Konya
	{Lat: 40.7669, Lon: 29.9169}, // Izmit
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func randomDepot() Location {
	base := depots[rand.Intn(len(depots))]
	return jitterLocation(base, 500)
}

var authToken string

func authorizedPost(url string, contentType string, body *bytes.Buffer) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

var vanCatalog = []struct {
	make  string
	model string
}{
	{"Ford", "Transit"},
	{"Mercedes", "Sprinter"},
	{"Iveco", "Daily"},
	{"MAN", "TGE"},
	{"Toyota", "Hilux"},
}

func createVehicle(apiURL string, index int) (string, float64, error) {
	van := vanCatalog[rand.Intn(len(vanCatalog))]
	startKm := float64(10000 + rand.Intn(150000))
	vehicle := map[string]interface{}{
		"plate_number":        fmt.Sprintf("34-SIM-%03d", index),
		"make":                van.make,
		"model":               van.model,
		"year":                2020 + rand.Intn(5),
		"current_km":          startKm,
		"service_interval_km": 10000.0,
	}

	data, err := json.Marshal(vehicle)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal vehicle: %w", err)
	}

	resp, err := authorizedPost(apiURL+"/vehicles", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create vehicle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", 0, fmt.Errorf("vehicle creation failed with status: %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}

	createdVehicleID, ok := result["id"].(string)
	if !ok {
		return "", 0, fmt.Errorf("invalid vehicle ID in response")
	}

	log.WithFields(log.Fields{
		"vehicle_id": createdVehicleID,
		"plate":      vehicle["plate_number"],
	}).Info("Created vehicle")

	return createdVehicleID, startKm, nil
}

// VehicleState tracks one simulated vehicle between ticks.
type VehicleState struct {
	VehicleID  string
	Position   Location
	SpeedKmh   float64
	TripKm     float64 // distance accumulated since the last driver log
	FuelPct    float64
	HasFuelReq bool
}

// tripTargetKm picks a plausible trip distance, well under the daily cap.
func tripTargetKm() float64 {
	return 0.5 + rand.Float64()*2
}

func pingFromState(s *VehicleState) LocationPing {
	return LocationPing{
		VehicleID: s.VehicleID,
		Timestamp: time.Now(),
		Location:  s.Position,
		SpeedKmh:  s.SpeedKmh,
	}
}

func sendPing(apiURL string, ping LocationPing) {
	data, err := json.Marshal(ping)
	if err != nil {
		log.WithError(err).Error("Failed to marshal location ping")
		return
	}
	resp, err := authorizedPost(apiURL+"/locations", "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.WithError(err).Error("Failed to send location ping")
		return
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{"vehicle_id": ping.VehicleID, "status": resp.Status}).Debug("Sent location ping")
}

// sendDriverLog files a trip log covering the distance accumulated so far.
// The server derives start_km from the chain, so only end_km is needed; it
// comes back in the response for the next trip.
func sendDriverLog(apiURL string, s *VehicleState, endKm float64) {
	payload := map[string]interface{}{
		"vehicle_id": s.VehicleID,
		"end_km":     endKm,
		"remarks":    "simulated trip",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to marshal driver log")
		return
	}
	resp, err := authorizedPost(apiURL+"/logs", "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.WithError(err).Error("Failed to send driver log")
		return
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{
		"vehicle_id": s.VehicleID,
		"end_km":     endKm,
		"status":     resp.Status,
	}).Info("Filed driver log")
}

// sendFuelRequest files a fuel request when the simulated tank runs low.
func sendFuelRequest(apiURL string, s *VehicleState) {
	payload := map[string]interface{}{
		"kind":        "fuel",
		"vehicle_id":  s.VehicleID,
		"liters":      40 + rand.Float64()*40,
		"amount":      60 + rand.Float64()*80,
		"description": "simulated refuel",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to marshal fuel request")
		return
	}
	resp, err := authorizedPost(apiURL+"/requests", "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.WithError(err).Error("Failed to send fuel request")
		return
	}
	defer resp.Body.Close()
	// 409 means an open fuel request already exists for this vehicle.
	s.HasFuelReq = resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict
	log.WithFields(log.Fields{"vehicle_id": s.VehicleID, "status": resp.Status}).Info("Filed fuel request")
}

func simulateVehicle(apiURL string, s *VehicleState, startKm float64, interval time.Duration) {
	odometer := startKm
	tripTarget := tripTargetKm()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for range tick.C {
		// small speed noise
		s.SpeedKmh += (rand.Float64()*2 - 1) * 1.5
		if s.SpeedKmh < 15 {
			s.SpeedKmh = 15
		}
		if s.SpeedKmh > 90 {
			s.SpeedKmh = 90
		}

		s.Position = jitterLocation(s.Position, s.SpeedKmh*interval.Seconds()/3.6)
		km := s.SpeedKmh * (interval.Seconds() / 3600.0)
		s.TripKm += km
		s.FuelPct -= km * 0.4

		sendPing(apiURL, pingFromState(s))

		// Close out the trip as one log entry once the target is reached.
		if s.TripKm >= tripTarget {
			odometer += s.TripKm
			sendDriverLog(apiURL, s, odometer)
			s.TripKm = 0
			tripTarget = tripTargetKm()
		}

		if s.FuelPct < 15 && !s.HasFuelReq {
			sendFuelRequest(apiURL, s)
			s.FuelPct = 100
		}
	}
}

func main() {
	// Optional JWT for protected API
	authToken = os.Getenv("SIM_AUTH_TOKEN")

	fleetSize := 10
	if val := os.Getenv("FLEET_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			fleetSize = n
		}
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting fleet activity simulation")

	states := make([]*VehicleState, 0, fleetSize)
	startKms := make([]float64, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		vehicleID, startKm, err := createVehicle(apiURL, i+1)
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		states = append(states, &VehicleState{
			VehicleID: vehicleID,
			Position:  randomDepot(),
			SpeedKmh:  30 + rand.Float64()*30,
			FuelPct:   50 + rand.Float64()*50,
		})
		startKms = append(startKms, startKm)
	}

	log.WithField("created_vehicles", len(states)).Info("Vehicle creation completed")
	if len(states) == 0 {
		log.Error("No vehicles created. Ensure SIM_AUTH_TOKEN is valid and API is reachable. Exiting.")
		time.Sleep(2 * time.Second)
		return
	}

	for i, s := range states {
		go simulateVehicle(apiURL, s, startKms[i], interval)
	}

	log.Info("Fleet activity simulation started")
	select {} // Block forever
}
