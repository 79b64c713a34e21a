package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ukydev/fleet-ops/internal/models"
	"github.com/ukydev/fleet-ops/internal/odometer"
)

// VehicleHandler exposes vehicle registration, odometer-derived state and
// driver logs over HTTP.
type VehicleHandler struct {
	tracker *odometer.Tracker
	chain   *odometer.LogChain
}

// NewVehicleHandler creates a new vehicle handler.
func NewVehicleHandler(tracker *odometer.Tracker, chain *odometer.LogChain) *VehicleHandler {
	return &VehicleHandler{tracker: tracker, chain: chain}
}

// Vehicles handles vehicle registration.
func (h *VehicleHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var vehicle models.Vehicle
	if err := json.Unmarshal(body, &vehicle); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := h.tracker.RegisterVehicle(r.Context(), vehicle, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Vehicle returns one vehicle with its derived service and online state.
func (h *VehicleHandler) Vehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/vehicles/")
	vehicle, err := h.tracker.GetVehicle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*models.Vehicle
		ServiceInfo *odometer.ServiceInfo `json:"service_info,omitempty"`
		IsOnline    bool                  `json:"is_online"`
	}{vehicle, odometer.ServiceInfoOf(vehicle), odometer.IsOnline(vehicle)})
}

// RecordService records a completed vehicle service.
func (h *VehicleHandler) RecordService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req struct {
		VehicleID string  `json:"vehicle_id"`
		ServiceKm float64 `json:"service_km"`
		Notes     string  `json:"notes"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.tracker.RecordService(r.Context(), req.VehicleID, req.ServiceKm, req.Notes, actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Locations ingests vehicle position reports.
func (h *VehicleHandler) Locations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var ping models.LocationPing
	if err := json.Unmarshal(body, &ping); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.tracker.RecordLocation(r.Context(), ping); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Logs handles driver log creation and listing.
func (h *VehicleHandler) Logs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createLog(w, r)
	case http.MethodGet:
		h.listLogs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *VehicleHandler) createLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req struct {
		VehicleID string     `json:"vehicle_id"`
		EndKm     float64    `json:"end_km"`
		Date      *time.Time `json:"date,omitempty"`
		Remarks   string     `json:"remarks"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := h.chain.CreateLog(r.Context(), req.VehicleID, req.EndKm, req.Date, req.Remarks, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *VehicleHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID == "" {
		http.Error(w, "vehicle_id is required", http.StatusBadRequest)
		return
	}

	logs, err := h.chain.ListLogs(r.Context(), vehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// Log handles edits to a single driver log.
func (h *VehicleHandler) Log(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/logs/")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req struct {
		StartKm float64 `json:"start_km"`
		EndKm   float64 `json:"end_km"`
		Remarks string  `json:"remarks"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updated, err := h.chain.UpdateLog(r.Context(), id, req.StartKm, req.EndKm, req.Remarks, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
