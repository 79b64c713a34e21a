package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/ledger"
	"github.com/ukydev/fleet-ops/internal/workorder"
)

// WorkOrderHandler exposes the work order engine over HTTP.
type WorkOrderHandler struct {
	engine *workorder.Engine
	users  db.UserCollection
}

// NewWorkOrderHandler creates a new work order handler.
func NewWorkOrderHandler(engine *workorder.Engine, users db.UserCollection) *WorkOrderHandler {
	return &WorkOrderHandler{engine: engine, users: users}
}

// WorkOrders handles conversion from a maintenance request and listing.
func (h *WorkOrderHandler) WorkOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.convert(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WorkOrderHandler) convert(w http.ResponseWriter, r *http.Request) {
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
		MaintenanceRequestID string `json:"maintenance_request_id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := h.engine.Convert(r.Context(), req.MaintenanceRequestID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *WorkOrderHandler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// WorkOrder routes single-order reads and the mutating sub-operations:
// /api/work-orders/{id}[/mechanics|/parts|/labor|/progress|/complete|/cancel]
func (h *WorkOrderHandler) WorkOrder(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/work-orders/")
	id, op := path, ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		id, op = path[:i], path[i+1:]
	}

	if op == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wo, err := h.engine.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)
		return
	}

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

	switch op {
	case "mechanics":
		var req struct {
			MechanicIDs []string `json:"mechanic_ids"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		wo, err := h.engine.AssignMechanics(r.Context(), id, req.MechanicIDs, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	case "parts":
		var req struct {
			Lines []ledger.ConsumeLine `json:"lines"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		wo, err := h.engine.AddSpareParts(r.Context(), id, req.Lines, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	case "labor":
		var req struct {
			MechanicID  string  `json:"mechanic_id"`
			Hours       float64 `json:"hours"`
			HourlyRate  float64 `json:"hourly_rate"`
			Description string  `json:"description"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		rate, err := resolveHourlyRate(r.Context(), h.users, req.MechanicID, req.HourlyRate)
		if err != nil {
			writeError(w, err)
			return
		}
		wo, err := h.engine.AddLaborCost(r.Context(), id, req.MechanicID, req.Hours, rate, req.Description, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	case "progress":
		var req struct {
			Note   string `json:"note"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		wo, err := h.engine.UpdateProgress(r.Context(), id, req.Note, req.Status, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	case "complete":
		var req struct {
			FinalNotes string `json:"final_notes"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		wo, err := h.engine.Complete(r.Context(), id, req.FinalNotes, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	case "cancel":
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		wo, err := h.engine.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wo)

	default:
		http.Error(w, "Unknown operation", http.StatusNotFound)
	}
}

// resolveHourlyRate fills an omitted labor rate from the mechanic's stored
// hourly rate. No submitted rate and no stored rate is not free labor; the
// line is rejected instead.
func resolveHourlyRate(ctx context.Context, users db.UserCollection, mechanicID string, submitted float64) (float64, error) {
	if submitted != 0 || mechanicID == "" {
		return submitted, nil
	}
	mechanic, err := users.FindUserByID(ctx, mechanicID)
	if err == nil && mechanic.HourlyRate > 0 {
		return mechanic.HourlyRate, nil
	}
	return 0, domain.Validation("hourly_rate", "no rate submitted and no stored rate for the mechanic")
}
