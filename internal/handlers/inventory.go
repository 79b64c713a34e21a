package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ukydev/fleet-ops/internal/ledger"
	"github.com/ukydev/fleet-ops/internal/models"
)

// InventoryHandler exposes the stock ledger over HTTP.
type InventoryHandler struct {
	store *ledger.Store
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(store *ledger.Store) *InventoryHandler {
	return &InventoryHandler{store: store}
}

// Items handles item registration and listing.
func (h *InventoryHandler) Items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.registerItem(w, r)
	case http.MethodGet:
		h.listItems(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *InventoryHandler) registerItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var item models.InventoryItem
	if err := json.Unmarshal(body, &item); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := h.store.RegisterItem(r.Context(), item, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *InventoryHandler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context(), r.URL.Query().Get("category"), r.URL.Query().Get("low") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Item handles a single item read, including derived stock status.
func (h *InventoryHandler) Item(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/inventory/")
	item, err := h.store.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*models.InventoryItem
		StockStatus string `json:"stock_status"`
	}{item, item.StockStatus()})
}

// AdjustStock handles a single stock movement.
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
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
		ItemID    string                   `json:"item_id"`
		Kind      models.StockMovementKind `json:"kind"`
		Quantity  int                      `json:"quantity"`
		Delta     int                      `json:"delta"`
		Reason    string                   `json:"reason"`
		VehicleID string                   `json:"vehicle_id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	item, err := h.store.AdjustStock(r.Context(), req.ItemID, req.Kind, req.Quantity, req.Delta, req.Reason, req.VehicleID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
