package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ukydev/fleet-ops/internal/models"
	"github.com/ukydev/fleet-ops/internal/workflow"
)

// RequestHandler exposes the approval workflows over HTTP.
type RequestHandler struct {
	engine *workflow.Engine
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(engine *workflow.Engine) *RequestHandler {
	return &RequestHandler{engine: engine}
}

// Requests handles request creation and listing.
func (h *RequestHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RequestHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req models.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := h.engine.Create(r.Context(), req, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) list(w http.ResponseWriter, r *http.Request) {
	requests, err := h.engine.List(r.Context(),
		models.RequestKind(r.URL.Query().Get("kind")),
		r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// Request handles reads and pending edits of a single request.
func (h *RequestHandler) Request(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/requests/")

	switch r.Method {
	case http.MethodGet:
		req, err := h.engine.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case http.MethodPut:
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		var updated models.Request
		if err := json.Unmarshal(body, &updated); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		req, err := h.engine.UpdatePending(r.Context(), id, updated, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Transition moves a request to a new status.
func (h *RequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/requests/"), "/transition")
	id = strings.TrimSuffix(id, "/")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updated, err := h.engine.Transition(r.Context(), id, req.Status, req.Note, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
