package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/middleware"
)

// errorResponse is the JSON error body. ExistingID carries the competing
// entity on conflicts so clients can link to it.
type errorResponse struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_id,omitempty"`
	Available  int    `json:"available,omitempty"`
	Requested  int    `json:"requested,omitempty"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		forbidden    *domain.ForbiddenError
		conflict     *domain.ConflictError
		insufficient *domain.InsufficientStockError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error()})
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: forbidden.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: conflict.Detail, ExistingID: conflict.EntityID})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     insufficient.Error(),
			Available: insufficient.Available,
			Requested: insufficient.Requested,
		})
	default:
		log.WithError(err).Error("internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// requireActor resolves the authenticated actor or writes 401.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, found := middleware.ActorFromContext(r.Context())
	if !found {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return domain.Actor{}, false
	}
	return actor, true
}
