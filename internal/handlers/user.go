package handlers

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/db"
	"github.com/ukydev/fleet-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// UserHandler exposes user administration: listing accounts (for picking
// mechanics and drivers) and removing them.
type UserHandler struct {
	users db.UserCollection
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users db.UserCollection) *UserHandler {
	return &UserHandler{users: users}
}

// Users lists accounts, optionally filtered by role.
func (h *UserHandler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireActor(w, r); !ok {
		return
	}

	filter := bson.M{}
	if role := r.URL.Query().Get("role"); role != "" {
		if !models.IsValidRole(models.Role(role)) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid role"})
			return
		}
		filter["role"] = models.Role(role)
	}

	users, err := h.users.FindUsers(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// User handles deletion of a single account. Admin only.
func (h *UserHandler) User(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if id == "" || id == actor.ID {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot delete this account"})
		return
	}
	if _, err := h.users.FindUserByID(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	log.WithFields(log.Fields{"user_id": id, "actor": actor.ID}).Info("user deleted")
	w.WriteHeader(http.StatusNoContent)
}
