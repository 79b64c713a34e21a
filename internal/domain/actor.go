package domain

import "github.com/ukydev/fleet-ops/internal/models"

// Actor is the authenticated identity every engine operation runs as.
// The engine trusts it; issuing and validating credentials happens upstream.
type Actor struct {
	ID   string
	Role models.Role
}

// CanApprove reports whether the actor may approve or reject requests.
func (a Actor) CanApprove() bool {
	return a.Role.CanApprove()
}

// IsMechanic reports whether the actor is a mechanic.
func (a Actor) IsMechanic() bool {
	return a.Role == models.RoleMechanic
}
