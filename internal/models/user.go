package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role determines which operations an account may perform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleMechanic Role = "mechanic"
	RoleDriver   Role = "driver"
)

// User is a fleet staff account. HourlyRate is only meaningful for
// mechanics, where it seeds the default labor rate on work orders.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	HourlyRate   float64            `bson:"hourly_rate,omitempty" json:"hourly_rate,omitempty"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Role       Role    `json:"role"`
	HourlyRate float64 `json:"hourly_rate,omitempty"`
}

// LoginResponse carries both tokens plus the account so clients avoid a
// follow-up profile fetch.
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims is the authenticated identity handlers read from the request
// context after token validation.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole rejects role strings outside the known set.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleMechanic, RoleDriver:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve or reject requests.
func (r Role) CanApprove() bool {
	return r == RoleAdmin || r == RoleManager
}

// roleActions lists what the two restricted roles may do. Admins pass every
// check and managers are barred only from user administration, so neither
// needs a table entry.
var roleActions = map[Role]map[string]bool{
	RoleMechanic: {
		"view_vehicles":     true,
		"view_work_orders":  true,
		"update_work_order": true,
		"view_inventory":    true,
	},
	RoleDriver: {
		"view_vehicles":  true,
		"create_log":     true,
		"update_log":     true,
		"create_request": true,
	},
}

// HasPermission reports whether the user's role allows the named action.
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != "delete_user" && action != "manage_users"
	}
	return roleActions[u.Role][action]
}
