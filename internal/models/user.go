package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// UserRole is the coarse role stored on a user
type UserRole string

// User roles
const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserStatus is the account state of a user
type UserStatus string

// User statuses
const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusLocked   UserStatus = "LOCKED"
)

// Valid reports whether s is a known user status
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusLocked:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID           int
	Username     string
	Email        string
	PasswordHash string
	FirstName    sql.NullString
	LastName     sql.NullString
	PhoneNumber  sql.NullString
	Role         UserRole
	Status       UserStatus
	LastLoginAt  sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// MarshalJSON renders the sanitized user; the password hash is never serialized
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID          int        `json:"id"`
		Username    string     `json:"username"`
		Email       string     `json:"email"`
		FirstName   *string    `json:"firstName"`
		LastName    *string    `json:"lastName"`
		PhoneNumber *string    `json:"phoneNumber"`
		Role        UserRole   `json:"role"`
		Status      UserStatus `json:"status"`
		LastLoginAt *time.Time `json:"lastLoginAt"`
		CreatedAt   time.Time  `json:"createdAt"`
		UpdatedAt   time.Time  `json:"updatedAt"`
	}{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   nullStringToPointer(u.FirstName),
		LastName:    nullStringToPointer(u.LastName),
		PhoneNumber: nullStringToPointer(u.PhoneNumber),
		Role:        u.Role,
		Status:      u.Status,
		LastLoginAt: nullTimeToPointer(u.LastLoginAt),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	})
}

// UserRegistration carries the fields accepted at sign-up
type UserRegistration struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

// ProfileUpdate is a partial update of the caller's profile
type ProfileUpdate struct {
	Email       *string `json:"email,omitempty"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

// UserFilter narrows user listings
type UserFilter struct {
	Keyword   string
	Status    UserStatus
	Role      UserRole
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}
