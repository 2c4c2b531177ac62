package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Permissions an external system may hold
const (
	PermissionFeedbackSubmit = "feedback:submit"
	PermissionFeedbackQuery  = "feedback:query"
)

// KnownExternalPermissions lists the permissions accepted on registration
var KnownExternalPermissions = []string{PermissionFeedbackSubmit, PermissionFeedbackQuery}

// IsKnownExternalPermission reports whether p can be granted to an external system
func IsKnownExternalPermission(p string) bool {
	for _, known := range KnownExternalPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// SystemStatus is the state of an external system or API key
type SystemStatus string

// System and key statuses
const (
	SystemActive   SystemStatus = "ACTIVE"
	SystemDisabled SystemStatus = "DISABLED"
)

// Valid reports whether s is a known status
func (s SystemStatus) Valid() bool {
	return s == SystemActive || s == SystemDisabled
}

// ExternalSystem is a registered partner integration
type ExternalSystem struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Permissions []string     `json:"permissions"`
	RateLimit   int          `json:"rateLimit"` // requests per minute, 0 = unlimited
	Status      SystemStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// HasPermission reports whether the system holds p
func (s *ExternalSystem) HasPermission(p string) bool {
	for _, held := range s.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// ExternalSystemInput registers a new external system
type ExternalSystemInput struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	RateLimit   *int     `json:"rateLimit,omitempty"`
}

// APIKey is the stored form of a partner key; the raw key is never persisted
type APIKey struct {
	ID               int
	ExternalSystemID int
	Name             string
	KeyHash          string
	KeyPrefix        string
	Status           SystemStatus
	LastUsedAt       sql.NullTime
	ExpiresAt        sql.NullTime
	CreatedAt        time.Time
}

// IsExpired reports whether the key has an expiry at or before now
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt.Valid && !now.Before(k.ExpiresAt.Time)
}

// MarshalJSON omits the hash and renders nullable columns as JSON null
func (k APIKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID               int          `json:"id"`
		ExternalSystemID int          `json:"externalSystemId"`
		Name             string       `json:"name"`
		KeyPrefix        string       `json:"keyPrefix"`
		Status           SystemStatus `json:"status"`
		LastUsedAt       *time.Time   `json:"lastUsedAt"`
		ExpiresAt        *time.Time   `json:"expiresAt"`
		CreatedAt        time.Time    `json:"createdAt"`
	}{
		ID:               k.ID,
		ExternalSystemID: k.ExternalSystemID,
		Name:             k.Name,
		KeyPrefix:        k.KeyPrefix,
		Status:           k.Status,
		LastUsedAt:       nullTimeToPointer(k.LastUsedAt),
		ExpiresAt:        nullTimeToPointer(k.ExpiresAt),
		CreatedAt:        k.CreatedAt,
	})
}

// IssuedAPIKey pairs a stored key with its raw value, returned exactly once
type IssuedAPIKey struct {
	Key    APIKey `json:"key"`
	RawKey string `json:"rawKey"`
}

// ResolvedAPIKey is the result of a successful key lookup
type ResolvedAPIKey struct {
	Key    APIKey
	System ExternalSystem
}

// APICallLog is one external API call record
type APICallLog struct {
	ID               int64
	ExternalSystemID sql.NullInt64
	APIKeyID         sql.NullInt64
	APIPath          string
	Method           string
	StatusCode       int
	RequestID        string
	ResponseTimeMs   int
	IP               sql.NullString
	UserAgent        sql.NullString
	ErrorCode        sql.NullString
	CreatedAt        time.Time
}

// MarshalJSON renders nullable columns as JSON null
func (l APICallLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID               int64     `json:"id"`
		ExternalSystemID *int      `json:"externalSystemId"`
		APIKeyID         *int      `json:"apiKeyId"`
		APIPath          string    `json:"apiPath"`
		Method           string    `json:"method"`
		StatusCode       int       `json:"statusCode"`
		RequestID        string    `json:"requestId"`
		ResponseTimeMs   int       `json:"responseTimeMs"`
		IP               *string   `json:"ip"`
		UserAgent        *string   `json:"userAgent"`
		ErrorCode        *string   `json:"errorCode"`
		CreatedAt        time.Time `json:"createdAt"`
	}{
		ID:               l.ID,
		ExternalSystemID: nullInt64ToIntPointer(l.ExternalSystemID),
		APIKeyID:         nullInt64ToIntPointer(l.APIKeyID),
		APIPath:          l.APIPath,
		Method:           l.Method,
		StatusCode:       l.StatusCode,
		RequestID:        l.RequestID,
		ResponseTimeMs:   l.ResponseTimeMs,
		IP:               nullStringToPointer(l.IP),
		UserAgent:        nullStringToPointer(l.UserAgent),
		ErrorCode:        nullStringToPointer(l.ErrorCode),
		CreatedAt:        l.CreatedAt,
	})
}

// CallLogFilter narrows call-log listings
type CallLogFilter struct {
	ExternalSystemID int
	StatusCode       *int
	StartDate        *time.Time
	EndDate          *time.Time
	EndExclusive     bool
	Page             int
	PageSize         int
}

// ExternalSystemFilter narrows external-system listings
type ExternalSystemFilter struct {
	Keyword  string
	Status   SystemStatus
	Page     int
	PageSize int
}
