package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// FeedbackStatus is the processing state of a feedback item
type FeedbackStatus string

// Feedback statuses
const (
	StatusPending    FeedbackStatus = "PENDING"
	StatusProcessing FeedbackStatus = "PROCESSING"
	StatusSolved     FeedbackStatus = "SOLVED"
	StatusRejected   FeedbackStatus = "REJECTED"
)

// AllFeedbackStatuses lists every status in display order
var AllFeedbackStatuses = []FeedbackStatus{StatusPending, StatusProcessing, StatusSolved, StatusRejected}

// Valid reports whether s is one of the four statuses
func (s FeedbackStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSolved, StatusRejected:
		return true
	}
	return false
}

// Priority of a feedback item
type Priority string

// Priorities
const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// AllPriorities lists every priority from lowest to highest
var AllPriorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DefaultFeedbackType is used when a submission carries no type
const DefaultFeedbackType = "TEXT"

// OriginKind tells who created a feedback item
type OriginKind string

// Origin kinds
const (
	OriginUser     OriginKind = "user"
	OriginExternal OriginKind = "external"
)

// Origin is the single author of a feedback item: a user or an external system
type Origin struct {
	Kind OriginKind `json:"kind"`
	ID   int        `json:"id"`
}

// UserOrigin builds an origin for a feedback authored by a user
func UserOrigin(userID int) Origin {
	return Origin{Kind: OriginUser, ID: userID}
}

// ExternalOrigin builds an origin for a feedback submitted by an external system
func ExternalOrigin(systemID int) Origin {
	return Origin{Kind: OriginExternal, ID: systemID}
}

// Valid reports whether the origin names exactly one author
func (o Origin) Valid() bool {
	return (o.Kind == OriginUser || o.Kind == OriginExternal) && o.ID > 0
}

// Columns splits the origin into the user_id / external_system_id column pair
func (o Origin) Columns() (userID, systemID sql.NullInt64) {
	switch o.Kind {
	case OriginUser:
		userID = sql.NullInt64{Int64: int64(o.ID), Valid: true}
	case OriginExternal:
		systemID = sql.NullInt64{Int64: int64(o.ID), Valid: true}
	}
	return userID, systemID
}

// OriginFromColumns rebuilds an origin from the stored column pair
func OriginFromColumns(userID, systemID sql.NullInt64) Origin {
	if userID.Valid {
		return UserOrigin(int(userID.Int64))
	}
	if systemID.Valid {
		return ExternalOrigin(int(systemID.Int64))
	}
	return Origin{}
}

// Feedback is a feedback item with its optional detail relations
type Feedback struct {
	ID           int
	FeedbackNo   string
	Type         string
	Title        sql.NullString
	Content      string
	Priority     Priority
	Status       FeedbackStatus
	MediaTypes   string
	CategoryID   sql.NullInt64
	Contact      sql.NullString
	Reply        sql.NullString
	Origin       Origin
	ExternalID   sql.NullString
	ExternalData json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Populated on detail reads only
	Category    *Category
	Attachments []MediaFile
	Logs        []FeedbackLog
}

// MarshalJSON renders the item with the origin flattened into userId / externalSystemId
func (f Feedback) MarshalJSON() ([]byte, error) {
	userID, systemID := f.Origin.Columns()
	var data json.RawMessage
	if len(f.ExternalData) > 0 {
		data = f.ExternalData
	}
	return json.Marshal(&struct {
		ID               int             `json:"id"`
		FeedbackNo       string          `json:"feedbackNo"`
		Type             string          `json:"type"`
		Title            *string         `json:"title"`
		Content          string          `json:"content"`
		Priority         Priority        `json:"priority"`
		Status           FeedbackStatus  `json:"status"`
		MediaTypes       string          `json:"mediaTypes"`
		CategoryID       *int            `json:"categoryId"`
		Contact          *string         `json:"contact"`
		Reply            *string         `json:"reply"`
		Origin           Origin          `json:"origin"`
		UserID           *int            `json:"userId"`
		ExternalSystemID *int            `json:"externalSystemId"`
		ExternalID       *string         `json:"externalId"`
		ExternalData     json.RawMessage `json:"externalData,omitempty"`
		CreatedAt        time.Time       `json:"createdAt"`
		UpdatedAt        time.Time       `json:"updatedAt"`
		Category         *Category       `json:"category,omitempty"`
		Attachments      []MediaFile     `json:"attachments,omitempty"`
		Logs             []FeedbackLog   `json:"logs,omitempty"`
	}{
		ID:               f.ID,
		FeedbackNo:       f.FeedbackNo,
		Type:             f.Type,
		Title:            nullStringToPointer(f.Title),
		Content:          f.Content,
		Priority:         f.Priority,
		Status:           f.Status,
		MediaTypes:       f.MediaTypes,
		CategoryID:       nullInt64ToIntPointer(f.CategoryID),
		Contact:          nullStringToPointer(f.Contact),
		Reply:            nullStringToPointer(f.Reply),
		Origin:           f.Origin,
		UserID:           nullInt64ToIntPointer(userID),
		ExternalSystemID: nullInt64ToIntPointer(systemID),
		ExternalID:       nullStringToPointer(f.ExternalID),
		ExternalData:     data,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
		Category:         f.Category,
		Attachments:      f.Attachments,
		Logs:             f.Logs,
	})
}

// AttachmentInput describes one attachment supplied with a submission
type AttachmentInput struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileType string `json:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// FeedbackSubmission is the single input shape of the lifecycle's Submit
// operation, used by session users, external systems and the seed command
type FeedbackSubmission struct {
	Origin       Origin
	Title        *string
	Content      string
	Type         string
	Priority     Priority
	CategoryID   *int
	Contact      *string
	Attachments  []AttachmentInput
	ExternalID   *string
	ExternalData json.RawMessage
	// CreatedAt lets partners backdate items they collected offline
	CreatedAt *time.Time
}

// FeedbackUpdate is a partial admin update; nil fields are left untouched
type FeedbackUpdate struct {
	Title      *string
	Content    *string
	Type       *string
	Priority   *Priority
	CategoryID *int
	Status     *FeedbackStatus
	Reply      *string
}

// IsEmpty reports whether the update carries no field
func (u FeedbackUpdate) IsEmpty() bool {
	return u.Title == nil && u.Content == nil && u.Type == nil && u.Priority == nil &&
		u.CategoryID == nil && u.Status == nil && u.Reply == nil
}

// FeedbackFilter narrows feedback listings
type FeedbackFilter struct {
	Status     FeedbackStatus
	Priority   Priority
	Type       string
	CategoryID *int
	UserID     *int
	Keyword    string
	// StartDate is inclusive
	StartDate *time.Time
	// EndDate is inclusive unless EndExclusive is set
	EndDate      *time.Time
	EndExclusive bool
	SortBy       string
	SortOrder    string
	Page         int
	PageSize     int
}

// FeedbackStats summarizes feedback counts
type FeedbackStats struct {
	Total      int            `json:"total"`
	Today      int            `json:"today"`
	ByStatus   map[string]int `json:"byStatus"`
	ByPriority map[string]int `json:"byPriority"`
	ByType     map[string]int `json:"byType"`
}

// Actor identifies who performed a lifecycle operation
type Actor struct {
	UserID int
	// Label is written to feedback_logs.operator
	Label string
}

// UserActor builds an actor for a session user
func UserActor(userID int, username string) Actor {
	return Actor{UserID: userID, Label: username}
}

// SystemActor builds an actor for an external system or an internal job
func SystemActor(label string) Actor {
	return Actor{Label: label}
}

// ExternalStatusView is what partners see for one of their items
type ExternalStatusView struct {
	FeedbackNo  string         `json:"feedbackNo"`
	Status      FeedbackStatus `json:"status"`
	Priority    Priority       `json:"priority"`
	Reply       *string        `json:"reply"`
	MediaTypes  string         `json:"mediaTypes"`
	ExternalID  *string        `json:"externalId"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Attachments []MediaFile    `json:"attachments"`
	Logs        []FeedbackLog  `json:"logs"`
}

// BatchStatusItem is one entry of a batch-status answer
type BatchStatusItem struct {
	FeedbackNo string         `json:"feedbackNo"`
	Status     FeedbackStatus `json:"status"`
	Reply      *string        `json:"reply"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// BatchStatusResult splits requested codes into found and unknown
type BatchStatusResult struct {
	Items    []BatchStatusItem `json:"items"`
	NotFound []string          `json:"notFound"`
}
