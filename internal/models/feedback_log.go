package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Processing log actions
const (
	LogActionCreate       = "CREATE"
	LogActionStatusChange = "STATUS_CHANGE"
	LogActionReply        = "REPLY"
	LogActionComment      = "COMMENT"
	LogActionUpdate       = "UPDATE"
)

// FeedbackLog is one append-only processing record of a feedback item
type FeedbackLog struct {
	ID         int
	FeedbackID int
	UserID     sql.NullInt64
	Operator   string
	Action     string
	Content    sql.NullString
	FromStatus sql.NullString
	ToStatus   sql.NullString
	CreatedAt  time.Time
}

// MarshalJSON renders nullable columns as JSON null
func (l FeedbackLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID         int       `json:"id"`
		FeedbackID int       `json:"feedbackId"`
		UserID     *int      `json:"userId"`
		Operator   string    `json:"operator"`
		Action     string    `json:"action"`
		Content    *string   `json:"content"`
		FromStatus *string   `json:"fromStatus"`
		ToStatus   *string   `json:"toStatus"`
		CreatedAt  time.Time `json:"createdAt"`
	}{
		ID:         l.ID,
		FeedbackID: l.FeedbackID,
		UserID:     nullInt64ToIntPointer(l.UserID),
		Operator:   l.Operator,
		Action:     l.Action,
		Content:    nullStringToPointer(l.Content),
		FromStatus: nullStringToPointer(l.FromStatus),
		ToStatus:   nullStringToPointer(l.ToStatus),
		CreatedAt:  l.CreatedAt,
	})
}

// ProcessingInput is an action recorded against a feedback item. A non-nil
// Status changes the item's status in the same transaction.
type ProcessingInput struct {
	Action  string
	Comment string
	Status  *FeedbackStatus
}
