package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Category groups feedback; categories form a tree through ParentID
type Category struct {
	ID          int
	Name        string
	Description sql.NullString
	Color       sql.NullString
	IsActive    bool
	SortOrder   int
	ParentID    sql.NullInt64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Children is only populated by tree reads
	Children []*Category
}

// MarshalJSON renders nullable columns as JSON null
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID          int         `json:"id"`
		Name        string      `json:"name"`
		Description *string     `json:"description"`
		Color       *string     `json:"color"`
		IsActive    bool        `json:"isActive"`
		SortOrder   int         `json:"sortOrder"`
		ParentID    *int        `json:"parentId"`
		CreatedAt   time.Time   `json:"createdAt"`
		UpdatedAt   time.Time   `json:"updatedAt"`
		Children    []*Category `json:"children,omitempty"`
	}{
		ID:          c.ID,
		Name:        c.Name,
		Description: nullStringToPointer(c.Description),
		Color:       nullStringToPointer(c.Color),
		IsActive:    c.IsActive,
		SortOrder:   c.SortOrder,
		ParentID:    nullInt64ToIntPointer(c.ParentID),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Children:    c.Children,
	})
}

// CategoryInput is used for both create and partial update
type CategoryInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
	SortOrder   *int    `json:"sortOrder,omitempty"`
	// ParentID of 0 on update moves the node to the root
	ParentID *int `json:"parentId,omitempty"`
}

// CategoryFilter narrows category listings
type CategoryFilter struct {
	Keyword   string
	IsActive  *bool
	ParentID  *int
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}
