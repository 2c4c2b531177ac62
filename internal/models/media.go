package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// MediaType is the coarse classification of an attachment
type MediaType string

// Media types in canonical order
const (
	MediaText  MediaType = "TEXT"
	MediaImage MediaType = "IMAGE"
	MediaVideo MediaType = "VIDEO"
	MediaVoice MediaType = "VOICE"
	MediaLink  MediaType = "LINK"
)

// CanonicalMediaOrder is the order used when serializing a media-type set
var CanonicalMediaOrder = []MediaType{MediaText, MediaImage, MediaVideo, MediaVoice, MediaLink}

// MediaFile is an attachment owned by one feedback item
type MediaFile struct {
	ID         int
	FeedbackID int
	FileName   string
	FileURL    sql.NullString
	FileType   sql.NullString
	FileSize   sql.NullInt64
	MediaType  MediaType
	CreatedAt  time.Time
}

// MarshalJSON renders nullable columns as JSON null
func (m MediaFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID         int       `json:"id"`
		FeedbackID int       `json:"feedbackId"`
		FileName   string    `json:"fileName"`
		FileURL    *string   `json:"fileUrl"`
		FileType   *string   `json:"fileType"`
		FileSize   *int64    `json:"fileSize"`
		MediaType  MediaType `json:"mediaType"`
		CreatedAt  time.Time `json:"createdAt"`
	}{
		ID:         m.ID,
		FeedbackID: m.FeedbackID,
		FileName:   m.FileName,
		FileURL:    nullStringToPointer(m.FileURL),
		FileType:   nullStringToPointer(m.FileType),
		FileSize:   nullInt64ToPointer(m.FileSize),
		MediaType:  m.MediaType,
		CreatedAt:  m.CreatedAt,
	})
}

// UploadedFile is returned by the upload endpoint
type UploadedFile struct {
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	MediaType MediaType `json:"mediaType"`
}
