// Package storage holds the blob stores uploaded attachments are written to.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"feedbackhub/internal/config"
	"feedbackhub/internal/observability"
)

// Object describes one blob to store
type Object struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StoredObject is where an object ended up
type StoredObject struct {
	URL string
	Key string
}

// BlobStore persists uploaded files and returns a URL they can be fetched from
type BlobStore interface {
	Put(ctx context.Context, obj Object) (*StoredObject, error)
	Name() string
}

// New picks the cloudinary store when cloudinary.url is configured and the
// local disk store otherwise.
func New(cfg *config.Config, logger *observability.Logger) (BlobStore, error) {
	if cfg.Cloudinary.URL != "" {
		return NewCloudinaryStore(cfg.Cloudinary, logger)
	}
	return NewLocalStore(cfg.Upload.LocalDir, cfg.Upload.PublicBaseURL, logger)
}

// cleanExt returns the lower-cased extension of name, or "" when it carries
// characters that should not reach a storage key.
func cleanExt(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
