package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// LocalStore writes blobs under a directory the HTTP server also serves
type LocalStore struct {
	root    string
	baseURL string
	logger  *observability.Logger
	now     func() time.Time
}

// NewLocalStore creates root if needed. baseURL is the public prefix the
// directory is served under, e.g. /uploads or https://cdn.example.com/uploads.
func NewLocalStore(root, baseURL string, logger *observability.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, contextutils.ErrorWithContextf("local upload directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to create upload directory %s", root)
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Name identifies the backend in logs
func (s *LocalStore) Name() string { return "local" }

// Root is the directory blobs are written to
func (s *LocalStore) Root() string { return s.root }

// Put writes obj to <root>/<yyyy>/<mm>/<uuid><ext>
func (s *LocalStore) Put(ctx context.Context, obj Object) (result0 *StoredObject, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "local_put",
		attribute.String("storage.content_type", obj.ContentType),
		attribute.Int64("storage.size", obj.Size))
	defer observability.FinishSpan(span, &err)

	key := path.Join(s.now().UTC().Format("2006/01"), uuid.NewString()+cleanExt(obj.FileName))
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err = os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, contextutils.WrapError(err, "failed to create upload directory")
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create upload file")
	}
	if _, err = io.Copy(f, obj.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return nil, contextutils.WrapError(err, "failed to write upload")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(dest)
		return nil, contextutils.WrapError(err, "failed to write upload")
	}

	s.logger.Debug(ctx, "Stored upload on disk", map[string]interface{}{
		"key":       key,
		"file_name": obj.FileName,
	})
	return &StoredObject{URL: s.baseURL + "/" + key, Key: key}, nil
}
