package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	"feedbackhub/internal/storage"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// multipartOverhead leaves room for boundaries and part headers
const multipartOverhead = 1 << 20

// UploadHandler stores attachment files for later submission
type UploadHandler struct {
	store  storage.BlobStore
	cfg    config.UploadConfig
	logger *observability.Logger
}

// NewUploadHandler creates an UploadHandler
func NewUploadHandler(store storage.BlobStore, cfg config.UploadConfig, logger *observability.Logger) *UploadHandler {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = config.DefaultMaxUploadSize
	}
	return &UploadHandler{store: store, cfg: cfg, logger: logger}
}

// sniffContentType trusts the part header unless it is missing or generic,
// then falls back to content sniffing.
func sniffContentType(header *multipart.FileHeader, file multipart.File) (string, error) {
	declared := strings.TrimSpace(strings.SplitN(header.Header.Get("Content-Type"), ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(declared), nil
	}

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return strings.SplitN(http.DetectContentType(buf[:n]), ";", 2)[0], nil
}

// Upload handles POST /api/upload with a multipart "file" field
func (h *UploadHandler) Upload(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload")
	defer observability.FinishSpan(span, nil)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxSize+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAppError(c, contextutils.ErrInvalidInput.WithMessage("File exceeds the %d byte limit", h.cfg.MaxSize))
			return
		}
		HandleAppError(c, contextutils.NewValidationError(contextutils.FieldError{Field: "file", Message: "is required"}))
		return
	}
	if header.Size > h.cfg.MaxSize {
		HandleAppError(c, contextutils.ErrInvalidInput.WithMessage("File exceeds the %d byte limit", h.cfg.MaxSize))
		return
	}

	file, err := header.Open()
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to open uploaded file"))
		return
	}
	defer func() { _ = file.Close() }()

	contentType, err := sniffContentType(header, file)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to read uploaded file"))
		return
	}
	if !h.cfg.IsTypeAllowed(contentType) {
		HandleAppError(c, contextutils.ErrInvalidInput.WithMessage("File type %s is not allowed", contentType))
		return
	}

	fileName := filepath.Base(header.Filename)
	span.SetAttributes(
		attribute.String("upload.content_type", contentType),
		attribute.Int64("upload.size", header.Size),
		attribute.String("upload.store", h.store.Name()),
	)

	stored, err := h.store.Put(ctx, storage.Object{
		FileName:    fileName,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.logger.Error(ctx, "Failed to store upload", err, map[string]interface{}{
			"file_name": fileName,
			"store":     h.store.Name(),
		})
		HandleAppError(c, err)
		return
	}

	respond(c, http.StatusCreated, models.UploadedFile{
		FileName:  fileName,
		FileURL:   stored.URL,
		FileType:  contentType,
		FileSize:  header.Size,
		MediaType: services.DetectMediaType(contentType, fileName, stored.URL),
	}, "File uploaded")
}
