package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ExternalHandler serves the partner API. Every route runs behind
// RequireAPIKey, so the principal is always an external system.
type ExternalHandler struct {
	feedbackService services.FeedbackServiceInterface
	logger          *observability.Logger
}

// NewExternalHandler creates an ExternalHandler
func NewExternalHandler(fs services.FeedbackServiceInterface, logger *observability.Logger) *ExternalHandler {
	return &ExternalHandler{feedbackService: fs, logger: logger}
}

type externalSubmitRequest struct {
	Content      string                   `json:"content"`
	Title        *string                  `json:"title"`
	Type         string                   `json:"type"`
	Priority     models.Priority          `json:"priority"`
	Contact      *string                  `json:"contact"`
	Attachments  []models.AttachmentInput `json:"attachments"`
	ExternalID   *string                  `json:"externalId"`
	ExternalData json.RawMessage          `json:"externalData"`
	CreatedAt    *time.Time               `json:"createdAt"`
}

type batchStatusRequest struct {
	FeedbackNos []string `json:"feedbackNos"`
}

// externalSubmitResponse is the acknowledgement returned to partners
type externalSubmitResponse struct {
	ID         int                   `json:"id"`
	FeedbackNo string                `json:"feedbackNo"`
	Status     models.FeedbackStatus `json:"status"`
	MediaTypes string                `json:"mediaTypes"`
	CreatedAt  time.Time             `json:"createdAt"`
	ExternalID *string               `json:"externalId"`
}

func externalPrincipal(c *gin.Context) (*models.Principal, error) {
	p := middleware.GetPrincipal(c)
	if !p.IsExternal() {
		return nil, contextutils.ErrMissingAPIKey
	}
	return p, nil
}

// Submit handles POST /api/external/feedback/submit
func (h *ExternalHandler) Submit(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "external_submit")
	defer observability.FinishSpan(span, nil)

	p, err := externalPrincipal(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req externalSubmitRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	data := req.ExternalData
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = nil
	}

	created, err := h.feedbackService.Submit(ctx, models.FeedbackSubmission{
		Origin:       models.ExternalOrigin(p.SystemID),
		Title:        req.Title,
		Content:      req.Content,
		Type:         req.Type,
		Priority:     req.Priority,
		Contact:      req.Contact,
		Attachments:  req.Attachments,
		ExternalID:   req.ExternalID,
		ExternalData: data,
		CreatedAt:    req.CreatedAt,
	}, p.Actor())
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("feedback.no", created.FeedbackNo),
		attribute.Int("external.system_id", p.SystemID),
	)
	h.logger.Info(ctx, "External feedback submitted", map[string]interface{}{
		"system_id":   p.SystemID,
		"feedback_no": created.FeedbackNo,
	})

	resp := externalSubmitResponse{
		ID:         created.ID,
		FeedbackNo: created.FeedbackNo,
		Status:     created.Status,
		MediaTypes: created.MediaTypes,
		CreatedAt:  created.CreatedAt,
	}
	if created.ExternalID.Valid {
		resp.ExternalID = &created.ExternalID.String
	}
	respond(c, http.StatusCreated, resp, "Feedback submitted")
}

// GetStatus handles GET /api/external/feedback/status/:feedbackNo. Only the
// caller's own items are visible.
func (h *ExternalHandler) GetStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "external_status")
	defer observability.FinishSpan(span, nil)

	p, err := externalPrincipal(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	feedbackNo := strings.ToUpper(strings.TrimSpace(c.Param("feedbackNo")))
	view, err := h.feedbackService.GetExternalStatus(ctx, p.SystemID, feedbackNo)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, view, "")
}

// BatchStatus handles POST /api/external/feedback/batch-status. An oversized
// batch is refused before the store is touched.
func (h *ExternalHandler) BatchStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "external_batch_status")
	defer observability.FinishSpan(span, nil)

	p, err := externalPrincipal(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req batchStatusRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("batch.size", len(req.FeedbackNos)))
	if len(req.FeedbackNos) > config.MaxBatchStatusItems {
		HandleAppError(c, contextutils.ErrBatchSizeExceeded.WithMessage(
			"At most %d feedback numbers may be queried at once, got %d", config.MaxBatchStatusItems, len(req.FeedbackNos)))
		return
	}

	result, err := h.feedbackService.BatchStatus(ctx, p.SystemID, req.FeedbackNos)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, result, "")
}
