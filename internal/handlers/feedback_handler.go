package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// FeedbackHandler serves the session side of the feedback lifecycle
type FeedbackHandler struct {
	feedbackService services.FeedbackServiceInterface
	logger          *observability.Logger
}

// NewFeedbackHandler creates a FeedbackHandler.
func NewFeedbackHandler(fs services.FeedbackServiceInterface, logger *observability.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: fs,
		logger:          logger,
	}
}

// feedbackCreateRequest is the body of POST /api/feedback
type feedbackCreateRequest struct {
	Content     string                   `json:"content"`
	Title       *string                  `json:"title"`
	Type        string                   `json:"type"`
	Priority    models.Priority          `json:"priority"`
	CategoryID  *int                     `json:"categoryId"`
	Contact     *string                  `json:"contact"`
	Attachments []models.AttachmentInput `json:"attachments"`
}

type feedbackUpdateRequest struct {
	Title      *string                `json:"title"`
	Content    *string                `json:"content"`
	Type       *string                `json:"type"`
	Priority   *models.Priority       `json:"priority"`
	CategoryID *int                   `json:"categoryId"`
	Status     *models.FeedbackStatus `json:"status"`
	Reply      *string                `json:"reply"`
}

type processingRequest struct {
	Action  string                 `json:"action"`
	Comment string                 `json:"comment"`
	Status  *models.FeedbackStatus `json:"status"`
}

// SubmitFeedback handles POST /api/feedback.
func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_feedback")
	defer observability.FinishSpan(span, nil)

	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req feedbackCreateRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	created, err := h.feedbackService.Submit(ctx, models.FeedbackSubmission{
		Origin:      models.UserOrigin(p.UserID),
		Title:       req.Title,
		Content:     req.Content,
		Type:        req.Type,
		Priority:    req.Priority,
		CategoryID:  req.CategoryID,
		Contact:     req.Contact,
		Attachments: req.Attachments,
	}, p.Actor())
	if err != nil {
		h.logger.Warn(ctx, "Feedback submission rejected", map[string]interface{}{
			"user_id":    p.UserID,
			"error_code": string(contextutils.GetErrorCode(err)),
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.String("feedback.no", created.FeedbackNo))
	respond(c, http.StatusCreated, created, "Feedback submitted")
}

// GetFeedback handles GET /api/feedback/:id.
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_feedback")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	feedback, err := h.feedbackService.Get(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, feedback, "")
}

// ListFeedback handles GET /api/feedback. Anonymous callers see every item;
// mine=true narrows the list to the caller's own and needs a session.
func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_feedback")
	defer observability.FinishSpan(span, nil)

	q, err := parseListQuery(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	filter := models.FeedbackFilter{
		Status:       models.FeedbackStatus(strings.ToUpper(c.Query("status"))),
		Priority:     models.Priority(strings.ToUpper(c.Query("priority"))),
		Type:         strings.TrimSpace(c.Query("type")),
		Keyword:      q.Keyword,
		StartDate:    q.StartDate,
		EndDate:      q.EndDate,
		EndExclusive: q.EndExclusive,
		SortBy:       q.SortBy,
		SortOrder:    q.SortOrder,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}
	if filter.CategoryID, err = queryInt(c, "categoryId"); err != nil {
		HandleAppError(c, err)
		return
	}
	if filter.UserID, err = queryInt(c, "userId"); err != nil {
		HandleAppError(c, err)
		return
	}

	if mine, _ := strconv.ParseBool(c.Query("mine")); mine {
		p, err := currentUser(c)
		if err != nil {
			HandleAppError(c, err)
			return
		}
		filter.UserID = &p.UserID
	}

	page, err := h.feedbackService.List(ctx, filter)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, page)
}

// GetStats handles GET /api/feedback/stats. Admins see global counts, other
// users the counts of their own items.
func (h *FeedbackHandler) GetStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "feedback_stats")
	defer observability.FinishSpan(span, nil)

	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var scope *int
	if !middleware.Can(p, models.ActionFeedbackManage) {
		scope = &p.UserID
	}
	stats, err := h.feedbackService.Stats(ctx, scope)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, stats, "")
}

// UpdateFeedback handles PUT /api/feedback/:id.
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_feedback")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req feedbackUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	updated, err := h.feedbackService.Update(ctx, id, models.FeedbackUpdate{
		Title:      req.Title,
		Content:    req.Content,
		Type:       req.Type,
		Priority:   req.Priority,
		CategoryID: req.CategoryID,
		Status:     req.Status,
		Reply:      req.Reply,
	}, actorFor(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, updated, "Feedback updated")
}

// DeleteFeedback handles DELETE /api/feedback/:id.
func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_feedback")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.feedbackService.Delete(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "Feedback deleted", map[string]interface{}{
		"feedback_id": id,
		"actor":       actorFor(c).Label,
	})
	respond(c, http.StatusOK, nil, "Feedback deleted")
}

// AddProcessing handles POST /api/feedback/:id/processing. Moving the status
// needs feedback:manage on top of feedback:comment.
func (h *FeedbackHandler) AddProcessing(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_processing")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req processingRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	p := middleware.GetPrincipal(c)
	if req.Status != nil && !middleware.Can(p, models.ActionFeedbackManage) {
		HandleAppError(c, contextutils.ErrForbidden.WithMessage("Changing the status requires %s", models.ActionFeedbackManage))
		return
	}

	entry, err := h.feedbackService.AddProcessingLog(ctx, id, models.ProcessingInput{
		Action:  req.Action,
		Comment: req.Comment,
		Status:  req.Status,
	}, p.Actor())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusCreated, entry, "Processing record added")
}

// ListProcessing handles GET /api/feedback/:id/processing, newest first.
func (h *FeedbackHandler) ListProcessing(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_processing")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	logs, err := h.feedbackService.ListLogs(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if logs == nil {
		logs = []models.FeedbackLog{}
	}
	respond(c, http.StatusOK, logs, "")
}
