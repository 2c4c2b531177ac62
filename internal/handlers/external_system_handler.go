package handlers

import (
	"net/http"
	"strings"
	"time"

	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// ExternalSystemHandler serves partner registration, key issuance and call
// log browsing for admins.
type ExternalSystemHandler struct {
	systemService  services.ExternalSystemServiceInterface
	callLogService services.APICallLogServiceInterface
	logger         *observability.Logger
}

// NewExternalSystemHandler creates an ExternalSystemHandler
func NewExternalSystemHandler(systems services.ExternalSystemServiceInterface, callLogs services.APICallLogServiceInterface, logger *observability.Logger) *ExternalSystemHandler {
	return &ExternalSystemHandler{
		systemService:  systems,
		callLogService: callLogs,
		logger:         logger,
	}
}

type systemStatusRequest struct {
	Status models.SystemStatus `json:"status"`
}

type issueKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// ListSystems handles GET /api/external-systems
func (h *ExternalSystemHandler) ListSystems(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_external_systems")
	defer observability.FinishSpan(span, nil)

	q, err := parseListQuery(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	page, err := h.systemService.ListSystems(ctx, models.ExternalSystemFilter{
		Keyword:  q.Keyword,
		Status:   models.SystemStatus(strings.ToUpper(c.Query("status"))),
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, page)
}

// CreateSystem handles POST /api/external-systems. The first raw key is part
// of this response and is never shown again.
func (h *ExternalSystemHandler) CreateSystem(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_external_system")
	defer observability.FinishSpan(span, nil)

	var req models.ExternalSystemInput
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	system, issued, err := h.systemService.CreateSystem(ctx, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "External system registered", map[string]interface{}{
		"system_id": system.ID,
		"name":      system.Name,
		"api_key":   contextutils.MaskAPIKey(issued.RawKey),
	})
	respond(c, http.StatusCreated, gin.H{
		"system": system,
		"apiKey": issued,
	}, "External system created; store the API key now, it will not be shown again")
}

// SetSystemStatus handles PUT /api/external-systems/:id/status
func (h *ExternalSystemHandler) SetSystemStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_external_system_status")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req systemStatusRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	system, err := h.systemService.SetSystemStatus(ctx, id, req.Status)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "External system status changed", map[string]interface{}{
		"system_id": id,
		"status":    string(req.Status),
	})
	respond(c, http.StatusOK, system, "External system updated")
}

// IssueKey handles POST /api/external-systems/:id/keys
func (h *ExternalSystemHandler) IssueKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "issue_api_key")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req issueKeyRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	issued, err := h.systemService.IssueKey(ctx, id, req.Name, req.ExpiresAt)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "API key issued", map[string]interface{}{
		"system_id":  id,
		"api_key_id": issued.Key.ID,
		"api_key":    contextutils.MaskAPIKey(issued.RawKey),
	})
	respond(c, http.StatusCreated, issued, "API key issued; store it now, it will not be shown again")
}

// DisableKey handles PUT /api/external-systems/:id/keys/:keyId/disable
func (h *ExternalSystemHandler) DisableKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "disable_api_key")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	keyID, err := pathID(c, "keyId")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.systemService.DisableKey(ctx, id, keyID); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "API key disabled", map[string]interface{}{"system_id": id, "api_key_id": keyID})
	respond(c, http.StatusOK, nil, "API key disabled")
}

// ListCallLogs handles GET /api/external-systems/:id/call-logs
func (h *ExternalSystemHandler) ListCallLogs(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_call_logs")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	q, err := parseListQuery(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	statusCode, err := queryInt(c, "statusCode")
	if err != nil {
		HandleAppError(c, err)
		return
	}

	// 404 for an unknown system rather than an empty page
	if _, err := h.systemService.GetSystem(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}

	page, err := h.callLogService.List(ctx, models.CallLogFilter{
		ExternalSystemID: id,
		StatusCode:       statusCode,
		StartDate:        q.StartDate,
		EndDate:          q.EndDate,
		EndExclusive:     q.EndExclusive,
		Page:             q.Page,
		PageSize:         q.PageSize,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, page)
}
