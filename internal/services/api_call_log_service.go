package services

import (
	"context"
	"database/sql"
	"fmt"

	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// APICallLogServiceInterface records and lists external API calls
type APICallLogServiceInterface interface {
	Record(ctx context.Context, entry *models.APICallLog) error
	List(ctx context.Context, filter models.CallLogFilter) (*models.Page[models.APICallLog], error)
}

// APICallLogService implements APICallLogServiceInterface
type APICallLogService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAPICallLogService creates a new APICallLogService instance
func NewAPICallLogService(db *sql.DB, logger *observability.Logger) *APICallLogService {
	return &APICallLogService{db: db, logger: logger}
}

const callLogSelectFields = `id, external_system_id, api_key_id, api_path, method, status_code, request_id, response_time_ms, ip, user_agent, error_code, created_at`

// Record appends one call log row and fills in its id and timestamp
func (s *APICallLogService) Record(ctx context.Context, entry *models.APICallLog) (err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "record_call",
		attribute.String("http.route", entry.APIPath), attribute.Int("http.status_code", entry.StatusCode))
	defer observability.FinishSpan(span, &err)

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_call_logs (external_system_id, api_key_id, api_path, method, status_code, request_id,
			response_time_ms, ip, user_agent, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`,
		entry.ExternalSystemID, entry.APIKeyID, entry.APIPath, entry.Method, entry.StatusCode, entry.RequestID,
		entry.ResponseTimeMs, entry.IP, entry.UserAgent, entry.ErrorCode,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to record api call")
	}
	return nil
}

// List returns one page of a system's call logs, newest first
func (s *APICallLogService) List(ctx context.Context, filter models.CallLogFilter) (result0 *models.Page[models.APICallLog], err error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	ctx, span := observability.TraceExternalFunction(ctx, "list_calls",
		observability.AttributeSystemID(filter.ExternalSystemID), observability.AttributePage(page))
	defer observability.FinishSpan(span, &err)

	w := &whereBuilder{}
	w.add("external_system_id = " + w.arg(filter.ExternalSystemID))
	if filter.StatusCode != nil {
		w.add("status_code = " + w.arg(*filter.StatusCode))
	}
	if filter.StartDate != nil {
		w.add("created_at >= " + w.arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		op := "<="
		if filter.EndExclusive {
			op = "<"
		}
		w.add(fmt.Sprintf("created_at %s %s", op, w.arg(*filter.EndDate)))
	}

	var total int
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_call_logs"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, contextutils.WrapError(err, "failed to count api calls")
	}

	pg := models.NewPagination(page, size, total)
	args := append(append([]interface{}{}, w.args...), size, pg.Offset())
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM api_call_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		callLogSelectFields, w.clause(), len(w.args)+1, len(w.args)+2), args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list api calls")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.APICallLog, 0, size)
	for rows.Next() {
		var l models.APICallLog
		if err = rows.Scan(&l.ID, &l.ExternalSystemID, &l.APIKeyID, &l.APIPath, &l.Method, &l.StatusCode,
			&l.RequestID, &l.ResponseTimeMs, &l.IP, &l.UserAgent, &l.ErrorCode, &l.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan api call")
		}
		items = append(items, l)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list api calls")
	}
	return &models.Page[models.APICallLog]{Items: items, Pagination: pg}, nil
}
