package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/database"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// FeedbackServiceInterface is the single lifecycle contract shared by the
// session routes, the external partner routes and the admin CLI.
type FeedbackServiceInterface interface {
	Submit(ctx context.Context, sub models.FeedbackSubmission, actor models.Actor) (*models.Feedback, error)
	Get(ctx context.Context, id int) (*models.Feedback, error)
	List(ctx context.Context, filter models.FeedbackFilter) (*models.Page[models.Feedback], error)
	Stats(ctx context.Context, userID *int) (*models.FeedbackStats, error)
	Update(ctx context.Context, id int, upd models.FeedbackUpdate, actor models.Actor) (*models.Feedback, error)
	Delete(ctx context.Context, id int) error
	ChangeStatus(ctx context.Context, id int, to models.FeedbackStatus, comment string, actor models.Actor) (*models.FeedbackLog, error)
	AddProcessingLog(ctx context.Context, id int, input models.ProcessingInput, actor models.Actor) (*models.FeedbackLog, error)
	ListLogs(ctx context.Context, id int) ([]models.FeedbackLog, error)
	GetExternalStatus(ctx context.Context, systemID int, feedbackNo string) (*models.ExternalStatusView, error)
	BatchStatus(ctx context.Context, systemID int, feedbackNos []string) (*models.BatchStatusResult, error)
}

// FeedbackService implements FeedbackServiceInterface on PostgreSQL
type FeedbackService struct {
	db           *sql.DB
	logger       *observability.Logger
	metrics      *observability.Metrics
	notifier     StatusNotifier
	generateCode CodeGenerator
}

// NewFeedbackService creates a new FeedbackService instance. metrics and
// notifier may be nil.
func NewFeedbackService(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics, notifier StatusNotifier) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	return &FeedbackService{
		db:           db,
		logger:       logger,
		metrics:      metrics,
		notifier:     notifier,
		generateCode: GenerateTrackingCode,
	}
}

// WithCodeGenerator replaces the tracking code source
func (s *FeedbackService) WithCodeGenerator(gen CodeGenerator) *FeedbackService {
	s.generateCode = gen
	return s
}

const (
	feedbackSelectFields = `id, feedback_no, type, title, content, priority, status, media_types, category_id, contact, reply, user_id, external_system_id, external_id, external_data, created_at, updated_at`
	mediaSelectFields    = `id, feedback_id, file_name, file_url, file_type, file_size, media_type, created_at`
	logSelectFields      = `id, feedback_id, user_id, operator, action, content, from_status, to_status, created_at`

	maxFeedbackTypeLength = 20
	maxLogActionLength    = 50
	trackingSavepoint     = "feedback_no_draw"
)

var feedbackSortColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"priority":   "priority",
	"status":     "status",
	"type":       "type",
	"feedbackNo": "feedback_no",
	"id":         "id",
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	f := &models.Feedback{}
	var userID, systemID sql.NullInt64
	var externalData []byte
	if err := row.Scan(&f.ID, &f.FeedbackNo, &f.Type, &f.Title, &f.Content, &f.Priority, &f.Status,
		&f.MediaTypes, &f.CategoryID, &f.Contact, &f.Reply, &userID, &systemID, &f.ExternalID,
		&externalData, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.FeedbackNo = strings.TrimSpace(f.FeedbackNo)
	f.Origin = models.OriginFromColumns(userID, systemID)
	if len(externalData) > 0 {
		f.ExternalData = json.RawMessage(externalData)
	}
	return f, nil
}

func scanMedia(row rowScanner) (*models.MediaFile, error) {
	m := &models.MediaFile{}
	if err := row.Scan(&m.ID, &m.FeedbackID, &m.FileName, &m.FileURL, &m.FileType, &m.FileSize,
		&m.MediaType, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func scanLog(row rowScanner) (*models.FeedbackLog, error) {
	l := &models.FeedbackLog{}
	if err := row.Scan(&l.ID, &l.FeedbackID, &l.UserID, &l.Operator, &l.Action, &l.Content,
		&l.FromStatus, &l.ToStatus, &l.CreatedAt); err != nil {
		return nil, err
	}
	return l, nil
}

// normalizeSubmission applies defaults and collects every invalid field
func normalizeSubmission(sub *models.FeedbackSubmission) error {
	var fields []contextutils.FieldError

	if !sub.Origin.Valid() {
		return contextutils.ErrInvalidInput.WithMessage("Feedback must have exactly one origin")
	}

	sub.Content = strings.TrimSpace(sub.Content)
	if sub.Content == "" {
		fields = append(fields, contextutils.FieldError{Field: "content", Message: "is required"})
	}

	sub.Type = strings.TrimSpace(sub.Type)
	if sub.Type == "" {
		sub.Type = models.DefaultFeedbackType
	}
	if len(sub.Type) > maxFeedbackTypeLength {
		fields = append(fields, contextutils.FieldError{
			Field:   "type",
			Message: fmt.Sprintf("must be at most %d characters", maxFeedbackTypeLength),
		})
	}

	if sub.Priority == "" {
		sub.Priority = models.PriorityNormal
	}
	if !sub.Priority.Valid() {
		fields = append(fields, contextutils.FieldError{Field: "priority", Message: "must be one of LOW, NORMAL, HIGH, URGENT"})
	}

	if len(sub.Attachments) > config.MaxAttachments {
		fields = append(fields, contextutils.FieldError{
			Field:   "attachments",
			Message: fmt.Sprintf("must contain at most %d items", config.MaxAttachments),
		})
	}
	for i := range sub.Attachments {
		a := &sub.Attachments[i]
		a.FileName = strings.TrimSpace(a.FileName)
		if a.FileName == "" && a.FileURL != "" {
			a.FileName = path.Base(strings.SplitN(a.FileURL, "?", 2)[0])
		}
		if a.FileName == "" {
			fields = append(fields, contextutils.FieldError{
				Field:   fmt.Sprintf("attachments[%d].fileName", i),
				Message: "is required when no fileUrl is given",
			})
		}
	}

	if len(sub.ExternalData) > 0 && !json.Valid(sub.ExternalData) {
		fields = append(fields, contextutils.FieldError{Field: "externalData", Message: "must be valid JSON"})
	}

	if len(fields) > 0 {
		return contextutils.NewValidationError(fields...)
	}
	return nil
}

// Submit creates a PENDING feedback item together with its attachments and
// its CREATE log entry in one transaction.
func (s *FeedbackService) Submit(ctx context.Context, sub models.FeedbackSubmission, actor models.Actor) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "submit",
		attribute.String("feedback.origin", string(sub.Origin.Kind)))
	defer observability.FinishSpan(span, &err)

	if err = normalizeSubmission(&sub); err != nil {
		return nil, err
	}

	mediaTypes := make([]models.MediaType, len(sub.Attachments))
	for i, a := range sub.Attachments {
		mediaTypes[i] = DetectMediaType(a.FileType, a.FileName, a.FileURL)
	}

	userID, systemID := sub.Origin.Columns()
	fb := &models.Feedback{
		Type:       sub.Type,
		Title:      models.NullString(sub.Title),
		Content:    sub.Content,
		Priority:   sub.Priority,
		Status:     models.StatusPending,
		MediaTypes: AggregateMediaTypes(mediaTypes),
		CategoryID: models.NullInt(sub.CategoryID),
		Contact:    models.NullString(sub.Contact),
		Origin:     sub.Origin,
		ExternalID: models.NullString(sub.ExternalID),
	}
	var externalData sql.NullString
	if len(sub.ExternalData) > 0 {
		fb.ExternalData = sub.ExternalData
		externalData = sql.NullString{String: string(sub.ExternalData), Valid: true}
	}
	var createdAt sql.NullTime
	if sub.CreatedAt != nil {
		createdAt = sql.NullTime{Time: *sub.CreatedAt, Valid: true}
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for {
			code, err := nextTrackingCode(ctx, tx, s.generateCode)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+trackingSavepoint); err != nil {
				return contextutils.WrapError(err, "failed to create savepoint")
			}
			err = tx.QueryRowContext(ctx, `
				INSERT INTO feedback (feedback_no, type, title, content, priority, status, media_types, category_id,
					contact, user_id, external_system_id, external_id, external_data, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()), NOW())
				RETURNING id, created_at, updated_at`,
				code, fb.Type, fb.Title, fb.Content, fb.Priority, fb.Status, fb.MediaTypes, fb.CategoryID,
				fb.Contact, userID, systemID, fb.ExternalID, externalData, createdAt,
			).Scan(&fb.ID, &fb.CreatedAt, &fb.UpdatedAt)
			if database.IsUniqueViolation(err, feedbackNoConstraint) {
				// Another writer took the code between the check and the insert.
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+trackingSavepoint); rbErr != nil {
					return contextutils.WrapError(rbErr, "failed to roll back to savepoint")
				}
				s.logger.Warn(ctx, "Tracking code collision, drawing again", map[string]interface{}{"feedback_no": code})
				continue
			}
			if err != nil {
				if database.IsForeignKeyViolation(err) {
					return contextutils.ErrInvalidInput.WithMessage("Category not found")
				}
				return contextutils.WrapError(err, "failed to insert feedback")
			}
			fb.FeedbackNo = code
			break
		}

		fb.Attachments = make([]models.MediaFile, 0, len(sub.Attachments))
		for i, a := range sub.Attachments {
			m := models.MediaFile{
				FeedbackID: fb.ID,
				FileName:   a.FileName,
				FileURL:    models.NullIfEmpty(a.FileURL),
				FileType:   models.NullIfEmpty(a.FileType),
				MediaType:  mediaTypes[i],
			}
			if a.FileSize > 0 {
				m.FileSize = sql.NullInt64{Int64: a.FileSize, Valid: true}
			}
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO media_files (feedback_id, file_name, file_url, file_type, file_size, media_type)
				VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
				m.FeedbackID, m.FileName, m.FileURL, m.FileType, m.FileSize, m.MediaType,
			).Scan(&m.ID, &m.CreatedAt); err != nil {
				return contextutils.WrapError(err, "failed to insert attachment")
			}
			fb.Attachments = append(fb.Attachments, m)
		}

		created := models.StatusPending
		logEntry, err := insertLog(ctx, tx, fb.ID, actor, models.LogActionCreate, "Feedback created", nil, &created)
		if err != nil {
			return err
		}
		fb.Logs = []models.FeedbackLog{*logEntry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(observability.AttributeFeedbackID(fb.ID), observability.AttributeFeedbackNo(fb.FeedbackNo))
	s.metrics.RecordSubmission(ctx, string(fb.Origin.Kind))
	s.logger.Info(ctx, "Feedback submitted", map[string]interface{}{
		"feedback_id": fb.ID,
		"feedback_no": fb.FeedbackNo,
		"origin":      string(fb.Origin.Kind),
		"origin_id":   fb.Origin.ID,
		"media_types": fb.MediaTypes,
		"attachments": len(fb.Attachments),
	})
	return fb, nil
}

func insertLog(ctx context.Context, tx *sql.Tx, feedbackID int, actor models.Actor, action, content string, from, to *models.FeedbackStatus) (*models.FeedbackLog, error) {
	l := &models.FeedbackLog{
		FeedbackID: feedbackID,
		Operator:   actor.Label,
		Action:     action,
		Content:    models.NullIfEmpty(content),
	}
	if l.Operator == "" {
		l.Operator = "system"
	}
	if actor.UserID > 0 {
		l.UserID = sql.NullInt64{Int64: int64(actor.UserID), Valid: true}
	}
	if from != nil {
		l.FromStatus = sql.NullString{String: string(*from), Valid: true}
	}
	if to != nil {
		l.ToStatus = sql.NullString{String: string(*to), Valid: true}
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO feedback_logs (feedback_id, user_id, operator, action, content, from_status, to_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		l.FeedbackID, l.UserID, l.Operator, l.Action, l.Content, l.FromStatus, l.ToStatus,
	).Scan(&l.ID, &l.CreatedAt); err != nil {
		return nil, contextutils.WrapError(err, "failed to append feedback log")
	}
	return l, nil
}

// Get returns a feedback item with its category, attachments and logs
func (s *FeedbackService) Get(ctx context.Context, id int) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	fb, err := scanFeedback(s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM feedback WHERE id = $1", feedbackSelectFields), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrFeedbackNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get feedback")
	}

	if fb.CategoryID.Valid {
		cat, catErr := getCategory(ctx, s.db, int(fb.CategoryID.Int64))
		switch {
		case catErr == nil:
			fb.Category = cat
		case !contextutils.IsError(catErr, contextutils.ErrRecordNotFound):
			return nil, catErr
		}
	}

	if fb.Attachments, err = s.listMedia(ctx, fb.ID); err != nil {
		return nil, err
	}
	if fb.Logs, err = s.listLogs(ctx, fb.ID, 0); err != nil {
		return nil, err
	}
	return fb, nil
}

func (s *FeedbackService) listMedia(ctx context.Context, feedbackID int) ([]models.MediaFile, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM media_files WHERE feedback_id = $1 ORDER BY id ASC", mediaSelectFields), feedbackID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list attachments")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.MediaFile, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan attachment")
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list attachments")
	}
	return items, nil
}

// listLogs returns logs newest first; limit <= 0 means all
func (s *FeedbackService) listLogs(ctx context.Context, feedbackID, limit int) ([]models.FeedbackLog, error) {
	query := fmt.Sprintf("SELECT %s FROM feedback_logs WHERE feedback_id = $1 ORDER BY created_at DESC, id DESC", logSelectFields)
	args := []interface{}{feedbackID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list feedback logs")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.FeedbackLog, 0)
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan feedback log")
		}
		items = append(items, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list feedback logs")
	}
	return items, nil
}

func feedbackWhere(filter models.FeedbackFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Status != "" {
		w.add("status = " + w.arg(filter.Status))
	}
	if filter.Priority != "" {
		w.add("priority = " + w.arg(filter.Priority))
	}
	if filter.Type != "" {
		w.add("type = " + w.arg(filter.Type))
	}
	if filter.CategoryID != nil {
		w.add("category_id = " + w.arg(*filter.CategoryID))
	}
	if filter.UserID != nil {
		w.add("user_id = " + w.arg(*filter.UserID))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		p := w.arg(likePattern(kw))
		w.add(fmt.Sprintf("(title ILIKE %s OR content ILIKE %s OR feedback_no ILIKE %s)", p, p, p))
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
	return w
}

// List returns one page of feedback matching filter, ordered with id as the final tiebreaker
func (s *FeedbackService) List(ctx context.Context, filter models.FeedbackFilter) (result0 *models.Page[models.Feedback], err error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	ctx, span := observability.TraceFeedbackFunction(ctx, "list",
		observability.AttributePage(page), observability.AttributePageSize(size), observability.AttributeKeyword(filter.Keyword))
	defer observability.FinishSpan(span, &err)

	w := feedbackWhere(filter)

	var total int
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, contextutils.WrapError(err, "failed to count feedback")
	}

	pg := models.NewPagination(page, size, total)
	args := append(append([]interface{}{}, w.args...), size, pg.Offset())
	query := fmt.Sprintf("SELECT %s FROM feedback%s%s LIMIT $%d OFFSET $%d",
		feedbackSelectFields, w.clause(), orderClause(filter.SortBy, filter.SortOrder, feedbackSortColumns, ""),
		len(w.args)+1, len(w.args)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list feedback")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.Feedback, 0, size)
	for rows.Next() {
		fb, scanErr := scanFeedback(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan feedback")
		}
		items = append(items, *fb)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list feedback")
	}
	return &models.Page[models.Feedback]{Items: items, Pagination: pg}, nil
}

// Stats counts feedback by status, priority and type. A non-nil userID
// restricts the counts to that user's items.
func (s *FeedbackService) Stats(ctx context.Context, userID *int) (result0 *models.FeedbackStats, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "stats")
	defer observability.FinishSpan(span, &err)

	scope := func() *whereBuilder {
		w := &whereBuilder{}
		if userID != nil {
			w.add("user_id = " + w.arg(*userID))
		}
		return w
	}

	stats := &models.FeedbackStats{
		ByStatus:   make(map[string]int, len(models.AllFeedbackStatuses)),
		ByPriority: make(map[string]int, len(models.AllPriorities)),
		ByType:     make(map[string]int),
	}
	for _, st := range models.AllFeedbackStatuses {
		stats.ByStatus[string(st)] = 0
	}
	for _, p := range models.AllPriorities {
		stats.ByPriority[string(p)] = 0
	}

	w := scope()
	today := w.arg(contextutils.StartOfDayUTC(time.Now()))
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= %s) FROM feedback%s", today, w.clause())
	if err = s.db.QueryRowContext(ctx, query, w.args...).Scan(&stats.Total, &stats.Today); err != nil {
		return nil, contextutils.WrapError(err, "failed to count feedback")
	}

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"status", stats.ByStatus},
		{"priority", stats.ByPriority},
		{"type", stats.ByType},
	}
	for _, g := range groups {
		if err = s.countBy(ctx, g.column, scope(), g.into); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (s *FeedbackService) countBy(ctx context.Context, column string, w *whereBuilder, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM feedback%s GROUP BY %s", column, w.clause(), column), w.args...)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to count feedback by %s", column)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return contextutils.WrapErrorf(err, "failed to scan %s count", column)
		}
		into[key] = n
	}
	return rows.Err()
}

// lockedFeedback is the row state read under FOR UPDATE before a mutation
type lockedFeedback struct {
	status     models.FeedbackStatus
	feedbackNo string
	userID     sql.NullInt64
}

func lockFeedback(ctx context.Context, tx *sql.Tx, id int) (*lockedFeedback, error) {
	var lf lockedFeedback
	err := tx.QueryRowContext(ctx,
		`SELECT status, feedback_no, user_id FROM feedback WHERE id = $1 FOR UPDATE`, id,
	).Scan(&lf.status, &lf.feedbackNo, &lf.userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrFeedbackNotFound
		}
		return nil, contextutils.WrapError(err, "failed to lock feedback")
	}
	lf.feedbackNo = strings.TrimSpace(lf.feedbackNo)
	return &lf, nil
}

func validateUpdate(upd models.FeedbackUpdate) error {
	var fields []contextutils.FieldError
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		fields = append(fields, contextutils.FieldError{Field: "content", Message: "must not be empty"})
	}
	if upd.Type != nil && (strings.TrimSpace(*upd.Type) == "" || len(*upd.Type) > maxFeedbackTypeLength) {
		fields = append(fields, contextutils.FieldError{
			Field:   "type",
			Message: fmt.Sprintf("must be 1 to %d characters", maxFeedbackTypeLength),
		})
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		fields = append(fields, contextutils.FieldError{Field: "priority", Message: "must be one of LOW, NORMAL, HIGH, URGENT"})
	}
	if upd.Status != nil && !upd.Status.Valid() {
		fields = append(fields, contextutils.FieldError{Field: "status", Message: "must be one of PENDING, PROCESSING, SOLVED, REJECTED"})
	}
	if len(fields) > 0 {
		return contextutils.NewValidationError(fields...)
	}
	return nil
}

// Update applies a partial admin edit. A supplied status goes through the
// same locked transition as ChangeStatus and appends a STATUS_CHANGE log.
func (s *FeedbackService) Update(ctx context.Context, id int, upd models.FeedbackUpdate, actor models.Actor) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "update", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	if err = validateUpdate(upd); err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return s.Get(ctx, id)
	}

	var locked *lockedFeedback
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if locked, err = lockFeedback(ctx, tx, id); err != nil {
			return err
		}

		w := &whereBuilder{}
		var sets []string
		if upd.Title != nil {
			sets = append(sets, "title = "+w.arg(models.NullIfEmpty(*upd.Title)))
		}
		if upd.Content != nil {
			sets = append(sets, "content = "+w.arg(strings.TrimSpace(*upd.Content)))
		}
		if upd.Type != nil {
			sets = append(sets, "type = "+w.arg(strings.TrimSpace(*upd.Type)))
		}
		if upd.Priority != nil {
			sets = append(sets, "priority = "+w.arg(*upd.Priority))
		}
		if upd.CategoryID != nil {
			var cat sql.NullInt64
			if *upd.CategoryID > 0 {
				cat = models.NullInt(upd.CategoryID)
			}
			sets = append(sets, "category_id = "+w.arg(cat))
		}
		if upd.Status != nil {
			sets = append(sets, "status = "+w.arg(*upd.Status))
		}
		if upd.Reply != nil {
			sets = append(sets, "reply = "+w.arg(models.NullIfEmpty(*upd.Reply)))
		}

		query := fmt.Sprintf("UPDATE feedback SET %s, updated_at = NOW() WHERE id = %s",
			strings.Join(sets, ", "), w.arg(id))
		if _, err := tx.ExecContext(ctx, query, w.args...); err != nil {
			if database.IsForeignKeyViolation(err) {
				return contextutils.ErrInvalidInput.WithMessage("Category not found")
			}
			return contextutils.WrapError(err, "failed to update feedback")
		}

		if upd.Status != nil {
			from := locked.status
			if _, err := insertLog(ctx, tx, id, actor, models.LogActionStatusChange, "", &from, upd.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		s.afterStatusChange(ctx, id, locked, *upd.Status, "")
	}
	return s.Get(ctx, id)
}

// Delete removes a feedback item; attachments and logs cascade
func (s *FeedbackService) Delete(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "delete", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete feedback")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.ErrFeedbackNotFound
	}
	s.logger.Info(ctx, "Feedback deleted", map[string]interface{}{"feedback_id": id})
	return nil
}

// ChangeStatus moves a feedback item to another status and logs the transition.
// A transition to the current status is allowed and logged as well.
func (s *FeedbackService) ChangeStatus(ctx context.Context, id int, to models.FeedbackStatus, comment string, actor models.Actor) (*models.FeedbackLog, error) {
	return s.AddProcessingLog(ctx, id, models.ProcessingInput{
		Action:  models.LogActionStatusChange,
		Comment: comment,
		Status:  &to,
	}, actor)
}

// AddProcessingLog appends a processing record. A non-nil input.Status also
// moves the item to that status, and a REPLY stores the comment as the reply,
// all in one transaction.
func (s *FeedbackService) AddProcessingLog(ctx context.Context, id int, input models.ProcessingInput, actor models.Actor) (result0 *models.FeedbackLog, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "add_processing_log",
		observability.AttributeFeedbackID(id), attribute.String("feedback.action", input.Action))
	defer observability.FinishSpan(span, &err)

	action := strings.ToUpper(strings.TrimSpace(input.Action))
	var fields []contextutils.FieldError
	if action == "" {
		fields = append(fields, contextutils.FieldError{Field: "action", Message: "is required"})
	} else if len(action) > maxLogActionLength {
		fields = append(fields, contextutils.FieldError{
			Field:   "action",
			Message: fmt.Sprintf("must be at most %d characters", maxLogActionLength),
		})
	}
	if input.Status != nil && !input.Status.Valid() {
		fields = append(fields, contextutils.FieldError{Field: "status", Message: "must be one of PENDING, PROCESSING, SOLVED, REJECTED"})
	}
	if action == models.LogActionReply && strings.TrimSpace(input.Comment) == "" {
		fields = append(fields, contextutils.FieldError{Field: "comment", Message: "is required for a reply"})
	}
	if len(fields) > 0 {
		return nil, contextutils.NewValidationError(fields...)
	}

	var locked *lockedFeedback
	var entry *models.FeedbackLog
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if locked, err = lockFeedback(ctx, tx, id); err != nil {
			return err
		}

		w := &whereBuilder{}
		var sets []string
		if input.Status != nil {
			sets = append(sets, "status = "+w.arg(*input.Status))
		}
		if action == models.LogActionReply {
			sets = append(sets, "reply = "+w.arg(input.Comment))
		}
		if len(sets) > 0 {
			query := fmt.Sprintf("UPDATE feedback SET %s, updated_at = NOW() WHERE id = %s",
				strings.Join(sets, ", "), w.arg(id))
			if _, err := tx.ExecContext(ctx, query, w.args...); err != nil {
				return contextutils.WrapError(err, "failed to update feedback")
			}
		}

		var from *models.FeedbackStatus
		if input.Status != nil {
			from = &locked.status
		}
		entry, err = insertLog(ctx, tx, id, actor, action, input.Comment, from, input.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	if input.Status != nil {
		s.afterStatusChange(ctx, id, locked, *input.Status, input.Comment)
	}
	return entry, nil
}

func (s *FeedbackService) afterStatusChange(ctx context.Context, id int, locked *lockedFeedback, to models.FeedbackStatus, comment string) {
	s.metrics.RecordStatusChange(ctx, string(to))
	s.logger.Info(ctx, "Feedback status changed", map[string]interface{}{
		"feedback_id": id,
		"feedback_no": locked.feedbackNo,
		"from":        string(locked.status),
		"to":          string(to),
	})

	if s.notifier == nil || !locked.userID.Valid {
		return
	}
	notice := StatusChangeNotice{
		UserID:     int(locked.userID.Int64),
		FeedbackID: id,
		FeedbackNo: locked.feedbackNo,
		From:       locked.status,
		To:         to,
		Comment:    comment,
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.BackgroundTaskTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.NotifyStatusChange(bg, notice); err != nil {
			s.logger.Warn(bg, "Status change notification failed", map[string]interface{}{
				"feedback_id": id,
				"error":       err.Error(),
			})
		}
	}()
}

// ListLogs returns every processing log of a feedback item, newest first
func (s *FeedbackService) ListLogs(ctx context.Context, id int) (result0 []models.FeedbackLog, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_logs", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	var exists bool
	if err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM feedback WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, contextutils.WrapError(err, "failed to check feedback")
	}
	if !exists {
		return nil, contextutils.ErrFeedbackNotFound
	}
	return s.listLogs(ctx, id, 0)
}

// GetExternalStatus returns the partner view of an item submitted by systemID.
// Codes owned by other systems are reported as not found.
func (s *FeedbackService) GetExternalStatus(ctx context.Context, systemID int, feedbackNo string) (result0 *models.ExternalStatusView, err error) {
	code := strings.ToUpper(strings.TrimSpace(feedbackNo))
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_external_status",
		observability.AttributeSystemID(systemID), observability.AttributeFeedbackNo(code))
	defer observability.FinishSpan(span, &err)

	if !IsTrackingCode(code) {
		return nil, contextutils.ErrFeedbackNotFound
	}

	fb, err := scanFeedback(s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM feedback WHERE feedback_no = $1 AND external_system_id = $2", feedbackSelectFields),
		code, systemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrFeedbackNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get feedback status")
	}

	view := &models.ExternalStatusView{
		FeedbackNo: fb.FeedbackNo,
		Status:     fb.Status,
		Priority:   fb.Priority,
		MediaTypes: fb.MediaTypes,
		CreatedAt:  fb.CreatedAt,
		UpdatedAt:  fb.UpdatedAt,
	}
	if fb.Reply.Valid {
		view.Reply = &fb.Reply.String
	}
	if fb.ExternalID.Valid {
		view.ExternalID = &fb.ExternalID.String
	}
	if view.Attachments, err = s.listMedia(ctx, fb.ID); err != nil {
		return nil, err
	}
	if view.Logs, err = s.listLogs(ctx, fb.ID, config.ExternalStatusLogSize); err != nil {
		return nil, err
	}
	return view, nil
}

// BatchStatus looks up many codes of one system at once. The size cap is
// enforced before any query runs; duplicate codes are answered once.
func (s *FeedbackService) BatchStatus(ctx context.Context, systemID int, feedbackNos []string) (result0 *models.BatchStatusResult, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "batch_status",
		observability.AttributeSystemID(systemID), attribute.Int("batch.size", len(feedbackNos)))
	defer observability.FinishSpan(span, &err)

	if len(feedbackNos) > config.MaxBatchStatusItems {
		return nil, contextutils.ErrBatchSizeExceeded.WithMessage(
			"At most %d feedback numbers may be queried at once, got %d", config.MaxBatchStatusItems, len(feedbackNos))
	}

	seen := make(map[string]bool, len(feedbackNos))
	codes := make([]string, 0, len(feedbackNos))
	for _, raw := range feedbackNos {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	result := &models.BatchStatusResult{Items: []models.BatchStatusItem{}, NotFound: []string{}}
	if len(codes) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT feedback_no, status, reply, updated_at FROM feedback
		WHERE external_system_id = $1 AND feedback_no = ANY($2)`,
		systemID, pq.Array(codes))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query batch status")
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]models.BatchStatusItem, len(codes))
	for rows.Next() {
		var item models.BatchStatusItem
		var reply sql.NullString
		if err = rows.Scan(&item.FeedbackNo, &item.Status, &reply, &item.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan batch status")
		}
		item.FeedbackNo = strings.TrimSpace(item.FeedbackNo)
		if reply.Valid {
			r := reply.String
			item.Reply = &r
		}
		found[item.FeedbackNo] = item
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to query batch status")
	}

	for _, code := range codes {
		if item, ok := found[code]; ok {
			result.Items = append(result.Items, item)
		} else {
			result.NotFound = append(result.NotFound, code)
		}
	}
	return result, nil
}
