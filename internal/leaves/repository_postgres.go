package leaves

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a leave request lookup matches no row.
var ErrNotFound = errors.New("leaves: request not found")

// PostgresRepository implements Repository over a shared leave_requests /
// leave_messages / leave_window_attempts / leave_reminder_log schema, using
// raw pgx the same way the rest of this module's query-heavy repositories
// do. GetForUpdate issues SELECT ... FOR UPDATE, serializing concurrent
// transitions on a single leave request as the concurrency model requires.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `
	id, tenant_id, teacher_id, teacher_name, teacher_email,
	leave_type, reason, leave_date, end_date, start_time, end_time,
	status, admin_comment, reviewed_by, reviewed_at, created_at, updated_at,
	attachment_required, attachment_status, attachment_path, attachment_original_name,
	attachment_uploaded_at, attachment_due_at, attachment_reminder_count,
	attachment_last_reminder_at, attachment_export_path, attachment_exported_at`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var leaveType, status, attachmentStatus string
	var endDate, reviewedAt, uploadedAt, dueAt, lastReminderAt, exportedAt *time.Time
	var startTime, endTime, adminComment, reviewedBy, attachmentPath, originalName, exportPath *string

	err := row.Scan(
		&r.ID, &r.TenantID, &r.TeacherID, &r.TeacherName, &r.TeacherEmail,
		&leaveType, &r.Reason, &r.LeaveDate, &endDate, &startTime, &endTime,
		&status, &adminComment, &reviewedBy, &reviewedAt, &r.CreatedAt, &r.UpdatedAt,
		&r.AttachmentRequired, &attachmentStatus, &attachmentPath, &originalName,
		&uploadedAt, &dueAt, &r.AttachmentReminderCount,
		&lastReminderAt, &exportPath, &exportedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}

	r.LeaveType = Type(leaveType)
	r.Status = Status(status)
	r.AttachmentStatus = AttachmentStatus(attachmentStatus)
	if endDate != nil {
		r.EndDate = *endDate
	}
	if startTime != nil {
		r.StartTime = *startTime
	}
	if endTime != nil {
		r.EndTime = *endTime
	}
	if adminComment != nil {
		r.AdminComment = *adminComment
	}
	if reviewedBy != nil {
		r.ReviewedBy = *reviewedBy
	}
	if reviewedAt != nil {
		r.ReviewedAt = *reviewedAt
	}
	if attachmentPath != nil {
		r.AttachmentPath = *attachmentPath
	}
	if originalName != nil {
		r.AttachmentOriginalName = *originalName
	}
	if uploadedAt != nil {
		r.AttachmentUploadedAt = *uploadedAt
	}
	if dueAt != nil {
		r.AttachmentDueAt = *dueAt
	}
	if lastReminderAt != nil {
		r.AttachmentLastReminderAt = *lastReminderAt
	}
	if exportPath != nil {
		r.AttachmentExportPath = *exportPath
	}
	if exportedAt != nil {
		r.AttachmentExportedAt = *exportedAt
	}
	return r, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PostgresRepository) Insert(ctx context.Context, req Request) error {
	const q = `
		INSERT INTO leave_requests (` + selectColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`
	_, err := r.pool.Exec(ctx, q,
		req.ID, req.TenantID, req.TeacherID, req.TeacherName, req.TeacherEmail,
		string(req.LeaveType), req.Reason, req.LeaveDate, nullableTime(req.EndDate),
		nullableString(req.StartTime), nullableString(req.EndTime),
		string(req.Status), nullableString(req.AdminComment), nullableString(req.ReviewedBy),
		nullableTime(req.ReviewedAt), req.CreatedAt, req.UpdatedAt,
		req.AttachmentRequired, string(req.AttachmentStatus), nullableString(req.AttachmentPath),
		nullableString(req.AttachmentOriginalName), nullableTime(req.AttachmentUploadedAt),
		nullableTime(req.AttachmentDueAt), req.AttachmentReminderCount,
		nullableTime(req.AttachmentLastReminderAt), nullableString(req.AttachmentExportPath),
		nullableTime(req.AttachmentExportedAt),
	)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (Request, error) {
	q := `SELECT ` + selectColumns + ` FROM leave_requests WHERE tenant_id = $1 AND id = $2`
	return scanRequest(r.pool.QueryRow(ctx, q, tenantID, id))
}

// GetForUpdate locks the row for the remainder of the caller's transaction.
// The pool connection must be checked out via a transaction for the lock to
// hold across the subsequent Update; callers that only read a snapshot use
// Get instead.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Request, error) {
	q := `SELECT ` + selectColumns + ` FROM leave_requests WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	return scanRequest(r.pool.QueryRow(ctx, q, tenantID, id))
}

func (r *PostgresRepository) Update(ctx context.Context, req Request) error {
	const q = `
		UPDATE leave_requests SET
			leave_type = $3, reason = $4, leave_date = $5, end_date = $6,
			start_time = $7, end_time = $8, status = $9, admin_comment = $10,
			reviewed_by = $11, reviewed_at = $12, updated_at = $13,
			attachment_required = $14, attachment_status = $15, attachment_path = $16,
			attachment_original_name = $17, attachment_uploaded_at = $18, attachment_due_at = $19,
			attachment_reminder_count = $20, attachment_last_reminder_at = $21,
			attachment_export_path = $22, attachment_exported_at = $23
		WHERE tenant_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, q,
		req.TenantID, req.ID,
		string(req.LeaveType), req.Reason, req.LeaveDate, nullableTime(req.EndDate),
		nullableString(req.StartTime), nullableString(req.EndTime),
		string(req.Status), nullableString(req.AdminComment), nullableString(req.ReviewedBy),
		nullableTime(req.ReviewedAt), req.UpdatedAt,
		req.AttachmentRequired, string(req.AttachmentStatus), nullableString(req.AttachmentPath),
		nullableString(req.AttachmentOriginalName), nullableTime(req.AttachmentUploadedAt),
		nullableTime(req.AttachmentDueAt), req.AttachmentReminderCount,
		nullableTime(req.AttachmentLastReminderAt), nullableString(req.AttachmentExportPath),
		nullableTime(req.AttachmentExportedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindPending(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time) (Request, bool, error) {
	q := `SELECT ` + selectColumns + ` FROM leave_requests
		WHERE tenant_id = $1 AND teacher_id = $2 AND leave_date = $3 AND status = 'pending'`
	req, err := scanRequest(r.pool.QueryRow(ctx, q, tenantID, teacherID, leaveDate))
	if errors.Is(err, ErrNotFound) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	return req, true, nil
}

func (r *PostgresRepository) ListPendingSickWithMissingAttachment(ctx context.Context, tenantID uuid.UUID) ([]Request, error) {
	q := `SELECT ` + selectColumns + ` FROM leave_requests
		WHERE tenant_id = $1 AND leave_type = 'sickleave' AND status = 'pending'
		  AND attachment_required = true AND attachment_status = 'missing'`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Request, error) {
	q := `SELECT ` + selectColumns + ` FROM leave_requests
		WHERE tenant_id = $1 AND leave_date <= $3 AND COALESCE(end_date, leave_date) >= $2
		ORDER BY leave_date, created_at`
	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertMessage(ctx context.Context, m Message) error {
	const q = `
		INSERT INTO leave_messages (id, leave_id, sender, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.LeaveID, m.Sender, m.Body, m.CreatedAt)
	return err
}

func (r *PostgresRepository) ListMessages(ctx context.Context, tenantID, leaveID uuid.UUID) ([]Message, error) {
	const q = `
		SELECT m.id, m.leave_id, m.sender, m.body, m.created_at
		FROM leave_messages m
		JOIN leave_requests lr ON lr.id = m.leave_id
		WHERE lr.tenant_id = $1 AND m.leave_id = $2
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, q, tenantID, leaveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.LeaveID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RecordWindowAttempt(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time, reasonPreview string) error {
	const q = `
		INSERT INTO leave_window_attempts (id, tenant_id, teacher_id, leave_date, attempted_at, reason_preview)
		VALUES ($1, $2, $3, $4, $5, $6)`
	preview := reasonPreview
	if len(preview) > 500 {
		preview = preview[:500]
	}
	_, err := r.pool.Exec(ctx, q, uuid.New(), tenantID, teacherID, leaveDate, time.Now().UTC(), preview)
	return err
}

func (r *PostgresRepository) RecordReminderEvent(ctx context.Context, tenantID, leaveID uuid.UUID, event string, occurredAt time.Time) error {
	const q = `
		INSERT INTO leave_reminder_log (id, tenant_id, leave_id, event, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, uuid.New(), tenantID, leaveID, event, occurredAt)
	return err
}
