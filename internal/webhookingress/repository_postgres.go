package webhookingress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository over a received_leave_webhooks
// table (one row per request_id, upserted on re-delivery) and a
// webhook_forward_log table (one row per downstream POST attempt), the
// latter being §3's supplemented WebhookForwardLog entity.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const recordColumns = `
	id, tenant_id, request_id, teacher_name, teacher_email, leave_type,
	leave_start, leave_end, status, reason, admin_comment, submitted_at, recorded_at,
	forward_status, forwarded_at, forward_detail, raw_payload`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var status string
	var adminComment, forwardDetail, rawPayload *string
	var forwardedAt *time.Time

	err := row.Scan(
		&r.ID, &r.TenantID, &r.RequestID, &r.TeacherName, &r.TeacherEmail, &r.LeaveType,
		&r.LeaveStart, &r.LeaveEnd, &r.Status, &r.Reason, &adminComment, &r.SubmittedAt, &r.RecordedAt,
		&status, &forwardedAt, &forwardDetail, &rawPayload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}
	r.ForwardStatus = ForwardStatus(status)
	if adminComment != nil {
		r.AdminComment = *adminComment
	}
	if forwardedAt != nil {
		r.ForwardedAt = *forwardedAt
	}
	if forwardDetail != nil {
		r.ForwardDetail = *forwardDetail
	}
	if rawPayload != nil {
		r.RawPayload = *rawPayload
	}
	return r, nil
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Upsert inserts a new record, or on a (tenant_id, request_id) conflict
// overwrites every normalized field while keeping the existing id and
// recorded_at — the row is re-delivery-safe the same way covers_service.py's
// record_leave replaces the prior entry for that request_id.
func (r *PostgresRepository) Upsert(ctx context.Context, rec Record) (Record, error) {
	const q = `
		INSERT INTO received_leave_webhooks (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (tenant_id, request_id) DO UPDATE SET
			teacher_name = EXCLUDED.teacher_name,
			teacher_email = EXCLUDED.teacher_email,
			leave_type = EXCLUDED.leave_type,
			leave_start = EXCLUDED.leave_start,
			leave_end = EXCLUDED.leave_end,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			admin_comment = EXCLUDED.admin_comment,
			submitted_at = EXCLUDED.submitted_at,
			forward_status = EXCLUDED.forward_status,
			forwarded_at = EXCLUDED.forwarded_at,
			forward_detail = EXCLUDED.forward_detail,
			raw_payload = EXCLUDED.raw_payload
		RETURNING ` + recordColumns
	var forwardedAt *time.Time
	if !rec.ForwardedAt.IsZero() {
		forwardedAt = &rec.ForwardedAt
	}
	row := r.pool.QueryRow(ctx, q,
		rec.ID, rec.TenantID, rec.RequestID, rec.TeacherName, rec.TeacherEmail, rec.LeaveType,
		rec.LeaveStart, rec.LeaveEnd, rec.Status, rec.Reason, nullableStr(rec.AdminComment), rec.SubmittedAt, rec.RecordedAt,
		string(rec.ForwardStatus), forwardedAt, nullableStr(rec.ForwardDetail), nullableStr(rec.RawPayload),
	)
	return scanRecord(row)
}

func (r *PostgresRepository) FindByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (Record, bool, error) {
	q := `SELECT ` + recordColumns + ` FROM received_leave_webhooks WHERE tenant_id = $1 AND request_id = $2`
	rec, err := scanRecord(r.pool.QueryRow(ctx, q, tenantID, requestID))
	if err != nil {
		return Record{}, false, err
	}
	if rec.ID == uuid.Nil {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// ListApproved returns every approved record for tenantID, oldest leave_start
// first, for the on-demand backfill pass.
func (r *PostgresRepository) ListApproved(ctx context.Context, tenantID uuid.UUID) ([]Record, error) {
	const q = `
		SELECT ` + recordColumns + `
		FROM received_leave_webhooks
		WHERE tenant_id = $1 AND status = 'approved'
		ORDER BY leave_start ASC`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertForwardLog(ctx context.Context, entry ForwardLogEntry) error {
	const q = `
		INSERT INTO webhook_forward_log (id, tenant_id, request_id, attempt_at, status, http_status, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, q,
		entry.ID, entry.TenantID, entry.RequestID, entry.AttemptAt, string(entry.Status), entry.HTTPStatus, entry.Detail)
	return err
}
