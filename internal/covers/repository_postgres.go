package covers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository over a shared cover_assignments
// table plus a per-tenant excluded_teachers table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ExistingSlotKeys(ctx context.Context, tenantID, requestID uuid.UUID, date time.Time) (map[string]bool, error) {
	const q = `
		SELECT slot_key FROM cover_assignments
		WHERE tenant_id = $1 AND request_id = $2 AND date = $3`
	rows, err := r.pool.Query(ctx, q, tenantID, requestID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = true
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Insert(ctx context.Context, a Assignment) error {
	const q = `
		INSERT INTO cover_assignments
			(id, tenant_id, date, slot_key, request_id, absent_teacher_id, absent_name,
			 absent_email, cover_teacher_id, cover_name, cover_email, class_subject,
			 class_grade, class_details, period_label, period_raw, class_time,
			 cover_free_periods, cover_scheduled, cover_max_periods, day_label, cover_assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT DO NOTHING`
	_, err := r.pool.Exec(ctx, q,
		a.ID, a.TenantID, a.Date, a.SlotKey, a.RequestID, a.AbsentTeacherID, a.AbsentName,
		a.AbsentEmail, a.CoverTeacherID, a.CoverName, a.CoverEmail, a.ClassSubject,
		a.ClassGrade, a.ClassDetails, a.PeriodLabel, a.PeriodRaw, a.ClassTime,
		a.CoverFreePeriods, a.CoverScheduled, a.CoverMaxPeriods, a.DayLabel, a.CoverAssignedAt)
	return err
}

func (r *PostgresRepository) CoversForTeacherOnDate(ctx context.Context, tenantID, teacherID uuid.UUID, date time.Time) (int, error) {
	const q = `
		SELECT COUNT(*) FROM cover_assignments
		WHERE tenant_id = $1 AND cover_teacher_id = $2 AND date = $3`
	var count int
	if err := r.pool.QueryRow(ctx, q, tenantID, teacherID, date).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepository) ListExcludedTeachers(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]bool, error) {
	const q = `SELECT teacher_id FROM excluded_teachers WHERE tenant_id = $1`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Update applies a restricted column patch. fields has already been
// filtered to EditableFields by the Engine; this only maps column names.
func (r *PostgresRepository) Update(ctx context.Context, tenantID, assignmentID uuid.UUID, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+2)
	i := 1
	for col, val := range fields {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, tenantID, assignmentID)

	q := fmt.Sprintf(
		`UPDATE cover_assignments SET %s WHERE tenant_id = $%d AND id = $%d`,
		strings.Join(setClauses, ", "), i, i+1,
	)

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PostgresRepository) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Assignment, error) {
	const q = `
		SELECT id, tenant_id, date, slot_key, request_id, absent_teacher_id, absent_name,
		       absent_email, cover_teacher_id, cover_name, cover_email, class_subject,
		       class_grade, class_details, period_label, period_raw, class_time,
		       cover_free_periods, cover_scheduled, cover_max_periods, day_label, cover_assigned_at
		FROM cover_assignments
		WHERE tenant_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, slot_key`
	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.Date, &a.SlotKey, &a.RequestID, &a.AbsentTeacherID, &a.AbsentName,
			&a.AbsentEmail, &a.CoverTeacherID, &a.CoverName, &a.CoverEmail, &a.ClassSubject,
			&a.ClassGrade, &a.ClassDetails, &a.PeriodLabel, &a.PeriodRaw, &a.ClassTime,
			&a.CoverFreePeriods, &a.CoverScheduled, &a.CoverMaxPeriods, &a.DayLabel, &a.CoverAssignedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RecordGap(ctx context.Context, g GapReport) error {
	const q = `
		INSERT INTO cover_gaps (id, tenant_id, request_id, date, slot_key, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, uuid.New(), g.TenantID, g.RequestID, g.Date, g.SlotKey, g.Reason)
	return err
}

func (r *PostgresRepository) ListGaps(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]GapReport, error) {
	const q = `
		SELECT tenant_id, request_id, date, slot_key, reason
		FROM cover_gaps
		WHERE tenant_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, slot_key`
	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GapReport
	for rows.Next() {
		var g GapReport
		if err := rows.Scan(&g.TenantID, &g.RequestID, &g.Date, &g.SlotKey, &g.Reason); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
