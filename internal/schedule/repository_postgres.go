package schedule

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
)

// PostgresRepository implements Repository over a shared-schema
// schedule_entries table, one row per (teacher, day, period).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ListEntries(ctx context.Context, tenantID uuid.UUID) ([]Entry, error) {
	const q = `
		SELECT se.id, se.tenant_id, se.teacher_id, t.name, t.email,
		       se.day_code, se.period, se.period_raw, se.details, se.subject,
		       se.grade_detected
		FROM schedule_entries se
		JOIN teachers t ON t.id = se.teacher_id
		WHERE se.tenant_id = $1`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var day, period string
		var grade *int
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TeacherID, &e.TeacherName, &e.TeacherEmail,
			&day, &period, &e.PeriodRaw, &e.Details, &e.Subject, &grade); err != nil {
			return nil, err
		}
		e.Day = clock.DayCode(day)
		e.Period = Period(period)
		if grade != nil {
			e.GradeDetected = *grade
			e.HasGrade = true
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceEntries atomically swaps the full schedule for tenantID — used by
// the boot-time load and the explicit refresh operation, never by
// incremental edits.
func (r *PostgresRepository) ReplaceEntries(ctx context.Context, tenantID uuid.UUID, entries []Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_entries WHERE tenant_id = $1`, tenantID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	const insert = `
		INSERT INTO schedule_entries
			(id, tenant_id, teacher_id, day_code, period, period_raw, details, subject, grade_detected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, e := range entries {
		var grade *int
		if e.HasGrade {
			grade = &e.GradeDetected
		}
		batch.Queue(insert, e.ID, tenantID, e.TeacherID, string(e.Day), string(e.Period), e.PeriodRaw, e.Details, e.Subject, grade)
	}
	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
