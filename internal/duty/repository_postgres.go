package duty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository over duty_assignments and
// pod_duty_assignments tables, following the same raw-pgx shape as
// internal/covers and internal/leaves's Postgres repositories. Both tables
// carry their acknowledgement as columns directly on the row (status,
// note, updated_at, owner_teacher_id) rather than a joined table, per this
// package's departure from the Python original's separate acknowledgement
// models.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const dailyColumns = `
	id, tenant_id, assignment_date, duty_type, location, teacher_id, teacher_name,
	created_by_teacher_id, created_at,
	ack_status, ack_note, ack_updated_at, ack_owner_teacher_id`

func scanDaily(row pgx.Row) (DailyAssignment, error) {
	var a DailyAssignment
	var dutyType, location, ackStatus string
	var ackNote *string
	var ackUpdatedAt *time.Time
	var ackOwner *uuid.UUID

	err := row.Scan(
		&a.ID, &a.TenantID, &a.AssignmentDate, &dutyType, &location, &a.TeacherID, &a.TeacherName,
		&a.CreatedByTeacherID, &a.CreatedAt,
		&ackStatus, &ackNote, &ackUpdatedAt, &ackOwner,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyAssignment{}, ErrNotFound
	}
	if err != nil {
		return DailyAssignment{}, err
	}
	a.DutyType = DutyType(dutyType)
	a.Location = Location(location)
	a.Acknowledgement = Acknowledgement{Status: AckStatus(ackStatus)}
	if ackNote != nil {
		a.Acknowledgement.Note = *ackNote
	}
	if ackUpdatedAt != nil {
		a.Acknowledgement.UpdatedAt = *ackUpdatedAt
	}
	if ackOwner != nil {
		a.Acknowledgement.OwnerTeacherID = *ackOwner
	}
	return a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PostgresRepository) InsertDaily(ctx context.Context, a DailyAssignment) error {
	const q = `
		INSERT INTO duty_assignments (` + dailyColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.pool.Exec(ctx, q,
		a.ID, a.TenantID, a.AssignmentDate, string(a.DutyType), string(a.Location), a.TeacherID, a.TeacherName,
		a.CreatedByTeacherID, a.CreatedAt,
		string(a.Acknowledgement.Status), nullableString(a.Acknowledgement.Note), a.Acknowledgement.UpdatedAt, a.Acknowledgement.OwnerTeacherID,
	)
	return err
}

func (r *PostgresRepository) GetDaily(ctx context.Context, tenantID, id uuid.UUID) (DailyAssignment, error) {
	q := `SELECT ` + dailyColumns + ` FROM duty_assignments WHERE tenant_id = $1 AND id = $2`
	return scanDaily(r.pool.QueryRow(ctx, q, tenantID, id))
}

func (r *PostgresRepository) FindDaily(ctx context.Context, tenantID uuid.UUID, date time.Time, dutyType DutyType, teacherID uuid.UUID) (DailyAssignment, bool, error) {
	q := `SELECT ` + dailyColumns + ` FROM duty_assignments
		WHERE tenant_id = $1 AND assignment_date = $2 AND duty_type = $3 AND teacher_id = $4`
	a, err := scanDaily(r.pool.QueryRow(ctx, q, tenantID, date, string(dutyType), teacherID))
	if errors.Is(err, ErrNotFound) {
		return DailyAssignment{}, false, nil
	}
	if err != nil {
		return DailyAssignment{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepository) ListDailyRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DailyAssignment, error) {
	q := `SELECT ` + dailyColumns + ` FROM duty_assignments
		WHERE tenant_id = $1 AND assignment_date >= $2 AND assignment_date < $3
		ORDER BY assignment_date, duty_type, location`
	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyAssignment
	for rows.Next() {
		a, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateDailyAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error {
	const q = `
		UPDATE duty_assignments SET ack_status = $3, ack_note = $4, ack_updated_at = $5, ack_owner_teacher_id = $6
		WHERE tenant_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, q, tenantID, id, string(ack.Status), nullableString(ack.Note), ack.UpdatedAt, ack.OwnerTeacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteDaily(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM duty_assignments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const podColumns = `
	id, tenant_id, assignment_date, grade, pod, slot_type, period, teacher_id, teacher_name,
	break_location, created_by_teacher_id, created_at,
	ack_status, ack_note, ack_updated_at, ack_owner_teacher_id`

func scanPod(row pgx.Row) (PodAssignment, error) {
	var a PodAssignment
	var slotType, ackStatus string
	var breakLocation *string
	var period *int
	var ackNote *string
	var ackUpdatedAt *time.Time
	var ackOwner *uuid.UUID

	err := row.Scan(
		&a.ID, &a.TenantID, &a.AssignmentDate, &a.Grade, &a.Pod, &slotType, &period, &a.TeacherID, &a.TeacherName,
		&breakLocation, &a.CreatedByTeacherID, &a.CreatedAt,
		&ackStatus, &ackNote, &ackUpdatedAt, &ackOwner,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PodAssignment{}, ErrNotFound
	}
	if err != nil {
		return PodAssignment{}, err
	}
	a.SlotType = SlotType(slotType)
	if period != nil {
		a.Period = *period
	}
	if breakLocation != nil {
		a.BreakLocation = BreakLocation(*breakLocation)
	}
	a.Acknowledgement = Acknowledgement{Status: AckStatus(ackStatus)}
	if ackNote != nil {
		a.Acknowledgement.Note = *ackNote
	}
	if ackUpdatedAt != nil {
		a.Acknowledgement.UpdatedAt = *ackUpdatedAt
	}
	if ackOwner != nil {
		a.Acknowledgement.OwnerTeacherID = *ackOwner
	}
	return a, nil
}

func nullablePeriod(p int) *int {
	if p == 0 {
		return nil
	}
	return &p
}

func (r *PostgresRepository) InsertPod(ctx context.Context, a PodAssignment) error {
	const q = `
		INSERT INTO pod_duty_assignments (` + podColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.pool.Exec(ctx, q,
		a.ID, a.TenantID, a.AssignmentDate, a.Grade, a.Pod, string(a.SlotType), nullablePeriod(a.Period), a.TeacherID, a.TeacherName,
		nullableString(string(a.BreakLocation)), a.CreatedByTeacherID, a.CreatedAt,
		string(a.Acknowledgement.Status), nullableString(a.Acknowledgement.Note), a.Acknowledgement.UpdatedAt, a.Acknowledgement.OwnerTeacherID,
	)
	return err
}

func (r *PostgresRepository) GetPod(ctx context.Context, tenantID, id uuid.UUID) (PodAssignment, error) {
	q := `SELECT ` + podColumns + ` FROM pod_duty_assignments WHERE tenant_id = $1 AND id = $2`
	return scanPod(r.pool.QueryRow(ctx, q, tenantID, id))
}

func (r *PostgresRepository) ListPodForDate(ctx context.Context, tenantID uuid.UUID, date time.Time, grade int) ([]PodAssignment, error) {
	q := `SELECT ` + podColumns + ` FROM pod_duty_assignments
		WHERE tenant_id = $1 AND assignment_date = $2 AND grade = $3
		ORDER BY slot_type, pod, period`
	rows, err := r.pool.Query(ctx, q, tenantID, date, grade)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PodAssignment
	for rows.Next() {
		a, err := scanPod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) FindPodSlot(ctx context.Context, tenantID uuid.UUID, date time.Time, teacherID uuid.UUID, slotType SlotType, period int) (PodAssignment, bool, error) {
	q := `SELECT ` + podColumns + ` FROM pod_duty_assignments
		WHERE tenant_id = $1 AND assignment_date = $2 AND teacher_id = $3 AND slot_type = $4
		  AND period IS NOT DISTINCT FROM $5`
	a, err := scanPod(r.pool.QueryRow(ctx, q, tenantID, date, teacherID, string(slotType), nullablePeriod(period)))
	if errors.Is(err, ErrNotFound) {
		return PodAssignment{}, false, nil
	}
	if err != nil {
		return PodAssignment{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepository) DeletePod(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pod_duty_assignments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdatePodBreakLocation(ctx context.Context, tenantID, id uuid.UUID, location BreakLocation) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pod_duty_assignments SET break_location = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, nullableString(string(location)))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdatePodAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error {
	const q = `
		UPDATE pod_duty_assignments SET ack_status = $3, ack_note = $4, ack_updated_at = $5, ack_owner_teacher_id = $6
		WHERE tenant_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, q, tenantID, id, string(ack.Status), nullableString(ack.Note), ack.UpdatedAt, ack.OwnerTeacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
