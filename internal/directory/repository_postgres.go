package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository against the shared schema using
// pgx directly — no ORM, matching the rest of the query-heavy repositories
// in this module.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetTeacherByID(ctx context.Context, tenantID, teacherID uuid.UUID) (Teacher, error) {
	const q = `
		SELECT id, tenant_id, name, email, subject, grade_level, role
		FROM teachers
		WHERE tenant_id = $1 AND id = $2`
	return r.scanTeacher(r.pool.QueryRow(ctx, q, tenantID, teacherID))
}

func (r *PostgresRepository) GetTeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (Teacher, error) {
	const q = `
		SELECT id, tenant_id, name, email, subject, grade_level, role
		FROM teachers
		WHERE tenant_id = $1 AND lower(email) = lower($2)`
	return r.scanTeacher(r.pool.QueryRow(ctx, q, tenantID, email))
}

func (r *PostgresRepository) scanTeacher(row pgx.Row) (Teacher, error) {
	var t Teacher
	var role string
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Email, &t.Subject, &t.GradeLevel, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Teacher{}, ErrTeacherNotFound
	}
	if err != nil {
		return Teacher{}, err
	}
	t.Role = Role(role)
	return t, nil
}

func (r *PostgresRepository) ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error) {
	const q = `
		SELECT id, tenant_id, name, email, subject, grade_level, role
		FROM teachers
		WHERE tenant_id = $1
		ORDER BY name`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Teacher
	for rows.Next() {
		var t Teacher
		var role string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Email, &t.Subject, &t.GradeLevel, &role); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role Role) ([]Teacher, error) {
	const q = `
		SELECT id, tenant_id, name, email, subject, grade_level, role
		FROM teachers
		WHERE tenant_id = $1 AND role = $2
		ORDER BY name`
	rows, err := r.pool.Query(ctx, q, tenantID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Teacher
	for rows.Next() {
		var t Teacher
		var roleStr string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Email, &t.Subject, &t.GradeLevel, &roleStr); err != nil {
			return nil, err
		}
		t.Role = Role(roleStr)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (Student, error) {
	const q = `
		SELECT id, tenant_id, esis_code, name, homeroom
		FROM students
		WHERE tenant_id = $1 AND esis_code = $2`
	var s Student
	err := r.pool.QueryRow(ctx, q, tenantID, esisCode).Scan(&s.ID, &s.TenantID, &s.ESISCode, &s.Name, &s.Homeroom)
	if errors.Is(err, pgx.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	return s, err
}

func (r *PostgresRepository) ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]Student, error) {
	const q = `
		SELECT id, tenant_id, esis_code, name, homeroom
		FROM students
		WHERE tenant_id = $1 AND homeroom = $2
		ORDER BY name`
	rows, err := r.pool.Query(ctx, q, tenantID, homeroom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ESISCode, &s.Name, &s.Homeroom); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
