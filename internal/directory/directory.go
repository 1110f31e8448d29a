// Package directory holds the identity catalog — teachers and students —
// that the schedule, leave, cover, and duty engines all key off of. It is
// deliberately thin: roster maintenance (hire/terminate, ESIS import) lives
// upstream of this service; this package exposes typed lookups and the role
// rules duty assignment depends on.
package directory

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Role is a teacher's access/assignment role within a tenant.
type Role string

const (
	RoleTeacher       Role = "teacher"
	RoleAdmin         Role = "admin"
	RolePA            Role = "pa"
	RoleSLT           Role = "slt"
	RoleAdministrator Role = "administrator"
)

// gradeLeadPattern matches the grade_lead_G family of roles, G in {6,7,10,11,12}.
var gradeLeadPattern = regexp.MustCompile(`^grade_lead_(6|7|10|11|12)$`)

// IsGradeLead reports whether the role is grade_lead_G, returning the grade.
func (r Role) IsGradeLead() (grade int, ok bool) {
	m := gradeLeadPattern.FindStringSubmatch(string(r))
	if m == nil {
		return 0, false
	}
	g, _ := strconv.Atoi(m[1])
	return g, true
}

// ExcludedFromDailyDuty reports whether the role is barred from every
// morning/dismissal duty slot.
func (r Role) ExcludedFromDailyDuty() bool {
	return r == RoleAdministrator
}

// ExcludedFromBreakDuty reports whether the role is barred from break/pod
// duty slots.
func (r Role) ExcludedFromBreakDuty() bool {
	return r == RoleSLT
}

// IsSuperAdmin reports whether the role is the unlinked admin role, i.e. an
// admin user record with no teacher record attached. Callers combine this
// with Teacher.IsAdminOnly to determine review privileges.
func (r Role) IsSuperAdmin() bool {
	return r == RoleAdmin
}

// CanEditPodRoster reports whether a teacher with this role may edit the
// pod-duty roster for gradeOfRoster.
func (r Role) CanEditPodRoster(gradeOfRoster int) bool {
	if r == RoleAdmin {
		return true
	}
	grade, ok := r.IsGradeLead()
	return ok && grade == gradeOfRoster
}

// Teacher is a tenant-scoped identity record.
type Teacher struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Email      string
	Subject    string
	GradeLevel string
	Role       Role
}

// IsAdminOnly reports whether this record represents a pure administrator
// account with no classroom assignment (used to gate sickleave-attachment
// override and cross-grade review).
func (t Teacher) IsAdminOnly() bool {
	return t.Role == RoleAdmin
}

// Student is a tenant-scoped identity record carried for future
// behavior/incident reporting; this catalog exposes homeroom/grade
// derivation for any caller that needs it.
type Student struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	ESISCode string
	Name     string
	Homeroom string
}

var homeroomGradePattern = regexp.MustCompile(`^G(\d+)`)

// Grade derives the numeric grade from the homeroom prefix "G<digits>".
// Returns 0, false if the homeroom does not match the expected pattern.
func (s Student) Grade() (int, bool) {
	m := homeroomGradePattern.FindStringSubmatch(strings.ToUpper(s.Homeroom))
	if m == nil {
		return 0, false
	}
	g, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return g, true
}

var (
	// ErrTeacherNotFound is returned when a teacher lookup matches no row.
	ErrTeacherNotFound = errors.New("directory: teacher not found")
	// ErrStudentNotFound is returned when a student lookup matches no row.
	ErrStudentNotFound = errors.New("directory: student not found")
)

// Repository is the persistence boundary for identity lookups.
type Repository interface {
	GetTeacherByID(ctx context.Context, tenantID, teacherID uuid.UUID) (Teacher, error)
	GetTeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (Teacher, error)
	ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error)
	ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role Role) ([]Teacher, error)
	GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (Student, error)
	ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]Student, error)
}

// Service resolves identity lookups and role-derived rules against a
// Repository.
type Service struct {
	repo Repository
}

// NewService constructs a directory Service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Teacher looks up a teacher by id.
func (s *Service) Teacher(ctx context.Context, tenantID, teacherID uuid.UUID) (Teacher, error) {
	return s.repo.GetTeacherByID(ctx, tenantID, teacherID)
}

// TeacherByEmail looks up a teacher by email, case-insensitively.
func (s *Service) TeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (Teacher, error) {
	return s.repo.GetTeacherByEmail(ctx, tenantID, strings.ToLower(strings.TrimSpace(email)))
}

// EligibleForDailyDuty filters teachers excluded by role from daily duty.
func (s *Service) EligibleForDailyDuty(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error) {
	all, err := s.repo.ListTeachers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Teacher, 0, len(all))
	for _, t := range all {
		if !t.Role.ExcludedFromDailyDuty() {
			out = append(out, t)
		}
	}
	return out, nil
}

// EligibleForBreakDuty filters teachers excluded by role from break/pod duty.
func (s *Service) EligibleForBreakDuty(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error) {
	all, err := s.repo.ListTeachers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Teacher, 0, len(all))
	for _, t := range all {
		if !t.Role.ExcludedFromBreakDuty() {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListTeachers returns every teacher in the tenant's directory.
func (s *Service) ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error) {
	return s.repo.ListTeachers(ctx, tenantID)
}

// ListTeachersByRole returns teachers holding a specific role, e.g. the
// grade_lead_G roles a pod roster screen needs to populate assignment
// pickers.
func (s *Service) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role Role) ([]Teacher, error) {
	return s.repo.ListTeachersByRole(ctx, tenantID, role)
}

// StudentByESIS looks up a student by their ESIS code.
func (s *Service) StudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (Student, error) {
	return s.repo.GetStudentByESIS(ctx, tenantID, esisCode)
}

// StudentsByHomeroom lists every student in a homeroom.
func (s *Service) StudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]Student, error) {
	return s.repo.ListStudentsByHomeroom(ctx, tenantID, homeroom)
}
