package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleIsGradeLead(t *testing.T) {
	grade, ok := Role("grade_lead_10").IsGradeLead()
	require.True(t, ok)
	assert.Equal(t, 10, grade)

	_, ok = Role("grade_lead_9").IsGradeLead()
	assert.False(t, ok, "9 is not a pod-duty grade")

	_, ok = Role("teacher").IsGradeLead()
	assert.False(t, ok)
}

func TestRoleExclusions(t *testing.T) {
	assert.True(t, RoleAdministrator.ExcludedFromDailyDuty())
	assert.False(t, RoleTeacher.ExcludedFromDailyDuty())

	assert.True(t, RoleSLT.ExcludedFromBreakDuty())
	assert.False(t, RoleTeacher.ExcludedFromBreakDuty())
}

func TestCanEditPodRoster(t *testing.T) {
	assert.True(t, RoleAdmin.CanEditPodRoster(7))
	assert.True(t, Role("grade_lead_7").CanEditPodRoster(7))
	assert.False(t, Role("grade_lead_7").CanEditPodRoster(6))
	assert.False(t, RoleTeacher.CanEditPodRoster(7))
}

func TestStudentGrade(t *testing.T) {
	s := Student{Homeroom: "G10-B"}
	grade, ok := s.Grade()
	require.True(t, ok)
	assert.Equal(t, 10, grade)

	s2 := Student{Homeroom: "Annex-1"}
	_, ok = s2.Grade()
	assert.False(t, ok)
}

type fakeRepository struct {
	teachers []Teacher
}

func (f *fakeRepository) GetTeacherByID(ctx context.Context, tenantID, teacherID uuid.UUID) (Teacher, error) {
	for _, t := range f.teachers {
		if t.ID == teacherID {
			return t, nil
		}
	}
	return Teacher{}, ErrTeacherNotFound
}

func (f *fakeRepository) GetTeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (Teacher, error) {
	for _, t := range f.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return Teacher{}, ErrTeacherNotFound
}

func (f *fakeRepository) ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]Teacher, error) {
	return f.teachers, nil
}

func (f *fakeRepository) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role Role) ([]Teacher, error) {
	var out []Teacher
	for _, t := range f.teachers {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepository) GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (Student, error) {
	return Student{}, ErrStudentNotFound
}

func (f *fakeRepository) ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]Student, error) {
	return nil, nil
}

func TestServiceEligibleForDailyDuty(t *testing.T) {
	repo := &fakeRepository{teachers: []Teacher{
		{ID: uuid.New(), Role: RoleTeacher},
		{ID: uuid.New(), Role: RoleAdministrator},
		{ID: uuid.New(), Role: RoleSLT},
	}}
	svc := NewService(repo)

	eligible, err := svc.EligibleForDailyDuty(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, eligible, 2)
	for _, e := range eligible {
		assert.NotEqual(t, RoleAdministrator, e.Role)
	}
}

func TestServiceEligibleForBreakDuty(t *testing.T) {
	repo := &fakeRepository{teachers: []Teacher{
		{ID: uuid.New(), Role: RoleTeacher},
		{ID: uuid.New(), Role: RoleAdministrator},
		{ID: uuid.New(), Role: RoleSLT},
	}}
	svc := NewService(repo)

	eligible, err := svc.EligibleForBreakDuty(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, eligible, 2)
	for _, e := range eligible {
		assert.NotEqual(t, RoleSLT, e.Role)
	}
}
