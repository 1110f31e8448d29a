package schedule

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
)

func TestCanonicalizePeriod(t *testing.T) {
	tests := []struct {
		raw  string
		want Period
	}{
		{"P1 7:30 - 8:20", PeriodP1},
		{"Period 1 7:50 - 8:45", PeriodP1},
		{"period 3 - g6 9:50 - 10:45", PeriodP3},
		{"p4", PeriodP4},
		{"P9 unknown slot", Period("P9 unknown slot")},
		{"", Period("")},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalizePeriod(tc.raw))
		})
	}
}

func TestDetectGrade(t *testing.T) {
	g, ok := DetectGrade("Period 3 - G6 Science")
	require.True(t, ok)
	assert.Equal(t, 6, g)

	_, ok = DetectGrade("Homeroom")
	assert.False(t, ok)
}

func TestCycleFromGrades(t *testing.T) {
	assert.Equal(t, CycleGeneral, CycleFromGrades(nil))
	assert.Equal(t, CycleMiddle, CycleFromGrades([]int{6, 7}))
	assert.Equal(t, CycleHigh, CycleFromGrades([]int{10, 11}))
	assert.Equal(t, CycleMixed, CycleFromGrades([]int{7, 10}))
}

func TestMaxPeriods(t *testing.T) {
	assert.Equal(t, 7, MaxPeriods(CycleHigh, clock.Monday))
	assert.Equal(t, 5, MaxPeriods(CycleHigh, clock.Friday))
	assert.Equal(t, 6, MaxPeriods(CycleMiddle, clock.Monday))
	assert.Equal(t, 3, MaxPeriods(CycleMiddle, clock.Friday))
	assert.Equal(t, 3, MaxPeriods(CycleGeneral, clock.Friday))
}

type fakeScheduleRepo struct {
	entries []Entry
}

func (f *fakeScheduleRepo) ListEntries(ctx context.Context, tenantID uuid.UUID) ([]Entry, error) {
	return f.entries, nil
}

func (f *fakeScheduleRepo) ReplaceEntries(ctx context.Context, tenantID uuid.UUID, entries []Entry) error {
	f.entries = entries
	return nil
}

func TestCatalogTeachersAvailableAndOccupied(t *testing.T) {
	teacherA := uuid.New()
	teacherB := uuid.New()
	repo := &fakeScheduleRepo{entries: []Entry{
		{TeacherID: teacherA, TeacherName: "A", Day: clock.Monday, Period: PeriodP1, Details: "G10 Math", Subject: "Math", GradeDetected: 10, HasGrade: true},
		{TeacherID: teacherB, TeacherName: "B", Day: clock.Monday, Period: PeriodP2, Details: "G6 English", Subject: "English", GradeDetected: 6, HasGrade: true},
	}}
	cat := NewCatalog(repo)
	require.NoError(t, cat.Refresh(context.Background(), uuid.New()))

	available := cat.TeachersAvailable(clock.Monday, PeriodP1)
	assert.NotContains(t, available, teacherA)
	assert.Contains(t, available, teacherB)

	occupied := cat.TeachersOccupied(clock.Monday, PeriodP1)
	require.Len(t, occupied, 1)
	assert.Equal(t, teacherA, occupied[0].TeacherID)
}

func TestCatalogDaySummaryFor(t *testing.T) {
	teacherA := uuid.New()
	repo := &fakeScheduleRepo{entries: []Entry{
		{TeacherID: teacherA, Day: clock.Friday, Period: PeriodP1, GradeDetected: 11, HasGrade: true},
		{TeacherID: teacherA, Day: clock.Friday, Period: PeriodP2, GradeDetected: 11, HasGrade: true},
	}}
	cat := NewCatalog(repo)
	require.NoError(t, cat.Refresh(context.Background(), uuid.New()))

	summary := cat.DaySummaryFor(teacherA, clock.Friday)
	assert.Equal(t, 2, summary.ScheduledCount)
	assert.Equal(t, 5, summary.MaxPeriods)
	assert.Equal(t, 3, summary.FreePeriods)
}

func TestCatalogGradeLevelsAndCycle(t *testing.T) {
	teacherA := uuid.New()
	repo := &fakeScheduleRepo{entries: []Entry{
		{TeacherID: teacherA, Day: clock.Monday, Period: PeriodP1, GradeDetected: 6, HasGrade: true},
		{TeacherID: teacherA, Day: clock.Tuesday, Period: PeriodP2, GradeDetected: 10, HasGrade: true},
	}}
	cat := NewCatalog(repo)
	require.NoError(t, cat.Refresh(context.Background(), uuid.New()))

	assert.Equal(t, []int{6, 10}, cat.GradeLevels(teacherA))
	assert.Equal(t, CycleMixed, cat.TeacherCycle(teacherA))
}
