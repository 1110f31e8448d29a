package duty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
)

type fakeDirectoryRepo struct {
	teachers map[uuid.UUID]directory.Teacher
}

func (f *fakeDirectoryRepo) GetTeacherByID(ctx context.Context, tenantID, teacherID uuid.UUID) (directory.Teacher, error) {
	t, ok := f.teachers[teacherID]
	if !ok {
		return directory.Teacher{}, directory.ErrTeacherNotFound
	}
	return t, nil
}

func (f *fakeDirectoryRepo) GetTeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (directory.Teacher, error) {
	for _, t := range f.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return directory.Teacher{}, directory.ErrTeacherNotFound
}

func (f *fakeDirectoryRepo) ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]directory.Teacher, error) {
	out := make([]directory.Teacher, 0, len(f.teachers))
	for _, t := range f.teachers {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeDirectoryRepo) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role directory.Role) ([]directory.Teacher, error) {
	var out []directory.Teacher
	for _, t := range f.teachers {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDirectoryRepo) GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (directory.Student, error) {
	return directory.Student{}, directory.ErrStudentNotFound
}

func (f *fakeDirectoryRepo) ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]directory.Student, error) {
	return nil, nil
}

type fakeRepo struct {
	daily map[uuid.UUID]DailyAssignment
	pod   map[uuid.UUID]PodAssignment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{daily: make(map[uuid.UUID]DailyAssignment), pod: make(map[uuid.UUID]PodAssignment)}
}

func (f *fakeRepo) InsertDaily(ctx context.Context, a DailyAssignment) error {
	f.daily[a.ID] = a
	return nil
}

func (f *fakeRepo) GetDaily(ctx context.Context, tenantID, id uuid.UUID) (DailyAssignment, error) {
	a, ok := f.daily[id]
	if !ok {
		return DailyAssignment{}, ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) FindDaily(ctx context.Context, tenantID uuid.UUID, date time.Time, dutyType DutyType, teacherID uuid.UUID) (DailyAssignment, bool, error) {
	for _, a := range f.daily {
		if a.DutyType == dutyType && a.TeacherID == teacherID && a.AssignmentDate.Equal(date) {
			return a, true, nil
		}
	}
	return DailyAssignment{}, false, nil
}

func (f *fakeRepo) ListDailyRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DailyAssignment, error) {
	var out []DailyAssignment
	for _, a := range f.daily {
		if !a.AssignmentDate.Before(from) && a.AssignmentDate.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateDailyAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error {
	a, ok := f.daily[id]
	if !ok {
		return ErrNotFound
	}
	a.Acknowledgement = ack
	f.daily[id] = a
	return nil
}

func (f *fakeRepo) DeleteDaily(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, ok := f.daily[id]; !ok {
		return ErrNotFound
	}
	delete(f.daily, id)
	return nil
}

func (f *fakeRepo) ListPodForDate(ctx context.Context, tenantID uuid.UUID, date time.Time, grade int) ([]PodAssignment, error) {
	var out []PodAssignment
	for _, a := range f.pod {
		if a.Grade == grade && a.AssignmentDate.Equal(date) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPod(ctx context.Context, tenantID, id uuid.UUID) (PodAssignment, error) {
	a, ok := f.pod[id]
	if !ok {
		return PodAssignment{}, ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) FindPodSlot(ctx context.Context, tenantID uuid.UUID, date time.Time, teacherID uuid.UUID, slotType SlotType, period int) (PodAssignment, bool, error) {
	for _, a := range f.pod {
		if a.TeacherID == teacherID && a.SlotType == slotType && a.Period == period && a.AssignmentDate.Equal(date) {
			return a, true, nil
		}
	}
	return PodAssignment{}, false, nil
}

func (f *fakeRepo) InsertPod(ctx context.Context, a PodAssignment) error {
	f.pod[a.ID] = a
	return nil
}

func (f *fakeRepo) DeletePod(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, ok := f.pod[id]; !ok {
		return ErrNotFound
	}
	delete(f.pod, id)
	return nil
}

func (f *fakeRepo) UpdatePodBreakLocation(ctx context.Context, tenantID, id uuid.UUID, location BreakLocation) error {
	a, ok := f.pod[id]
	if !ok {
		return ErrNotFound
	}
	a.BreakLocation = location
	f.pod[id] = a
	return nil
}

func (f *fakeRepo) UpdatePodAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error {
	a, ok := f.pod[id]
	if !ok {
		return ErrNotFound
	}
	a.Acknowledgement = ack
	f.pod[id] = a
	return nil
}

type fakeAvailability struct {
	records []AvailabilityRecord
	err     error
}

func (f *fakeAvailability) FetchAvailable(ctx context.Context, dayCode, period string) ([]AvailabilityRecord, error) {
	return f.records, f.err
}

func newTestEngine(teachers ...directory.Teacher) (*Engine, *fakeRepo) {
	byID := make(map[uuid.UUID]directory.Teacher, len(teachers))
	for _, t := range teachers {
		byID[t.ID] = t
	}
	dir := directory.NewService(&fakeDirectoryRepo{teachers: byID})
	repo := newFakeRepo()
	return NewEngine(repo, dir, &fakeAvailability{}), repo
}

func teacher(role directory.Role) directory.Teacher {
	return directory.Teacher{ID: uuid.New(), TenantID: uuid.New(), Name: "Test Teacher", Email: "test@example.com", Role: role}
}

func TestAssignDaily_Succeeds(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	assignment, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: time.Now(),
		DutyType:       DutyMorning,
		Location:       LocationGate1,
		TeacherID:      tch.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, AckPending, assignment.Acknowledgement.Status)
	assert.Equal(t, tch.ID, assignment.Acknowledgement.OwnerTeacherID)
}

func TestAssignDaily_RefusesAdministratorRole(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleAdministrator)
	engine, _ := newTestEngine(tch)

	_, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: time.Now(),
		DutyType:       DutyMorning,
		Location:       LocationGate1,
		TeacherID:      tch.ID,
	})
	assert.ErrorIs(t, err, ErrRoleExcluded)
}

func TestAssignDaily_RefusesDuplicateSlot(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)
	date := time.Now()

	_, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: date, DutyType: DutyMorning, Location: LocationGate1, TeacherID: tch.ID,
	})
	require.NoError(t, err)

	_, err = engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: date, DutyType: DutyMorning, Location: LocationGate2, TeacherID: tch.ID,
	})
	assert.ErrorIs(t, err, ErrDuplicateAssignment)
}

func TestAssignDaily_RefusesInvalidLocation(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	_, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: time.Now(), DutyType: DutyMorning, Location: Location("not_a_real_gate"), TeacherID: tch.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestAcknowledgeDaily_RequiresNoteWhenUnavailable(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	assignment, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: time.Now(), DutyType: DutyMorning, Location: LocationGate1, TeacherID: tch.ID,
	})
	require.NoError(t, err)

	err = engine.AcknowledgeDaily(context.Background(), tenantID, assignment.ID, tch.ID, false, AckUnavailable, "")
	assert.ErrorIs(t, err, ErrNoteRequired)

	err = engine.AcknowledgeDaily(context.Background(), tenantID, assignment.ID, tch.ID, false, AckUnavailable, "sick")
	require.NoError(t, err)
}

func TestAcknowledgeDaily_RefusesOtherTeacher(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	other := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch, other)

	assignment, err := engine.AssignDaily(context.Background(), tenantID, AssignDailyInput{
		AssignmentDate: time.Now(), DutyType: DutyMorning, Location: LocationGate1, TeacherID: tch.ID,
	})
	require.NoError(t, err)

	err = engine.AcknowledgeDaily(context.Background(), tenantID, assignment.ID, other.ID, false, AckPresent, "")
	assert.ErrorIs(t, err, ErrForbidden)

	err = engine.AcknowledgeDaily(context.Background(), tenantID, assignment.ID, other.ID, true, AckPresent, "")
	require.NoError(t, err)
}

func TestSingleAssignPod_Succeeds(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	assignment, err := engine.SingleAssignPod(context.Background(), tenantID, 6, time.Now(), DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1, TeacherID: tch.ID,
	}, tch.ID)
	require.NoError(t, err)
	assert.Equal(t, "G6 Pod 1", assignment.Pod)
}

func TestSingleAssignPod_RefusesDuplicateSlot(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)
	date := time.Now()

	_, err := engine.SingleAssignPod(context.Background(), tenantID, 6, date, DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1, TeacherID: tch.ID,
	}, tch.ID)
	require.NoError(t, err)

	_, err = engine.SingleAssignPod(context.Background(), tenantID, 6, date, DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 2", Period: 1, TeacherID: tch.ID,
	}, tch.ID)
	assert.ErrorIs(t, err, ErrDuplicateAssignment)
}

func TestSingleAssignPod_RefusesInvalidPeriod(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	_, err := engine.SingleAssignPod(context.Background(), tenantID, 6, time.Now(), DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 9, TeacherID: tch.ID,
	}, tch.ID)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestSingleAssignPod_BreakRequiresLocationForGrade6(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(tch)

	_, err := engine.SingleAssignPod(context.Background(), tenantID, 6, time.Now(), DesiredPodSlot{
		SlotType: SlotBreak, Pod: BreakPodKey, TeacherID: tch.ID,
	}, tch.ID)
	assert.ErrorIs(t, err, ErrBreakLocationRequired)

	_, err = engine.SingleAssignPod(context.Background(), tenantID, 6, time.Now(), DesiredPodSlot{
		SlotType: SlotBreak, Pod: BreakPodKey, TeacherID: tch.ID, BreakLocation: BreakCanteenGate,
	}, tch.ID)
	require.NoError(t, err)
}

func TestSingleAssignPod_BreakRefusesSLT(t *testing.T) {
	tenantID := uuid.New()
	tch := teacher(directory.RoleSLT)
	engine, _ := newTestEngine(tch)

	_, err := engine.SingleAssignPod(context.Background(), tenantID, 11, time.Now(), DesiredPodSlot{
		SlotType: SlotBreak, Pod: BreakPodKey, TeacherID: tch.ID,
	}, tch.ID)
	assert.ErrorIs(t, err, ErrRoleExcluded)
}

func TestReplacePod_DeletesRemovedAndInsertsAdded(t *testing.T) {
	tenantID := uuid.New()
	a := teacher(directory.RoleTeacher)
	b := teacher(directory.RoleTeacher)
	engine, repo := newTestEngine(a, b)
	date := time.Now()

	_, err := engine.ReplacePod(context.Background(), tenantID, 6, date, []DesiredPodSlot{
		{SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1, TeacherID: a.ID},
	}, a.ID)
	require.NoError(t, err)
	assert.Len(t, repo.pod, 1)

	result, err := engine.ReplacePod(context.Background(), tenantID, 6, date, []DesiredPodSlot{
		{SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1, TeacherID: b.ID},
	}, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Len(t, result.Inserted, 1)
	assert.Len(t, repo.pod, 1)
}

func TestReplacePod_RecordsConflictAsErrorNotFailure(t *testing.T) {
	tenantID := uuid.New()
	a := teacher(directory.RoleTeacher)
	engine, _ := newTestEngine(a)
	date := time.Now()

	result, err := engine.ReplacePod(context.Background(), tenantID, 6, date, []DesiredPodSlot{
		{SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1, TeacherID: a.ID},
		{SlotType: SlotPeriod, Pod: "G6 Pod 2", Period: 1, TeacherID: a.ID},
	}, a.ID)
	require.NoError(t, err)
	assert.Len(t, result.Inserted, 1)
	assert.NotEmpty(t, result.Errors)
}

func TestAvailableForPod_FallsBackWhenAPIUnreachable(t *testing.T) {
	tenantID := uuid.New()
	a := teacher(directory.RoleTeacher)
	b := teacher(directory.RoleTeacher)
	byID := map[uuid.UUID]directory.Teacher{a.ID: a, b.ID: b}
	dir := directory.NewService(&fakeDirectoryRepo{teachers: byID})
	repo := newFakeRepo()
	engine := NewEngine(repo, dir, &fakeAvailability{err: assert.AnError})

	candidates, err := engine.AvailableForPod(context.Background(), tenantID, 6, mondayAt(time.Now()), DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1,
	})
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestAvailableForPod_OrdersUnassignedFirstThenAlphabetical(t *testing.T) {
	tenantID := uuid.New()
	a := teacher(directory.RoleTeacher)
	a.Name = "Zed"
	b := teacher(directory.RoleTeacher)
	b.Name = "Amy"
	engine, repo := newTestEngine(a, b)
	date := mondayAt(time.Now())

	repo.pod[uuid.New()] = PodAssignment{
		ID: uuid.New(), TenantID: tenantID, AssignmentDate: clock.StartOfCivilDay(date), Grade: 6,
		Pod: "G6 Pod 2", SlotType: SlotPeriod, Period: 2, TeacherID: a.ID,
	}

	candidates, err := engine.AvailableForPod(context.Background(), tenantID, 6, date, DesiredPodSlot{
		SlotType: SlotPeriod, Pod: "G6 Pod 1", Period: 1,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, b.ID, candidates[0].ID) // Amy: not yet assigned today
	assert.Equal(t, a.ID, candidates[1].ID) // Zed: already assigned today
}

func mondayAt(near time.Time) time.Time {
	for near.Weekday() != time.Monday {
		near = near.AddDate(0, 0, 1)
	}
	return near
}
