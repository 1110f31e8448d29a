package webhookingress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolsuite/absence-cover-duty/internal/covers"
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
	return nil, nil
}

func (f *fakeDirectoryRepo) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role directory.Role) ([]directory.Teacher, error) {
	return nil, nil
}

func (f *fakeDirectoryRepo) GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (directory.Student, error) {
	return directory.Student{}, directory.ErrStudentNotFound
}

func (f *fakeDirectoryRepo) ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]directory.Student, error) {
	return nil, nil
}

type fakeRepo struct {
	byRequestID map[string]Record
	forwardLogs []ForwardLogEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byRequestID: make(map[string]Record)}
}

func (f *fakeRepo) Upsert(ctx context.Context, r Record) (Record, error) {
	f.byRequestID[r.RequestID] = r
	return r, nil
}

func (f *fakeRepo) FindByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (Record, bool, error) {
	r, ok := f.byRequestID[requestID]
	return r, ok, nil
}

func (f *fakeRepo) InsertForwardLog(ctx context.Context, entry ForwardLogEntry) error {
	f.forwardLogs = append(f.forwardLogs, entry)
	return nil
}

func (f *fakeRepo) ListApproved(ctx context.Context, tenantID uuid.UUID) ([]Record, error) {
	var out []Record
	for _, r := range f.byRequestID {
		if r.Status == "approved" {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeForwarder struct {
	result ForwardResult
	calls  int
}

func (f *fakeForwarder) Forward(ctx context.Context, payload ForwardPayload) ForwardResult {
	f.calls++
	return f.result
}

type fakeAssigner struct {
	calls []covers.LeaveForAssignment
	err   error
}

func (f *fakeAssigner) AssignForLeave(ctx context.Context, tenantID uuid.UUID, leave covers.LeaveForAssignment) ([]covers.Assignment, error) {
	f.calls = append(f.calls, leave)
	if f.err != nil {
		return nil, f.err
	}
	return []covers.Assignment{{ID: uuid.New()}}, nil
}

func newTestEngine(teachers ...directory.Teacher) (*Engine, *fakeRepo, *fakeForwarder, *fakeAssigner) {
	byID := make(map[uuid.UUID]directory.Teacher, len(teachers))
	for _, t := range teachers {
		byID[t.ID] = t
	}
	dir := directory.NewService(&fakeDirectoryRepo{teachers: byID})
	repo := newFakeRepo()
	forwarder := &fakeForwarder{result: ForwardResult{Status: ForwardSent, HTTPStatus: 200, Detail: "200 ok"}}
	assigner := &fakeAssigner{}
	engine := NewEngine(repo, dir, forwarder, assigner, "", zerolog.Nop())
	return engine, repo, forwarder, assigner
}

func teacher() directory.Teacher {
	return directory.Teacher{ID: uuid.New(), TenantID: uuid.New(), Name: "Jane Doe", Email: "jane@example.com", Role: directory.RoleTeacher}
}

func TestRecord_RejectsMissingRequestID(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	_, err := engine.Record(context.Background(), uuid.New(), InboundPayload{
		TeacherName: "Jane", LeaveStart: "2026-01-05", Status: "approved",
	})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestRecord_RejectsMissingTeacher(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	_, err := engine.Record(context.Background(), uuid.New(), InboundPayload{
		RequestID: "req-1", LeaveStart: "2026-01-05", Status: "approved",
	})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestRecord_RejectsMissingDate(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	_, err := engine.Record(context.Background(), uuid.New(), InboundPayload{
		RequestID: "req-1", TeacherName: "Jane", Status: "approved",
	})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestRecord_DefaultsEndToStart(t *testing.T) {
	engine, repo, _, _ := newTestEngine()
	tenantID := uuid.New()
	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-1", TeacherName: "Jane", LeaveStart: "2026-01-05", Status: "pending",
	})
	require.NoError(t, err)
	stored := repo.byRequestID["req-1"]
	assert.True(t, stored.LeaveEnd.Equal(stored.LeaveStart))
}

func TestRecord_ParsesAlternateDateFormats(t *testing.T) {
	engine, repo, _, _ := newTestEngine()
	tenantID := uuid.New()
	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-2", TeacherName: "Jane", LeaveDate: "05-01-2026", Status: "pending",
	})
	require.NoError(t, err)
	stored := repo.byRequestID["req-2"]
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), stored.LeaveStart)
}

func TestRecord_ForwardsWhenApprovedAndURLConfigured(t *testing.T) {
	engine, repo, forwarder, _ := newTestEngine()
	tenantID := uuid.New()
	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-3", TeacherName: "Jane", Email: "jane@example.com", LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, forwarder.calls)
	assert.Len(t, repo.forwardLogs, 1)
	assert.Equal(t, ForwardSent, repo.byRequestID["req-3"].ForwardStatus)
}

func TestRecord_DoesNotForwardTwiceOnceSent(t *testing.T) {
	engine, repo, forwarder, _ := newTestEngine()
	tenantID := uuid.New()

	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-4", TeacherName: "Jane", Email: "jane@example.com", LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, forwarder.calls)

	_, err = engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-4", TeacherName: "Jane", Email: "jane@example.com", LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, forwarder.calls)
	_ = repo
}

func TestRecord_DoesNotForwardWhenNotApproved(t *testing.T) {
	engine, _, forwarder, _ := newTestEngine()
	_, err := engine.Record(context.Background(), uuid.New(), InboundPayload{
		RequestID: "req-5", TeacherName: "Jane", LeaveStart: "2026-01-05", Status: "pending",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, forwarder.calls)
}

func TestRecord_InvokesCoverAssignmentOnApproval(t *testing.T) {
	tch := teacher()
	engine, _, _, assigner := newTestEngine(tch)
	tenantID := uuid.New()

	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-6", TeacherName: tch.Name, Email: tch.Email, LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	require.Len(t, assigner.calls, 1)
	assert.Equal(t, tch.ID, assigner.calls[0].TeacherID)
}

func TestRecord_SkipsAssignmentWhenTeacherUnknown(t *testing.T) {
	engine, _, _, assigner := newTestEngine()
	_, err := engine.Record(context.Background(), uuid.New(), InboundPayload{
		RequestID: "req-7", TeacherName: "Ghost", Email: "ghost@example.com", LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	assert.Empty(t, assigner.calls)
}

func TestBackfill_ReassignsEveryApprovedRecord(t *testing.T) {
	tch := teacher()
	engine, _, _, assigner := newTestEngine(tch)
	tenantID := uuid.New()

	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-8", TeacherName: tch.Name, Email: tch.Email, LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)
	_, err = engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-9", TeacherName: tch.Name, Email: tch.Email, LeaveStart: "2026-01-06", Status: "pending",
	})
	require.NoError(t, err)
	assigner.calls = nil // reset after the synchronous Record-triggered assignment

	summary, err := engine.Backfill(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Considered, "only the approved record is eligible")
	assert.Equal(t, 1, summary.Assigned)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, assigner.calls, 1)
}

func TestBackfill_CountsFailuresWithoutAborting(t *testing.T) {
	engine, _, _, assigner := newTestEngine() // no known teachers, so resolution fails
	tenantID := uuid.New()

	_, err := engine.Record(context.Background(), tenantID, InboundPayload{
		RequestID: "req-10", TeacherName: "Ghost", Email: "ghost@example.com", LeaveStart: "2026-01-05", Status: "approved",
	})
	require.NoError(t, err)

	summary, err := engine.Backfill(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Considered)
	assert.Equal(t, 0, summary.Assigned)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, assigner.calls)
}

func TestCheckSecret(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	assert.True(t, engine.CheckSecret("anything"))

	engine.secret = "topsecret"
	assert.False(t, engine.CheckSecret("wrong"))
	assert.True(t, engine.CheckSecret("topsecret"))
}
