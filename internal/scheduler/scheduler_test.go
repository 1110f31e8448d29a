package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolsuite/absence-cover-duty/internal/attachments"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
	"github.com/schoolsuite/absence-cover-duty/internal/webhookingress"
)

// fakeTenantRepo implements Repository with a fixed tenant set.
type fakeTenantRepo struct {
	tenants []uuid.UUID
	calls   int
}

func (f *fakeTenantRepo) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	f.calls++
	return f.tenants, nil
}

// fakeLeavesRepo is a minimal leaves.Repository with no reminder candidates.
type fakeLeavesRepo struct{}

func (fakeLeavesRepo) Insert(ctx context.Context, r leaves.Request) error { return nil }
func (fakeLeavesRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (leaves.Request, error) {
	return leaves.Request{}, nil
}
func (fakeLeavesRepo) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (leaves.Request, error) {
	return leaves.Request{}, nil
}
func (fakeLeavesRepo) Update(ctx context.Context, r leaves.Request) error { return nil }
func (fakeLeavesRepo) FindPending(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time) (leaves.Request, bool, error) {
	return leaves.Request{}, false, nil
}
func (fakeLeavesRepo) ListPendingSickWithMissingAttachment(ctx context.Context, tenantID uuid.UUID) ([]leaves.Request, error) {
	return nil, nil
}
func (fakeLeavesRepo) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]leaves.Request, error) {
	return nil, nil
}
func (fakeLeavesRepo) InsertMessage(ctx context.Context, m leaves.Message) error { return nil }
func (fakeLeavesRepo) ListMessages(ctx context.Context, tenantID, leaveID uuid.UUID) ([]leaves.Message, error) {
	return nil, nil
}
func (fakeLeavesRepo) RecordWindowAttempt(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time, reasonPreview string) error {
	return nil
}
func (fakeLeavesRepo) RecordReminderEvent(ctx context.Context, tenantID, leaveID uuid.UUID, event string, occurredAt time.Time) error {
	return nil
}

type fakeDirectoryRepo struct{}

func (fakeDirectoryRepo) GetTeacherByID(ctx context.Context, tenantID, teacherID uuid.UUID) (directory.Teacher, error) {
	return directory.Teacher{}, nil
}
func (fakeDirectoryRepo) GetTeacherByEmail(ctx context.Context, tenantID uuid.UUID, email string) (directory.Teacher, error) {
	return directory.Teacher{}, directory.ErrTeacherNotFound
}
func (fakeDirectoryRepo) ListTeachers(ctx context.Context, tenantID uuid.UUID) ([]directory.Teacher, error) {
	return nil, nil
}
func (fakeDirectoryRepo) ListTeachersByRole(ctx context.Context, tenantID uuid.UUID, role directory.Role) ([]directory.Teacher, error) {
	return nil, nil
}
func (fakeDirectoryRepo) GetStudentByESIS(ctx context.Context, tenantID uuid.UUID, esisCode string) (directory.Student, error) {
	return directory.Student{}, nil
}
func (fakeDirectoryRepo) ListStudentsByHomeroom(ctx context.Context, tenantID uuid.UUID, homeroom string) ([]directory.Student, error) {
	return nil, nil
}

type fakeWebhookRepo struct{}

func (fakeWebhookRepo) Upsert(ctx context.Context, r webhookingress.Record) (webhookingress.Record, error) {
	return r, nil
}
func (fakeWebhookRepo) FindByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (webhookingress.Record, bool, error) {
	return webhookingress.Record{}, false, nil
}
func (fakeWebhookRepo) InsertForwardLog(ctx context.Context, entry webhookingress.ForwardLogEntry) error {
	return nil
}
func (fakeWebhookRepo) ListApproved(ctx context.Context, tenantID uuid.UUID) ([]webhookingress.Record, error) {
	return nil, nil
}

func newTestScheduler(t *testing.T, tenants ...uuid.UUID) (*Scheduler, *fakeTenantRepo) {
	t.Helper()
	tenantRepo := &fakeTenantRepo{tenants: tenants}
	leavesEngine := leaves.NewEngine(fakeLeavesRepo{}, &attachments.Store{}, nil, nil, nil, nil, nil)
	whEngine := webhookingress.NewEngine(fakeWebhookRepo{}, directory.NewService(fakeDirectoryRepo{}), nil, nil, "", zerolog.Nop())
	return NewScheduler(tenantRepo, leavesEngine, whEngine, Config{
		ReminderSweepSchedule: "* * * * *",
		BackfillSchedule:      "* * * * *",
		Enabled:               true,
	}, zerolog.Nop()), tenantRepo
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.NotEmpty(t, cfg.ReminderSweepSchedule)
	assert.NotEmpty(t, cfg.BackfillSchedule)
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	s, _ := newTestScheduler(t, uuid.New())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Error(t, s.Start(), "starting twice should fail")

	<-s.Stop().Done()
	assert.False(t, s.IsRunning())
}

func TestScheduler_DisabledStartIsNoop(t *testing.T) {
	tenantRepo := &fakeTenantRepo{}
	leavesEngine := leaves.NewEngine(fakeLeavesRepo{}, &attachments.Store{}, nil, nil, nil, nil, nil)
	s := NewScheduler(tenantRepo, leavesEngine, nil, Config{Enabled: false}, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunReminderSweepNow_SweepsEveryActiveTenant(t *testing.T) {
	s, tenantRepo := newTestScheduler(t, uuid.New(), uuid.New())
	s.RunReminderSweepNow()
	assert.Equal(t, 1, tenantRepo.calls)
}

func TestScheduler_RunBackfillNow_SweepsEveryActiveTenant(t *testing.T) {
	s, tenantRepo := newTestScheduler(t, uuid.New())
	s.RunBackfillNow()
	assert.Equal(t, 1, tenantRepo.calls)
}

func TestScheduler_StopWithoutStartIsSafe(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := s.Stop()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected an already-done context")
	}
}
