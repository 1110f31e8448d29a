package duty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
)

// DailyAssignment is one teacher's posting to one gate/courtyard/floor for
// one morning or dismissal shift.
type DailyAssignment struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	AssignmentDate     time.Time
	DutyType           DutyType
	Location           Location
	TeacherID          uuid.UUID
	TeacherName        string
	CreatedByTeacherID uuid.UUID
	CreatedAt          time.Time
	Acknowledgement    Acknowledgement
}

// AssignDailyInput describes a request to post a teacher to a daily-duty
// slot.
type AssignDailyInput struct {
	AssignmentDate     time.Time
	DutyType           DutyType
	Location           Location
	TeacherID          uuid.UUID
	CreatedByTeacherID uuid.UUID
}

// AssignDaily posts a teacher to a daily-duty slot, refusing duplicates per
// (date, duty_type, teacher) and any role excluded from daily duty
// (administrator), per duty_admin.py's assign route.
func (e *Engine) AssignDaily(ctx context.Context, tenantID uuid.UUID, in AssignDailyInput) (DailyAssignment, error) {
	if !ValidLocation(in.Location) {
		return DailyAssignment{}, ErrInvalidLocation
	}
	if in.DutyType != DutyMorning && in.DutyType != DutyDismissal {
		return DailyAssignment{}, fmt.Errorf("duty: invalid duty type %q", in.DutyType)
	}

	teacher, err := e.directory.Teacher(ctx, tenantID, in.TeacherID)
	if err != nil {
		return DailyAssignment{}, fmt.Errorf("duty: lookup teacher: %w", err)
	}
	if teacher.Role.ExcludedFromDailyDuty() {
		return DailyAssignment{}, ErrRoleExcluded
	}

	date := clock.StartOfCivilDay(in.AssignmentDate)
	_, exists, err := e.repo.FindDaily(ctx, tenantID, date, in.DutyType, in.TeacherID)
	if err != nil {
		return DailyAssignment{}, fmt.Errorf("duty: find existing daily assignment: %w", err)
	}
	if exists {
		return DailyAssignment{}, ErrDuplicateAssignment
	}

	assignment := DailyAssignment{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		AssignmentDate:     date,
		DutyType:           in.DutyType,
		Location:           in.Location,
		TeacherID:          teacher.ID,
		TeacherName:        teacher.Name,
		CreatedByTeacherID: in.CreatedByTeacherID,
		CreatedAt:          time.Now().UTC(),
		Acknowledgement:    pendingAcknowledgement(teacher.ID),
	}
	if err := e.repo.InsertDaily(ctx, assignment); err != nil {
		return DailyAssignment{}, fmt.Errorf("duty: insert daily assignment: %w", err)
	}
	return assignment, nil
}

// RemoveDaily deletes a daily-duty assignment.
func (e *Engine) RemoveDaily(ctx context.Context, tenantID, assignmentID uuid.UUID) error {
	return e.repo.DeleteDaily(ctx, tenantID, assignmentID)
}

// ListDailyWeek lists every daily-duty assignment in [weekStart, weekStart+7d).
func (e *Engine) ListDailyWeek(ctx context.Context, tenantID uuid.UUID, weekStart time.Time) ([]DailyAssignment, error) {
	from := clock.StartOfCivilDay(weekStart)
	to := from.AddDate(0, 0, 7)
	return e.repo.ListDailyRange(ctx, tenantID, from, to)
}

// AcknowledgeDaily transitions a daily-duty assignment's acknowledgement.
// Only the assigned teacher or an admin may call this; status must be one
// of pending/present/unavailable, and unavailable requires a note, mirroring
// duty_admin.py's update-status route.
func (e *Engine) AcknowledgeDaily(ctx context.Context, tenantID, assignmentID, actorTeacherID uuid.UUID, isAdmin bool, status AckStatus, note string) error {
	assignment, err := e.repo.GetDaily(ctx, tenantID, assignmentID)
	if err != nil {
		return err
	}
	if assignment.TeacherID != actorTeacherID && !isAdmin {
		return ErrForbidden
	}
	if !ValidAckStatus(status) {
		return ErrInvalidStatus
	}
	note = strings.TrimSpace(note)
	if status == AckUnavailable && note == "" {
		return ErrNoteRequired
	}
	if status != AckUnavailable {
		note = ""
	}

	ack := Acknowledgement{
		Status:         status,
		Note:           note,
		UpdatedAt:      time.Now().UTC(),
		OwnerTeacherID: assignment.TeacherID,
	}
	return e.repo.UpdateDailyAck(ctx, tenantID, assignmentID, ack)
}
