// Package duty schedules and tracks the two duty rosters every campus
// runs day to day: gate/courtyard/floor "daily duty" (morning and
// dismissal) and grade-pod "break duty" run by each grade's lead teacher.
// Both rosters share one acknowledgement shape (pending/present/
// unavailable) and one role-exclusion model, grounded on
// original_source/apps/behavior/{duty_admin.py,pod_duty.py,grade_lead.py}.
//
// Unlike the Python original, which tracks acknowledgement in a separate
// DailyDutyAcknowledgement/GradeLeadDutyAcknowledgement table keyed by
// assignment id, this package stores it as columns directly on the
// assignment row: there is exactly one acknowledgement per assignment, so
// the extra table bought nothing but an extra join on every read.
package duty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/directory"
)

// DutyType distinguishes the two daily-duty shifts.
type DutyType string

const (
	DutyMorning   DutyType = "morning"
	DutyDismissal DutyType = "dismissal"
)

// Location is one of the fixed daily-duty posts.
type Location string

const (
	LocationGate1          Location = "gate_1"
	LocationGate2          Location = "gate_2"
	LocationGate3          Location = "gate_3"
	LocationGate4          Location = "gate_4"
	LocationReceptionGate  Location = "reception_gate"
	LocationG12Courtyard   Location = "g12_courtyard"
	LocationG6G7Courtyard  Location = "g6_g7_courtyard"
	LocationGroundFloor    Location = "ground_floor"
	LocationFirstFloor     Location = "first_floor"
	LocationSecondFloor    Location = "second_floor"
	LocationCanteen        Location = "canteen"
)

// LocationLabels renders each Location for display, ported from
// duty_admin.py's LOCATIONS_MAP.
var LocationLabels = map[Location]string{
	LocationGate1:         "Gate 1",
	LocationGate2:         "Gate 2",
	LocationGate3:         "Gate 3",
	LocationGate4:         "Gate 4",
	LocationReceptionGate: "Reception Gate",
	LocationG12Courtyard:  "G12 Courtyard",
	LocationG6G7Courtyard: "G6/G7 Courtyard",
	LocationGroundFloor:   "Ground Floor",
	LocationFirstFloor:    "First Floor",
	LocationSecondFloor:   "Second Floor",
	LocationCanteen:       "Canteen",
}

// ValidLocation reports whether loc is one of the fixed daily-duty posts.
func ValidLocation(loc Location) bool {
	_, ok := LocationLabels[loc]
	return ok
}

// AckStatus is the state of a teacher's acknowledgement of an assignment.
type AckStatus string

const (
	AckPending     AckStatus = "pending"
	AckPresent     AckStatus = "present"
	AckUnavailable AckStatus = "unavailable"
)

// AckStatusLabels mirrors duty_admin.py's STATUS_LABELS.
var AckStatusLabels = map[AckStatus]string{
	AckPending:     "Pending",
	AckPresent:     "Checked in",
	AckUnavailable: "Excused",
}

// ValidAckStatus reports whether status is one of the three known values.
func ValidAckStatus(status AckStatus) bool {
	_, ok := AckStatusLabels[status]
	return ok
}

// Acknowledgement is embedded on both DailyAssignment and PodAssignment.
type Acknowledgement struct {
	Status         AckStatus
	Note           string
	UpdatedAt      time.Time
	OwnerTeacherID uuid.UUID
}

// pendingAcknowledgement is the zero-value acknowledgement every new
// assignment starts with.
func pendingAcknowledgement(ownerTeacherID uuid.UUID) Acknowledgement {
	return Acknowledgement{Status: AckPending, OwnerTeacherID: ownerTeacherID}
}

var (
	// ErrNotFound is returned when an assignment lookup matches no row.
	ErrNotFound = errors.New("duty: assignment not found")
	// ErrDuplicateAssignment is returned when a teacher is already on the
	// requested slot for that date.
	ErrDuplicateAssignment = errors.New("duty: teacher already assigned to this slot")
	// ErrRoleExcluded is returned when the teacher's role bars them from
	// the requested duty type.
	ErrRoleExcluded = errors.New("duty: role excluded from this duty")
	// ErrInvalidStatus is returned when an acknowledgement status is not
	// one of pending/present/unavailable.
	ErrInvalidStatus = errors.New("duty: invalid acknowledgement status")
	// ErrNoteRequired is returned when an unavailable acknowledgement is
	// submitted without a reason.
	ErrNoteRequired = errors.New("duty: a note is required to mark a duty unavailable")
	// ErrForbidden is returned when the acting teacher may not modify this
	// assignment's acknowledgement.
	ErrForbidden = errors.New("duty: not permitted to update this assignment")
	// ErrInvalidLocation is returned for an unrecognized daily-duty post.
	ErrInvalidLocation = errors.New("duty: invalid location")
	// ErrInvalidGrade is returned for a grade outside the five pod grades.
	ErrInvalidGrade = errors.New("duty: invalid grade")
	// ErrInvalidPod is returned when a pod label doesn't belong to the
	// requested grade.
	ErrInvalidPod = errors.New("duty: invalid pod")
	// ErrInvalidPeriod is returned when a period is out of range for the
	// grade's period count.
	ErrInvalidPeriod = errors.New("duty: invalid period")
	// ErrBreakLocationRequired is returned when a break slot for a grade
	// that requires one is submitted without a location.
	ErrBreakLocationRequired = errors.New("duty: break location is required for this grade")
)

// Repository is the persistence boundary for both duty rosters.
type Repository interface {
	InsertDaily(ctx context.Context, a DailyAssignment) error
	GetDaily(ctx context.Context, tenantID, id uuid.UUID) (DailyAssignment, error)
	FindDaily(ctx context.Context, tenantID uuid.UUID, date time.Time, dutyType DutyType, teacherID uuid.UUID) (DailyAssignment, bool, error)
	ListDailyRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DailyAssignment, error)
	UpdateDailyAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error
	DeleteDaily(ctx context.Context, tenantID, id uuid.UUID) error

	ListPodForDate(ctx context.Context, tenantID uuid.UUID, date time.Time, grade int) ([]PodAssignment, error)
	GetPod(ctx context.Context, tenantID, id uuid.UUID) (PodAssignment, error)
	FindPodSlot(ctx context.Context, tenantID uuid.UUID, date time.Time, teacherID uuid.UUID, slotType SlotType, period int) (PodAssignment, bool, error)
	InsertPod(ctx context.Context, a PodAssignment) error
	DeletePod(ctx context.Context, tenantID, id uuid.UUID) error
	UpdatePodBreakLocation(ctx context.Context, tenantID, id uuid.UUID, location BreakLocation) error
	UpdatePodAck(ctx context.Context, tenantID, id uuid.UUID, ack Acknowledgement) error
}

// AvailabilityFetcher answers which teachers report themselves available
// for a given weekday/period, per the external availability API.
type AvailabilityFetcher interface {
	FetchAvailable(ctx context.Context, dayCode string, period string) ([]AvailabilityRecord, error)
}

// AvailabilityRecord is one entry of the external API's "available" array.
type AvailabilityRecord struct {
	Email       string
	LevelLabel  string
	Subject     string
	PrimaryClass string
}

// Engine implements both duty rosters against a Repository and the shared
// identity directory, the same dependency shape internal/covers.Engine
// uses.
type Engine struct {
	repo         Repository
	directory    *directory.Service
	availability AvailabilityFetcher
}

// NewEngine constructs an Engine. availability may be nil if the pod-duty
// availability-matching operation is never called (e.g. in tests that only
// exercise daily duty).
func NewEngine(repo Repository, dir *directory.Service, availability AvailabilityFetcher) *Engine {
	return &Engine{repo: repo, directory: dir, availability: availability}
}
