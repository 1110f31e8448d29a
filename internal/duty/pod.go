package duty

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
)

// SlotType distinguishes a period-duty pod slot from the single grade
// break slot.
type SlotType string

const (
	SlotPeriod SlotType = "period"
	SlotBreak  SlotType = "break"
)

// BreakLocation is one of the fixed break-duty posts, required for grades
// 6, 7, and 10.
type BreakLocation string

const (
	BreakBathroom    BreakLocation = "bathroom"
	BreakCanteenGate BreakLocation = "canteen_gate"
	BreakOutsideArea BreakLocation = "outside_area"
	BreakCanteenDoor BreakLocation = "canteen_door"
	BreakStore       BreakLocation = "store"
	BreakEndCanteen  BreakLocation = "end_canteen"
	BreakShop        BreakLocation = "shop"
)

// BreakLocationLabels renders each BreakLocation for display, ported from
// grade_lead.py's BREAK_LOCATION_CHOICES.
var BreakLocationLabels = map[BreakLocation]string{
	BreakBathroom:    "Bathroom",
	BreakCanteenGate: "Canteen Gate",
	BreakOutsideArea: "Outside Area",
	BreakCanteenDoor: "Canteen Door",
	BreakStore:       "Store",
	BreakEndCanteen:  "End of Canteen",
	BreakShop:        "Shop",
}

func validBreakLocation(loc BreakLocation) bool {
	_, ok := BreakLocationLabels[loc]
	return ok
}

// BreakPodKey is the synthetic pod name for the single grade-wide break
// slot, ported from grade_lead.py's BREAK_POD_KEY.
const BreakPodKey = "GRADE_BREAK"

// BreakLabel is the display label for the break slot.
const BreakLabel = "Grade Break Duty"

// GradePeriods gives the period count N for each pod grade: periods 1..N
// are valid for that grade's period slots. Ported from grade_lead.py's
// GRADE_PERIODS.
var GradePeriods = map[int]int{
	6:  6,
	7:  6,
	10: 7,
	11: 7,
	12: 7,
}

// BreakLocationGrades is the set of grades for which a break-slot location
// is mandatory rather than optional, ported from grade_lead.py's
// BREAK_LOCATION_GRADES.
var BreakLocationGrades = map[int]bool{6: true, 7: true, 10: true}

// ValidGrade reports whether grade is one of the five pod grades.
func ValidGrade(grade int) bool {
	_, ok := GradePeriods[grade]
	return ok
}

// PodsForGrade returns the two pod labels for grade, e.g. "G6 Pod 1",
// "G6 Pod 2" — grade_lead.py's naming convention, which (unlike
// pod_duty.py's plain "Pod N") disambiguates pods across grades.
func PodsForGrade(grade int) []string {
	return []string{
		fmt.Sprintf("G%d Pod 1", grade),
		fmt.Sprintf("G%d Pod 2", grade),
	}
}

func validPod(grade int, pod string) bool {
	for _, p := range PodsForGrade(grade) {
		if p == pod {
			return true
		}
	}
	return false
}

// PodAssignment is one teacher's posting to one grade-pod period slot or
// the grade's single break slot.
type PodAssignment struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	AssignmentDate     time.Time
	Grade              int
	Pod                string
	SlotType           SlotType
	Period             int // 0 for break slots
	TeacherID          uuid.UUID
	TeacherName        string
	BreakLocation      BreakLocation
	CreatedByTeacherID uuid.UUID
	CreatedAt          time.Time
	Acknowledgement    Acknowledgement
}

// slotIdentity is the (slot_type, pod, period) key a teacher may occupy
// once, mirroring grade_lead.py's _slot_key.
type slotIdentity struct {
	slotType SlotType
	pod      string
	period   int
}

// DesiredPodSlot is one (teacher, slot) pairing submitted to ReplacePod or
// SingleAssignPod.
type DesiredPodSlot struct {
	SlotType      SlotType
	Pod           string
	Period        int
	TeacherID     uuid.UUID
	BreakLocation BreakLocation
}

func (e *Engine) validatePodSlotShape(grade int, slot DesiredPodSlot) error {
	if !ValidGrade(grade) {
		return ErrInvalidGrade
	}
	switch slot.SlotType {
	case SlotPeriod:
		maxPeriod := GradePeriods[grade]
		if slot.Period < 1 || slot.Period > maxPeriod {
			return ErrInvalidPeriod
		}
		if !validPod(grade, slot.Pod) {
			return ErrInvalidPod
		}
	case SlotBreak:
		if slot.Pod != BreakPodKey {
			return ErrInvalidPod
		}
		if BreakLocationGrades[grade] {
			if !validBreakLocation(slot.BreakLocation) {
				return ErrBreakLocationRequired
			}
		} else if slot.BreakLocation != "" && !validBreakLocation(slot.BreakLocation) {
			return ErrInvalidLocation
		}
	default:
		return fmt.Errorf("duty: invalid slot type %q", slot.SlotType)
	}
	return nil
}

func (e *Engine) roleAllowedForSlot(teacher directory.Teacher, slotType SlotType) error {
	if teacher.Role.ExcludedFromDailyDuty() {
		return ErrRoleExcluded
	}
	if slotType == SlotBreak && teacher.Role.ExcludedFromBreakDuty() {
		return ErrRoleExcluded
	}
	return nil
}

// ReplaceResult reports what a bulk-replace actually did, plus any
// per-teacher conflicts it skipped rather than failing the whole batch on —
// mirroring grade_lead.py's assign_bulk, which returns {"status":"ok",
// "errors":[...]} instead of rejecting the request outright.
type ReplaceResult struct {
	Inserted []PodAssignment
	Removed  int
	Errors   []string
}

// ReplacePod diffs the desired slot set for (tenant, grade, date) against
// the persisted roster: rows present in the persisted set but absent from
// desired are deleted, rows present in desired but absent from persisted
// are validated and inserted. A conflicting insert (teacher not found, role
// excluded, or, for a period slot, the teacher already holds that period in
// this grade's roster that date or earlier in the same batch) is recorded
// in ReplaceResult.Errors and skipped rather than
// aborting the whole batch, matching assign_bulk's warn-and-continue
// behaviour.
func (e *Engine) ReplacePod(ctx context.Context, tenantID uuid.UUID, grade int, date time.Time, desired []DesiredPodSlot, actorTeacherID uuid.UUID) (ReplaceResult, error) {
	if !ValidGrade(grade) {
		return ReplaceResult{}, ErrInvalidGrade
	}
	date = clock.StartOfCivilDay(date)

	existing, err := e.repo.ListPodForDate(ctx, tenantID, date, grade)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("duty: list existing pod assignments: %w", err)
	}

	existingByKey := make(map[slotIdentity]map[uuid.UUID]PodAssignment)
	for _, a := range existing {
		key := slotIdentity{slotType: a.SlotType, pod: a.Pod, period: a.Period}
		if existingByKey[key] == nil {
			existingByKey[key] = make(map[uuid.UUID]PodAssignment)
		}
		existingByKey[key][a.TeacherID] = a
	}

	desiredByKey := make(map[slotIdentity]map[uuid.UUID]DesiredPodSlot)
	for _, d := range desired {
		if err := e.validatePodSlotShape(grade, d); err != nil {
			return ReplaceResult{}, err
		}
		key := slotIdentity{slotType: d.SlotType, pod: d.Pod, period: d.Period}
		if desiredByKey[key] == nil {
			desiredByKey[key] = make(map[uuid.UUID]DesiredPodSlot)
		}
		desiredByKey[key][d.TeacherID] = d
	}

	var result ReplaceResult

	for key, teachers := range existingByKey {
		desiredTeachers := desiredByKey[key]
		for teacherID, assignment := range teachers {
			if _, keep := desiredTeachers[teacherID]; !keep {
				if err := e.repo.DeletePod(ctx, tenantID, assignment.ID); err != nil {
					return result, fmt.Errorf("duty: delete removed pod assignment: %w", err)
				}
				result.Removed++
			}
		}
	}

	// periodHolders tracks, across the whole batch, which teacher already
	// holds which period that day — a teacher may not hold two pods' worth
	// of the same period, and ReplacePod only ever touches one grade at a
	// time so this starts from this grade's own existing rows.
	periodHolders := make(map[uuid.UUID]map[int]bool)
	for _, a := range existing {
		if a.SlotType != SlotPeriod {
			continue
		}
		if periodHolders[a.TeacherID] == nil {
			periodHolders[a.TeacherID] = make(map[int]bool)
		}
		periodHolders[a.TeacherID][a.Period] = true
	}

	for key, teachers := range desiredByKey {
		for teacherID, slot := range teachers {
			if existing, ok := existingByKey[key][teacherID]; ok {
				if slot.SlotType == SlotBreak && slot.BreakLocation != "" && slot.BreakLocation != existing.BreakLocation {
					if err := e.repo.UpdatePodBreakLocation(ctx, tenantID, existing.ID, slot.BreakLocation); err != nil {
						return result, fmt.Errorf("duty: update break location: %w", err)
					}
				}
				continue
			}

			teacher, err := e.directory.Teacher(ctx, tenantID, teacherID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("teacher %s could not be found", teacherID))
				continue
			}
			if err := e.roleAllowedForSlot(teacher, slot.SlotType); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s's role is excluded from this duty", teacher.Name))
				continue
			}
			if slot.SlotType == SlotPeriod && periodHolders[teacherID][slot.Period] {
				result.Errors = append(result.Errors, fmt.Sprintf("%s is already assigned to period %d on %s", teacher.Name, slot.Period, date.Format("2006-01-02")))
				continue
			}

			assignment := PodAssignment{
				ID:                 uuid.New(),
				TenantID:           tenantID,
				AssignmentDate:     date,
				Grade:              grade,
				Pod:                key.pod,
				SlotType:           key.slotType,
				Period:             key.period,
				TeacherID:          teacher.ID,
				TeacherName:        teacher.Name,
				BreakLocation:      slot.BreakLocation,
				CreatedByTeacherID: actorTeacherID,
				CreatedAt:          time.Now().UTC(),
				Acknowledgement:    pendingAcknowledgement(teacher.ID),
			}
			if err := e.repo.InsertPod(ctx, assignment); err != nil {
				return result, fmt.Errorf("duty: insert pod assignment: %w", err)
			}
			if key.slotType == SlotPeriod {
				if periodHolders[teacherID] == nil {
					periodHolders[teacherID] = make(map[int]bool)
				}
				periodHolders[teacherID][key.period] = true
			}
			result.Inserted = append(result.Inserted, assignment)
		}
	}

	return result, nil
}

// SingleAssignPod assigns one teacher to one slot, mirroring
// grade_lead.py's assign_teacher route: it reports the same conflict
// explicitly rather than silently skipping it, since a single-assign call
// has exactly one outcome to report to its caller.
func (e *Engine) SingleAssignPod(ctx context.Context, tenantID uuid.UUID, grade int, date time.Time, slot DesiredPodSlot, actorTeacherID uuid.UUID) (PodAssignment, error) {
	if err := e.validatePodSlotShape(grade, slot); err != nil {
		return PodAssignment{}, err
	}
	date = clock.StartOfCivilDay(date)

	teacher, err := e.directory.Teacher(ctx, tenantID, slot.TeacherID)
	if err != nil {
		return PodAssignment{}, fmt.Errorf("duty: lookup teacher: %w", err)
	}
	if err := e.roleAllowedForSlot(teacher, slot.SlotType); err != nil {
		return PodAssignment{}, err
	}

	_, found, err := e.repo.FindPodSlot(ctx, tenantID, date, teacher.ID, slot.SlotType, slot.Period)
	if err != nil {
		return PodAssignment{}, fmt.Errorf("duty: find existing pod slot: %w", err)
	}
	if found {
		return PodAssignment{}, ErrDuplicateAssignment
	}

	assignment := PodAssignment{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		AssignmentDate:     date,
		Grade:              grade,
		Pod:                slot.Pod,
		SlotType:           slot.SlotType,
		Period:             slot.Period,
		TeacherID:          teacher.ID,
		TeacherName:        teacher.Name,
		BreakLocation:      slot.BreakLocation,
		CreatedByTeacherID: actorTeacherID,
		CreatedAt:          time.Now().UTC(),
		Acknowledgement:    pendingAcknowledgement(teacher.ID),
	}
	if err := e.repo.InsertPod(ctx, assignment); err != nil {
		return PodAssignment{}, fmt.Errorf("duty: insert pod assignment: %w", err)
	}
	return assignment, nil
}

// RemovePod deletes a pod-duty assignment.
func (e *Engine) RemovePod(ctx context.Context, tenantID, assignmentID uuid.UUID) error {
	return e.repo.DeletePod(ctx, tenantID, assignmentID)
}

// AcknowledgePod transitions a pod-duty assignment's acknowledgement,
// identical in rule to AcknowledgeDaily.
func (e *Engine) AcknowledgePod(ctx context.Context, tenantID, assignmentID, actorTeacherID uuid.UUID, isAdmin bool, status AckStatus, note string) error {
	assignment, err := e.repo.GetPod(ctx, tenantID, assignmentID)
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
	return e.repo.UpdatePodAck(ctx, tenantID, assignmentID, ack)
}

// AvailableForPod lists candidates for a (grade, date, slot) pod posting,
// ordered first by "not yet assigned any of this grade's pod slots that day" and then
// alphabetically by name. It fetches the external availability API for
// (day_code, period) when the slot is a period slot (break slots have no
// period to query and draw from the full eligible roster); an unreachable
// or empty API response falls back to the full known-teacher roster minus
// role exclusions, exactly as duty_admin.py's _build_availability_options
// degrades.
func (e *Engine) AvailableForPod(ctx context.Context, tenantID uuid.UUID, grade int, date time.Time, slot DesiredPodSlot) ([]directory.Teacher, error) {
	if !ValidGrade(grade) {
		return nil, ErrInvalidGrade
	}
	date = clock.StartOfCivilDay(date)

	var eligible []directory.Teacher
	var err error
	if slot.SlotType == SlotBreak {
		eligible, err = e.directory.EligibleForBreakDuty(ctx, tenantID)
	} else {
		eligible, err = e.directory.EligibleForDailyDuty(ctx, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("duty: list eligible teachers: %w", err)
	}

	candidates := eligible
	if slot.SlotType == SlotPeriod && e.availability != nil {
		dayCode, ok := clock.DayCodeFor(date)
		if ok {
			records, apiErr := e.availability.FetchAvailable(ctx, string(dayCode), fmt.Sprintf("P%d", slot.Period))
			if apiErr == nil && len(records) > 0 {
				byEmail := make(map[string]bool, len(records))
				for _, rec := range records {
					byEmail[strings.ToLower(strings.TrimSpace(rec.Email))] = true
				}
				var matched []directory.Teacher
				for _, t := range eligible {
					if byEmail[strings.ToLower(strings.TrimSpace(t.Email))] {
						matched = append(matched, t)
					}
				}
				if len(matched) > 0 {
					candidates = matched
				}
			}
		}
	}

	assignedToday := make(map[uuid.UUID]bool)
	existing, err := e.repo.ListPodForDate(ctx, tenantID, date, grade)
	if err == nil {
		for _, a := range existing {
			assignedToday[a.TeacherID] = true
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ai, aj := assignedToday[candidates[i].ID], assignedToday[candidates[j].ID]
		if ai != aj {
			return !ai && aj // not-yet-assigned sorts first
		}
		return strings.ToLower(candidates[i].Name) < strings.ToLower(candidates[j].Name)
	})

	return candidates, nil
}
