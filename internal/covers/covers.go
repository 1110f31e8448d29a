// Package covers computes per-period cover-teacher assignments for an
// approved leave. The selection algorithm — subject/cycle tiering, a
// two-cover-per-day cap, a high-school near-max-load guard, and
// course-total/name tie-breaking — is ported directly from
// cover_assignment.py's CoverAssignmentManager.
package covers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/schedule"
)

// Assignment is one computed cover slot, unique per (date, request_id,
// slot_key).
type Assignment struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Date             time.Time
	SlotKey          string
	RequestID        uuid.UUID
	AbsentTeacherID  uuid.UUID
	AbsentName       string
	AbsentEmail      string
	CoverTeacherID   uuid.UUID
	CoverName        string
	CoverEmail       string
	ClassSubject     string
	ClassGrade       string
	ClassDetails     string
	PeriodLabel      string
	PeriodRaw        string
	ClassTime        string
	CoverFreePeriods int
	CoverScheduled   int
	CoverMaxPeriods  int
	DayLabel         string
	CoverAssignedAt  time.Time
}

// EditableFields are the columns an admin may patch via Update, matching
// ALLOWED_EDIT_FIELDS.
var EditableFields = map[string]bool{
	"status": true, "cover_teacher": true, "cover_email": true,
	"cover_subject": true, "class_subject": true, "class_grade": true,
	"class_details": true, "period_label": true, "period_raw": true,
	"class_time": true,
}

// AbsenceLookup answers which teacher emails are already absent on a date,
// so a candidate cover is never also an absent teacher that day.
type AbsenceLookup interface {
	AbsentEmailsOnDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (map[string]bool, error)
}

// LeaveForAssignment is the subset of an approved LeaveRequest the engine
// needs to compute cover assignments.
type LeaveForAssignment struct {
	RequestID   uuid.UUID
	TeacherID   uuid.UUID
	TeacherName string
	Subject     string
	LeaveStart  time.Time
	LeaveEnd    time.Time
}

// Repository persists and queries computed assignments.
type Repository interface {
	ExistingSlotKeys(ctx context.Context, tenantID, requestID uuid.UUID, date time.Time) (map[string]bool, error)
	Insert(ctx context.Context, a Assignment) error
	CoversForTeacherOnDate(ctx context.Context, tenantID, teacherID uuid.UUID, date time.Time) (int, error)
	ListExcludedTeachers(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]bool, error)
	Update(ctx context.Context, tenantID, assignmentID uuid.UUID, fields map[string]string) error
	ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Assignment, error)
	RecordGap(ctx context.Context, g GapReport) error
	ListGaps(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]GapReport, error)
}

// Engine computes and edits cover assignments against the schedule catalog
// and identity directory. It keeps one *schedule.Catalog per tenant,
// refreshed at the start of every AssignForLeave call, the same
// no-in-process-cache-but-refresh-on-use stance cmd/api's per-tenant
// catalog registry follows.
type Engine struct {
	scheduleRepo schedule.Repository
	directory    *directory.Service
	absences     AbsenceLookup
	repo         Repository
	log          zerolog.Logger

	catalogsMu sync.Mutex
	catalogs   map[uuid.UUID]*schedule.Catalog
}

// NewEngine constructs an Engine.
func NewEngine(scheduleRepo schedule.Repository, dir *directory.Service, absences AbsenceLookup, repo Repository, log zerolog.Logger) *Engine {
	return &Engine{
		scheduleRepo: scheduleRepo,
		directory:    dir,
		absences:     absences,
		repo:         repo,
		log:          log,
		catalogs:     make(map[uuid.UUID]*schedule.Catalog),
	}
}

// catalogFor returns tenantID's schedule catalog, refreshed against the
// current database state.
func (e *Engine) catalogFor(ctx context.Context, tenantID uuid.UUID) (*schedule.Catalog, error) {
	e.catalogsMu.Lock()
	cat, ok := e.catalogs[tenantID]
	if !ok {
		cat = schedule.NewCatalog(e.scheduleRepo)
		e.catalogs[tenantID] = cat
	}
	e.catalogsMu.Unlock()

	if err := cat.Refresh(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("covers: refresh catalog: %w", err)
	}
	return cat, nil
}

// slotDetail is one period's worth of absent-teacher class detail to cover,
// including the synthetic "General" fallback used when no schedule row
// exists for the absent teacher that day.
type slotDetail struct {
	periodLabel string
	periodRaw   string
	subject     string
	grade       string
	details     string
	classTime   string
}

func slotKey(d slotDetail) string {
	label := strings.TrimSpace(d.periodLabel)
	if label == "" {
		label = "General"
	}
	raw := strings.TrimSpace(d.periodRaw)
	if raw == "" {
		raw = label
	}
	return fmt.Sprintf("%s|%s|%s", label, raw, strings.TrimSpace(d.classTime))
}

// AssignForLeave computes cover assignments for every weekday in
// [leave.LeaveStart, leave.LeaveEnd], skipping Saturday/Sunday. A slot with
// no eligible candidate is logged, recorded as a GapReport, and skipped; a
// lookup or insert error stops the run and returns the assignments made so
// far together with the error.
func (e *Engine) AssignForLeave(ctx context.Context, tenantID uuid.UUID, leave LeaveForAssignment) ([]Assignment, error) {
	cat, err := e.catalogFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	excluded, err := e.repo.ListExcludedTeachers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("covers: list excluded teachers: %w", err)
	}

	var results []Assignment

	for day := clock.StartOfCivilDay(leave.LeaveStart); !day.After(clock.StartOfCivilDay(leave.LeaveEnd)); day = day.AddDate(0, 0, 1) {
		dayCode, ok := clock.DayCodeFor(day)
		if !ok {
			continue
		}
		sessionCovers := make(map[uuid.UUID]int)

		details := e.detailsFor(cat, leave.TeacherID, dayCode, leave.Subject)
		absentEmails, err := e.absences.AbsentEmailsOnDate(ctx, tenantID, day)
		if err != nil {
			return results, fmt.Errorf("covers: absent emails for %s: %w", day.Format("2006-01-02"), err)
		}
		absentEmails[strings.ToLower(strings.TrimSpace(leave.TeacherName))] = true

		existingSlots, err := e.repo.ExistingSlotKeys(ctx, tenantID, leave.RequestID, day)
		if err != nil {
			return results, fmt.Errorf("covers: existing slot keys for %s: %w", day.Format("2006-01-02"), err)
		}

		hsMaxSlots := 7
		if dayCode.IsFriday() {
			hsMaxSlots = 5
		}

		for _, detail := range details {
			key := slotKey(detail)
			if existingSlots[key] {
				continue
			}

			cover, err := e.selectCover(ctx, cat, tenantID, dayCode, day, detail, leave, absentEmails, excluded, sessionCovers, hsMaxSlots)
			if err != nil {
				return results, err
			}
			if cover == nil {
				e.log.Warn().
					Str("tenant_id", tenantID.String()).
					Str("request_id", leave.RequestID.String()).
					Str("date", day.Format("2006-01-02")).
					Str("slot_key", key).
					Msg("no cover candidate found")

				gap := GapReport{
					TenantID:  tenantID,
					RequestID: leave.RequestID,
					Date:      day,
					SlotKey:   key,
					Reason:    "no eligible candidate: every teacher was absent, excluded, or at capacity",
				}
				if err := e.repo.RecordGap(ctx, gap); err != nil {
					e.log.Warn().Err(err).Str("tenant_id", tenantID.String()).Str("request_id", leave.RequestID.String()).Msg("failed to record cover gap")
				}
				continue
			}
			sessionCovers[cover.teacherID]++

			assignment := e.buildAssignment(cat, tenantID, day, dayCode, key, leave, detail, *cover)
			if err := e.repo.Insert(ctx, assignment); err != nil {
				return results, fmt.Errorf("covers: insert assignment: %w", err)
			}
			results = append(results, assignment)
		}
	}

	return results, nil
}

// detailsFor returns the absent teacher's class details on dayCode,
// falling back to a single synthetic "General" slot when the teacher has
// no schedule rows that day (e.g. an incomplete roster import).
func (e *Engine) detailsFor(cat *schedule.Catalog, teacherID uuid.UUID, day clock.DayCode, fallbackSubject string) []slotDetail {
	entries := cat.EntriesForDay(teacherID, day)
	if len(entries) == 0 {
		subject := fallbackSubject
		if subject == "" {
			subject = "General"
		}
		return []slotDetail{{
			periodLabel: "General",
			periodRaw:   "General",
			subject:     subject,
			details:     "Full day absence fallback",
			classTime:   "All day",
		}}
	}

	out := make([]slotDetail, 0, len(entries))
	for _, en := range entries {
		grade := ""
		if en.HasGrade {
			grade = fmt.Sprintf("%d", en.GradeDetected)
		}
		out = append(out, slotDetail{
			periodLabel: string(en.Period),
			periodRaw:   en.PeriodRaw,
			subject:     en.Subject,
			grade:       grade,
			details:     en.Details,
			classTime:   en.PeriodRaw,
		})
	}
	return out
}

type selectedCover struct {
	teacherID uuid.UUID
	name      string
	email     string
}

// priorityTier mirrors _priority_tier: subject+cycle match beats subject
// match alone, which beats cycle match alone, which beats neither.
func priorityTier(matchSubject, cycleOverlap bool) int {
	switch {
	case matchSubject && cycleOverlap:
		return 1
	case matchSubject:
		return 2
	case cycleOverlap:
		return 3
	default:
		return 4
	}
}

func (e *Engine) selectCover(
	ctx context.Context,
	cat *schedule.Catalog,
	tenantID uuid.UUID,
	day clock.DayCode,
	date time.Time,
	detail slotDetail,
	leave LeaveForAssignment,
	absentEmails map[string]bool,
	excluded map[uuid.UUID]bool,
	sessionCovers map[uuid.UUID]int,
	hsMaxSlots int,
) (*selectedCover, error) {
	period := schedule.CanonicalizePeriod(detail.periodLabel)
	var availableSet map[uuid.UUID]bool
	if period != "" {
		available := cat.TeachersAvailable(day, period)
		availableSet = make(map[uuid.UUID]bool, len(available))
		for _, id := range available {
			availableSet[id] = true
		}
	}

	absentTeacherCycle := schedule.CycleFromGrades(cat.GradeLevels(leave.TeacherID))
	targetCycles := cycleSet(absentTeacherCycle)
	targetSubject := strings.ToLower(strings.TrimSpace(firstNonEmpty(detail.subject, leave.Subject)))

	type candidate struct {
		teacherID   uuid.UUID
		name, email string
		tier        int
		totalLoad   int
	}
	var candidates []candidate

	for _, teacherID := range cat.KnownTeacherIDs() {
		name, _ := cat.TeacherName(teacherID)
		email, _ := cat.TeacherEmail(teacherID)
		emailLower := strings.ToLower(strings.TrimSpace(email))

		if emailLower == "" || teacherID == leave.TeacherID {
			continue
		}
		if excluded[teacherID] {
			continue
		}
		if absentEmails[emailLower] {
			continue
		}
		if availableSet != nil && !availableSet[teacherID] {
			continue
		}

		daySummary := cat.DaySummaryFor(teacherID, day)
		if daySummary.FreePeriods <= 0 {
			continue
		}

		dbCovers, err := e.repo.CoversForTeacherOnDate(ctx, tenantID, teacherID, date)
		if err != nil {
			return nil, fmt.Errorf("covers: covers-for-teacher lookup: %w", err)
		}
		totalCovers := dbCovers + sessionCovers[teacherID]
		if totalCovers >= 2 {
			continue
		}

		teacherCycle := cat.TeacherCycle(teacherID)
		teacherCycles := cycleSet(teacherCycle)
		if teacherCycles[schedule.CycleHigh] {
			occupiedSlots := daySummary.ScheduledCount + totalCovers
			if occupiedSlots+1 >= hsMaxSlots {
				continue
			}
		}

		matchSubject := targetSubject != "" && teacherSubjectOf(cat, teacherID) == targetSubject
		cycleOverlap := overlaps(targetCycles, teacherCycles)
		tier := priorityTier(matchSubject, cycleOverlap)

		candidates = append(candidates, candidate{
			teacherID: teacherID,
			name:      name,
			email:     email,
			tier:      tier,
			totalLoad: cat.TotalEntries(teacherID),
		})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].tier != candidates[j].tier {
			return candidates[i].tier < candidates[j].tier
		}
		if candidates[i].totalLoad != candidates[j].totalLoad {
			return candidates[i].totalLoad < candidates[j].totalLoad
		}
		return candidates[i].name < candidates[j].name
	})

	best := candidates[0]
	return &selectedCover{teacherID: best.teacherID, name: best.name, email: best.email}, nil
}

func teacherSubjectOf(cat *schedule.Catalog, teacherID uuid.UUID) string {
	entries := cat.EntriesFor(teacherID)
	for _, en := range entries {
		if en.Subject != "" {
			return strings.ToLower(strings.TrimSpace(en.Subject))
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func cycleSet(c schedule.Cycle) map[schedule.Cycle]bool {
	switch c {
	case schedule.CycleMixed:
		return map[schedule.Cycle]bool{schedule.CycleHigh: true, schedule.CycleMiddle: true}
	case schedule.CycleHigh, schedule.CycleMiddle, schedule.CycleGeneral:
		return map[schedule.Cycle]bool{c: true}
	default:
		return map[schedule.Cycle]bool{schedule.CycleGeneral: true}
	}
}

func overlaps(a, b map[schedule.Cycle]bool) bool {
	for c := range a {
		if b[c] {
			return true
		}
	}
	return false
}

func (e *Engine) buildAssignment(cat *schedule.Catalog, tenantID uuid.UUID, day time.Time, dayCode clock.DayCode, key string, leave LeaveForAssignment, detail slotDetail, cover selectedCover) Assignment {
	daySummary := cat.DaySummaryFor(cover.teacherID, dayCode)
	return Assignment{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Date:             day,
		SlotKey:          key,
		RequestID:        leave.RequestID,
		AbsentTeacherID:  leave.TeacherID,
		AbsentName:       leave.TeacherName,
		CoverTeacherID:   cover.teacherID,
		CoverName:        cover.name,
		CoverEmail:       cover.email,
		ClassSubject:     firstNonEmpty(detail.subject, leave.Subject, "General"),
		ClassGrade:       detail.grade,
		ClassDetails:     detail.details,
		PeriodLabel:      detail.periodLabel,
		PeriodRaw:        detail.periodRaw,
		ClassTime:        detail.classTime,
		CoverFreePeriods: daySummary.FreePeriods,
		CoverScheduled:   daySummary.ScheduledCount,
		CoverMaxPeriods:  daySummary.MaxPeriods,
		DayLabel:         string(dayCode),
		CoverAssignedAt:  time.Now().UTC(),
	}
}

// Update applies an admin edit to an existing assignment, restricted to
// EditableFields.
func (e *Engine) Update(ctx context.Context, tenantID, assignmentID uuid.UUID, fields map[string]string) error {
	filtered := make(map[string]string, len(fields))
	for k, v := range fields {
		if EditableFields[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return e.repo.Update(ctx, tenantID, assignmentID, filtered)
}

// ListForDateRange returns computed cover assignments in [from, to], for
// the admin calendar view.
func (e *Engine) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Assignment, error) {
	return e.repo.ListForDateRange(ctx, tenantID, from, to)
}

// GapReport records one (requestID, date, slotKey) combination where no
// cover candidate could be found — a supplement beyond the Python
// original's bare warning log, so admins have a queryable backlog instead
// of needing to grep logs. AssignForLeave both logs and persists one of
// these every time selectCover returns no candidate.
type GapReport struct {
	TenantID  uuid.UUID
	RequestID uuid.UUID
	Date      time.Time
	SlotKey   string
	Reason    string
}

// ListGaps returns the unfilled-cover backlog in [from, to], for the admin
// dashboard to surface instead of requiring a log search.
func (e *Engine) ListGaps(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]GapReport, error) {
	return e.repo.ListGaps(ctx, tenantID, from, to)
}
