// Package schedule maintains the weekly period grid loaded from the source
// roster: for each (teacher, day, period) a class detail, plus the
// canonicalization table that maps inconsistent textual period labels onto
// a small ordered set of period codes.
package schedule

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/schoolsuite/absence-cover-duty/internal/clock"
)

// Period is a canonical period code. Unknown raw labels are preserved
// verbatim as their own Period value and sort after every known code.
type Period string

const (
	PeriodHomeroom Period = "Homeroom"
	PeriodP1       Period = "P1"
	PeriodP2       Period = "P2"
	PeriodP3       Period = "P3"
	PeriodP4       Period = "P4"
	PeriodP5       Period = "P5"
	PeriodP6       Period = "P6"
	PeriodP7       Period = "P7"
)

// orderedPeriods defines canonical sort order; unknown periods rank after
// all of these.
var orderedPeriods = []Period{
	PeriodHomeroom, PeriodP1, PeriodP2, PeriodP3, PeriodP4, PeriodP5, PeriodP6, PeriodP7,
}

// periodRank returns the sort rank of p, or len(orderedPeriods) if unknown.
func periodRank(p Period) int {
	for i, known := range orderedPeriods {
		if known == p {
			return i
		}
	}
	return len(orderedPeriods)
}

// periodCanonical maps literal raw labels (as they appear in the source
// roster) to their canonical period code.
var periodCanonical = map[string]Period{
	"Homeroom 7:30 - 7:45":        PeriodHomeroom,
	"P1 7:30 - 8:20":              PeriodP1,
	"Period 1 7:50 - 8:45":        PeriodP1,
	"P2 8:25 - 9:15":              PeriodP2,
	"Period 2 8:50 - 9:45":        PeriodP2,
	"P3 10:10 - 11:00":            PeriodP3,
	"Period 3 - G6 9:50 - 10:45":  PeriodP3,
	"Period 3 - G7 10:00 - 10:55": PeriodP3,
	"P4 - G6 11:45 - 12:40":       PeriodP4,
	"P4 - G7 11:00 - 11:55":       PeriodP4,
	"P4 11:05 - 11:55":            PeriodP4,
	"P5 12:00 - 12:50":            PeriodP5,
	"Period 5 12:55 - 1:45":       PeriodP5,
	"P6 1:00 - 1:50":              PeriodP6,
	"Period 6 1:50 - 2:45":        PeriodP6,
	"P7 1:55 - 2:45":              PeriodP7,
}

var leadingPeriodDigits = regexp.MustCompile(`^p\s*([1-7])\b`)

// CanonicalizePeriod maps a raw period label to its canonical code. Exact
// matches (including whitespace) hit the literal table first; otherwise a
// case-insensitive match is tried, then a "P1".."P7" prefix heuristic.
// Anything else is preserved verbatim as its own Period value.
func CanonicalizePeriod(raw string) Period {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canon, ok := periodCanonical[trimmed]; ok {
		return canon
	}
	lowered := strings.ToLower(trimmed)
	for alias, canon := range periodCanonical {
		if strings.ToLower(alias) == lowered {
			return canon
		}
	}
	if m := leadingPeriodDigits.FindStringSubmatch(lowered); m != nil {
		return Period("P" + m[1])
	}
	return Period(trimmed)
}

// gradePattern extracts a recognized grade number (6, 7, 10, 11, 12) from
// free-text class details.
var gradePattern = regexp.MustCompile(`(?:G)?(6|7|10|11|12)\b`)

// DetectGrade scans details for a recognized grade number.
func DetectGrade(details string) (int, bool) {
	m := gradePattern.FindStringSubmatch(details)
	if m == nil {
		return 0, false
	}
	g, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return g, true
}

// Cycle classifies a teacher's weekly load by the grades they teach, which
// in turn determines the maximum periods per weekday.
type Cycle string

const (
	CycleHigh    Cycle = "High"
	CycleMiddle  Cycle = "Middle"
	CycleMixed   Cycle = "Mixed"
	CycleGeneral Cycle = "General"
)

var middleGrades = map[int]bool{6: true, 7: true}
var highGrades = map[int]bool{10: true, 11: true, 12: true}

// CycleFromGrades derives a Cycle from the set of grades detected across a
// teacher's schedule entries.
func CycleFromGrades(grades []int) Cycle {
	if len(grades) == 0 {
		return CycleGeneral
	}
	hasMiddle, hasHigh := false, false
	for _, g := range grades {
		if middleGrades[g] {
			hasMiddle = true
		}
		if highGrades[g] {
			hasHigh = true
		}
	}
	switch {
	case hasMiddle && hasHigh:
		return CycleMixed
	case hasHigh:
		return CycleHigh
	case hasMiddle:
		return CycleMiddle
	default:
		return CycleGeneral
	}
}

// MaxPeriods returns the maximum schedulable periods for a teacher's cycle
// on the given weekday.
func MaxPeriods(cycle Cycle, day clock.DayCode) int {
	isFriday := day.IsFriday()
	switch cycle {
	case CycleHigh, CycleMixed:
		if isFriday {
			return 5
		}
		return 7
	default: // Middle, General
		if isFriday {
			return 3
		}
		return 6
	}
}

// Entry is one (teacher, day, period) class assignment row.
type Entry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	TeacherID     uuid.UUID
	TeacherName   string
	TeacherEmail  string
	Day           clock.DayCode
	Period        Period
	PeriodRaw     string
	Details       string
	Subject       string
	GradeDetected int
	HasGrade      bool
}

// OccupiedTeacher summarizes a teacher's class detail at a given slot, for
// TeachersOccupied responses.
type OccupiedTeacher struct {
	TeacherID    uuid.UUID
	TeacherName  string
	TeacherEmail string
	Period       Period
	Details      string
	Subject      string
}

// DaySummary reports a teacher's load on a given day.
type DaySummary struct {
	Day            clock.DayCode
	ScheduledCount int
	MaxPeriods     int
	FreePeriods    int
}

// Repository is the persistence boundary for the schedule catalog.
type Repository interface {
	ListEntries(ctx context.Context, tenantID uuid.UUID) ([]Entry, error)
	ReplaceEntries(ctx context.Context, tenantID uuid.UUID, entries []Entry) error
}

// Catalog serves schedule queries from an in-memory snapshot of Entry rows,
// rebuilt at boot and on explicit Refresh. Queries never touch the database
// directly — only Refresh does — so lookups stay cheap under concurrent
// cover-assignment fan-out.
type Catalog struct {
	repo Repository

	mu        sync.RWMutex
	byTeacher map[uuid.UUID][]Entry
	bySlot    map[slotKey][]Entry
	teachers  map[uuid.UUID]teacherMeta
}

type teacherMeta struct {
	name, email string
	grades      []int
	cycle       Cycle
}

type slotKey struct {
	day    clock.DayCode
	period Period
}

// NewCatalog constructs an empty Catalog. Call Refresh before serving
// queries.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{
		repo:      repo,
		byTeacher: make(map[uuid.UUID][]Entry),
		bySlot:    make(map[slotKey][]Entry),
		teachers:  make(map[uuid.UUID]teacherMeta),
	}
}

// Refresh reloads the catalog snapshot from the repository for tenantID.
func (c *Catalog) Refresh(ctx context.Context, tenantID uuid.UUID) error {
	entries, err := c.repo.ListEntries(ctx, tenantID)
	if err != nil {
		return err
	}

	byTeacher := make(map[uuid.UUID][]Entry)
	bySlot := make(map[slotKey][]Entry)
	teachers := make(map[uuid.UUID]teacherMeta)
	gradeSeen := make(map[uuid.UUID]map[int]bool)

	for _, e := range entries {
		byTeacher[e.TeacherID] = append(byTeacher[e.TeacherID], e)
		key := slotKey{day: e.Day, period: e.Period}
		bySlot[key] = append(bySlot[key], e)

		meta, ok := teachers[e.TeacherID]
		if !ok {
			meta = teacherMeta{name: e.TeacherName, email: e.TeacherEmail}
			gradeSeen[e.TeacherID] = make(map[int]bool)
		}
		if e.HasGrade && !gradeSeen[e.TeacherID][e.GradeDetected] {
			gradeSeen[e.TeacherID][e.GradeDetected] = true
			meta.grades = append(meta.grades, e.GradeDetected)
		}
		teachers[e.TeacherID] = meta
	}
	for id, meta := range teachers {
		meta.cycle = CycleFromGrades(meta.grades)
		teachers[id] = meta
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTeacher = byTeacher
	c.bySlot = bySlot
	c.teachers = teachers
	return nil
}

// allTeacherIDs returns every teacher id known to the catalog, regardless of
// whether they have any schedule entries.
func (c *Catalog) allTeacherIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.teachers))
	for id := range c.teachers {
		ids = append(ids, id)
	}
	return ids
}

// TeachersAvailable returns teachers with no schedule row at (day, period).
func (c *Catalog) TeachersAvailable(day clock.DayCode, period Period) []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	occupied := make(map[uuid.UUID]bool)
	for _, e := range c.bySlot[slotKey{day: day, period: period}] {
		occupied[e.TeacherID] = true
	}
	var available []uuid.UUID
	for _, id := range c.allTeacherIDs() {
		if !occupied[id] {
			available = append(available, id)
		}
	}
	return available
}

// TeachersOccupied returns the class detail for every teacher scheduled at
// (day, period).
func (c *Catalog) TeachersOccupied(day clock.DayCode, period Period) []OccupiedTeacher {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.bySlot[slotKey{day: day, period: period}]
	out := make([]OccupiedTeacher, 0, len(entries))
	for _, e := range entries {
		out = append(out, OccupiedTeacher{
			TeacherID:    e.TeacherID,
			TeacherName:  e.TeacherName,
			TeacherEmail: e.TeacherEmail,
			Period:       e.Period,
			Details:      e.Details,
			Subject:      e.Subject,
		})
	}
	return out
}

// DaySummaryFor computes a teacher's scheduled/free period count for day.
func (c *Catalog) DaySummaryFor(teacherID uuid.UUID, day clock.DayCode) DaySummary {
	c.mu.RLock()
	entries := c.byTeacher[teacherID]
	cycle := c.teachers[teacherID].cycle
	c.mu.RUnlock()

	scheduled := 0
	for _, e := range entries {
		if e.Day == day {
			scheduled++
		}
	}
	max := MaxPeriods(cycle, day)
	free := max - scheduled
	if free < 0 {
		free = 0
	}
	return DaySummary{Day: day, ScheduledCount: scheduled, MaxPeriods: max, FreePeriods: free}
}

// GradeLevels returns the detected grades for a teacher, in first-seen order.
func (c *Catalog) GradeLevels(teacherID uuid.UUID) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	grades := c.teachers[teacherID].grades
	out := make([]int, len(grades))
	copy(out, grades)
	return out
}

// TeacherCycle returns the derived Cycle for a teacher.
func (c *Catalog) TeacherCycle(teacherID uuid.UUID) Cycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.teachers[teacherID].cycle
}

// EntriesFor returns every schedule entry for a teacher, ordered by the
// caller's desired sort if any (callers sort; this just filters).
func (c *Catalog) EntriesFor(teacherID uuid.UUID) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.byTeacher[teacherID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// PeriodRank exposes periodRank for callers that need to sort mixed known
// and unknown period codes consistently with the catalog's own ordering.
func PeriodRank(p Period) int { return periodRank(p) }

// TotalEntries returns the number of schedule entries a teacher carries
// across the whole week — the fairness tie-break signal the cover
// assignment engine uses as a load proxy.
func (c *Catalog) TotalEntries(teacherID uuid.UUID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byTeacher[teacherID])
}

// KnownTeacherIDs returns every teacher id the catalog has metadata for.
func (c *Catalog) KnownTeacherIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(c.teachers))
	for id := range c.teachers {
		ids = append(ids, id)
	}
	return ids
}

// TeacherName returns the cached display name for a teacher, if known.
func (c *Catalog) TeacherName(teacherID uuid.UUID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.teachers[teacherID]
	return meta.name, ok
}

// TeacherEmail returns the cached email for a teacher, if known.
func (c *Catalog) TeacherEmail(teacherID uuid.UUID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.teachers[teacherID]
	return meta.email, ok
}

// EntriesForDay returns a teacher's schedule entries on a specific day,
// ordered by canonical period rank.
func (c *Catalog) EntriesForDay(teacherID uuid.UUID, day clock.DayCode) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Entry
	for _, e := range c.byTeacher[teacherID] {
		if e.Day == day {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return periodRank(out[i].Period) < periodRank(out[j].Period) })
	return out
}
