// Package clock centralizes civil-time handling for the absence/cover/duty
// engine. All wall-clock comparisons the domain cares about — the sick-leave
// submission window, drive archive folder windows, and the duty "focus date"
// rollover — happen in the UAE zone. The database stores UTC; conversion to
// and from civil time happens only at this package's boundary.
package clock

import (
	"fmt"
	"time"
)

// Location is the fixed civil timezone for all domain-level time comparisons.
var Location = mustLoadLocation()

func mustLoadLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Dubai")
	if err != nil {
		// UAE has no DST and a fixed UTC+4 offset; fall back to a static
		// offset if the tzdata database isn't available in the runtime image.
		return time.FixedZone("+04", 4*60*60)
	}
	return loc
}

// DayCode is one of the five school weekday codes.
type DayCode string

const (
	Monday    DayCode = "Mo"
	Tuesday   DayCode = "Tu"
	Wednesday DayCode = "We"
	Thursday  DayCode = "Th"
	Friday    DayCode = "Fr"
)

var dayCodeByWeekday = map[time.Weekday]DayCode{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
}

// DayCodeFor returns the weekday code for t, and ok=false for Sat/Sun.
func DayCodeFor(t time.Time) (DayCode, bool) {
	code, ok := dayCodeByWeekday[t.In(Location).Weekday()]
	return code, ok
}

// IsFriday reports whether the day code is Friday.
func (d DayCode) IsFriday() bool { return d == Friday }

// Now returns the current instant viewed in the UAE zone.
func Now() time.Time { return time.Now().In(Location) }

// ToCivil converts any instant to the UAE zone.
func ToCivil(t time.Time) time.Time { return t.In(Location) }

// sickLeaveWindowStart and sickLeaveWindowEnd bound the forbidden submission
// window [05:30, 08:00) for same-day sick leave requests.
var (
	sickLeaveWindowStart = civilTimeOfDay{hour: 5, minute: 30}
	sickLeaveWindowEnd   = civilTimeOfDay{hour: 8, minute: 0}
)

type civilTimeOfDay struct {
	hour, minute int
}

func (c civilTimeOfDay) minutes() int { return c.hour*60 + c.minute }

// InSickLeaveForbiddenWindow reports whether, at instant now (any timezone),
// a sick-leave submission for leaveDate (also any timezone, compared by civil
// date only) must be refused: the request is for today in UAE civil time and
// the current UAE civil time falls in [05:30, 08:00).
func InSickLeaveForbiddenWindow(now, leaveDate time.Time) bool {
	civilNow := now.In(Location)
	civilLeaveDate := leaveDate.In(Location)
	if !SameCivilDate(civilNow, civilLeaveDate) {
		return false
	}
	minutesOfDay := civilNow.Hour()*60 + civilNow.Minute()
	return minutesOfDay >= sickLeaveWindowStart.minutes() && minutesOfDay < sickLeaveWindowEnd.minutes()
}

// SameCivilDate compares two instants by their UAE calendar date only.
func SameCivilDate(a, b time.Time) bool {
	a, b = a.In(Location), b.In(Location)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfCivilDay returns midnight UAE time for the calendar date of t.
func StartOfCivilDay(t time.Time) time.Time {
	t = t.In(Location)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// DriveWindow is a rolling half-month archival folder boundary.
type DriveWindow struct {
	Start time.Time
	End   time.Time
}

// FolderName renders the window as "YYYY-MM-DD_to_YYYY-MM-DD".
func (w DriveWindow) FolderName() string {
	return fmt.Sprintf("%s_to_%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Contains reports whether d (compared by civil date) falls within the window.
func (w DriveWindow) Contains(d time.Time) bool {
	civil := StartOfCivilDay(d)
	return !civil.Before(w.Start) && civil.Before(w.End)
}

// WindowFor computes the rolling half-month window containing date d:
//   - if d.Day() >= 15, the window starts on the 15th of d's month;
//   - otherwise it starts on the 15th of the previous month.
//
// The window ends on the 16th of the month following its start.
func WindowFor(d time.Time) DriveWindow {
	civil := d.In(Location)
	year, month, day := civil.Date()

	startYear, startMonth := year, month
	if day < 15 {
		startMonth--
		if startMonth < time.January {
			startMonth = time.December
			startYear--
		}
	}

	start := time.Date(startYear, startMonth, 15, 0, 0, 0, 0, Location)
	end := time.Date(startYear, startMonth+1, 16, 0, 0, 0, 0, Location)
	return DriveWindow{Start: start, End: end}
}

// dutyFocusRolloverHour is the UAE hour at/after which "today" for daily-duty
// planning purposes becomes tomorrow.
const dutyFocusRolloverHour = 15

// DutyFocusDate returns the date daily-duty screens should default to when
// viewed at instant now: today before 15:00 UAE, tomorrow at/after 15:00.
func DutyFocusDate(now time.Time) time.Time {
	civil := now.In(Location)
	focus := StartOfCivilDay(civil)
	if civil.Hour() >= dutyFocusRolloverHour {
		focus = focus.AddDate(0, 0, 1)
	}
	return focus
}
