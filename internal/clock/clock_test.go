package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func civil(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, Location)
}

func TestInSickLeaveForbiddenWindow(t *testing.T) {
	leaveDate := civil(2026, time.March, 10, 0, 0)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just before window", civil(2026, time.March, 10, 5, 29), false},
		{"window open", civil(2026, time.March, 10, 5, 30), true},
		{"mid window", civil(2026, time.March, 10, 6, 45), true},
		{"window close boundary", civil(2026, time.March, 10, 8, 0), false},
		{"after window", civil(2026, time.March, 10, 8, 1), false},
		{"different day entirely", civil(2026, time.March, 9, 6, 0), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InSickLeaveForbiddenWindow(tc.now, leaveDate))
		})
	}
}

func TestInSickLeaveForbiddenWindow_CrossTimezoneInput(t *testing.T) {
	// 05:30 UAE == 01:30 UTC
	now := time.Date(2026, time.March, 10, 1, 30, 0, 0, time.UTC)
	leaveDate := time.Date(2026, time.March, 10, 1, 30, 0, 0, time.UTC)
	assert.True(t, InSickLeaveForbiddenWindow(now, leaveDate))
}

func TestWindowFor(t *testing.T) {
	tests := []struct {
		name        string
		date        time.Time
		wantFolder  string
		wantContain time.Time
	}{
		{
			name:        "15th starts its own window",
			date:        civil(2026, time.March, 15, 0, 0),
			wantFolder:  "2026-03-15_to_2026-04-16",
			wantContain: civil(2026, time.March, 20, 0, 0),
		},
		{
			name:        "day before 15th falls in previous month's window",
			date:        civil(2026, time.March, 14, 0, 0),
			wantFolder:  "2026-02-15_to_2026-03-16",
			wantContain: civil(2026, time.March, 1, 0, 0),
		},
		{
			name:        "january rolls back to december of prior year",
			date:        civil(2026, time.January, 1, 0, 0),
			wantFolder:  "2025-12-15_to_2026-01-16",
			wantContain: civil(2026, time.January, 1, 0, 0),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := WindowFor(tc.date)
			assert.Equal(t, tc.wantFolder, w.FolderName())
			assert.True(t, w.Contains(tc.wantContain))
		})
	}
}

func TestWindowFor_EndExclusive(t *testing.T) {
	w := WindowFor(civil(2026, time.March, 15, 0, 0))
	assert.False(t, w.Contains(civil(2026, time.April, 16, 0, 0)), "end date is exclusive")
	assert.True(t, w.Contains(civil(2026, time.April, 15, 0, 0)))
}

func TestDutyFocusDate(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before rollover", civil(2026, time.March, 10, 14, 59), civil(2026, time.March, 10, 0, 0)},
		{"at rollover", civil(2026, time.March, 10, 15, 0), civil(2026, time.March, 11, 0, 0)},
		{"after rollover", civil(2026, time.March, 10, 23, 0), civil(2026, time.March, 11, 0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, DutyFocusDate(tc.now).Equal(tc.want))
		})
	}
}

func TestDayCodeFor(t *testing.T) {
	mon := civil(2026, time.March, 9, 10, 0)
	code, ok := DayCodeFor(mon)
	require.True(t, ok)
	assert.Equal(t, Monday, code)

	sat := civil(2026, time.March, 14, 10, 0)
	_, ok = DayCodeFor(sat)
	assert.False(t, ok)
}
