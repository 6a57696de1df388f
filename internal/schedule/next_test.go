package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
)

func intPtr(v int) *int { return &v }

// Sunday 2026-01-18 10:30 UTC
var sundayMorning = time.Date(2026, 1, 18, 10, 30, 0, 0, time.UTC)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2026, month, day, hour, minute, 0, 0, time.UTC)
}

func TestComputeNextExecution(t *testing.T) {
	tests := []struct {
		name       string
		freq       Frequency
		timeOfDay  string
		dayOfWeek  *int
		dayOfMonth *int
		now        time.Time
		expected   time.Time
	}{
		{name: "daily later today", freq: FrequencyDaily, timeOfDay: "23:15", now: sundayMorning, expected: at(1, 18, 23, 15)},
		{name: "daily already passed", freq: FrequencyDaily, timeOfDay: "02:00", now: sundayMorning, expected: at(1, 19, 2, 0)},
		{name: "daily at now is not in the future", freq: FrequencyDaily, timeOfDay: "10:30", now: sundayMorning, expected: at(1, 19, 10, 30)},
		{name: "hourly later today", freq: FrequencyHourly, timeOfDay: "10:45", now: sundayMorning, expected: at(1, 18, 10, 45)},
		{name: "hourly advances by hours", freq: FrequencyHourly, timeOfDay: "02:00", now: sundayMorning, expected: at(1, 18, 11, 0)},
		{name: "hourly same minute as now", freq: FrequencyHourly, timeOfDay: "09:30", now: sundayMorning, expected: at(1, 18, 11, 30)},
		{name: "hourly wraps to the next day", freq: FrequencyHourly, timeOfDay: "00:10", now: at(1, 18, 23, 50), expected: at(1, 19, 0, 10)},
		{name: "hourly waits for the configured hour", freq: FrequencyHourly, timeOfDay: "14:30", now: at(1, 18, 1, 0), expected: at(1, 18, 14, 30)},
		{name: "weekly without weekday", freq: FrequencyWeekly, timeOfDay: "02:00", now: sundayMorning, expected: at(1, 25, 2, 0)},
		{name: "weekly on wednesday", freq: FrequencyWeekly, timeOfDay: "08:00", dayOfWeek: intPtr(3), now: sundayMorning, expected: at(1, 21, 8, 0)},
		{name: "weekly on sunday later today", freq: FrequencyWeekly, timeOfDay: "12:00", dayOfWeek: intPtr(7), now: sundayMorning, expected: at(1, 18, 12, 0)},
		{name: "weekly on sunday already passed", freq: FrequencyWeekly, timeOfDay: "09:00", dayOfWeek: intPtr(7), now: sundayMorning, expected: at(1, 25, 9, 0)},
		{name: "weekly on monday", freq: FrequencyWeekly, timeOfDay: "01:00", dayOfWeek: intPtr(1), now: sundayMorning, expected: at(1, 19, 1, 0)},
		{name: "monthly without day uses today", freq: FrequencyMonthly, timeOfDay: "02:00", now: sundayMorning, expected: at(2, 18, 2, 0)},
		{name: "monthly later this month", freq: FrequencyMonthly, timeOfDay: "03:00", dayOfMonth: intPtr(31), now: sundayMorning, expected: at(1, 31, 3, 0)},
		{name: "monthly already passed", freq: FrequencyMonthly, timeOfDay: "03:00", dayOfMonth: intPtr(15), now: sundayMorning, expected: at(2, 15, 3, 0)},
		{name: "monthly clamps to short months", freq: FrequencyMonthly, timeOfDay: "03:00", dayOfMonth: intPtr(31), now: at(1, 31, 5, 0), expected: at(2, 28, 3, 0)},
		{name: "monthly crosses the year", freq: FrequencyMonthly, timeOfDay: "00:00", dayOfMonth: intPtr(1), now: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), expected: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "lowercase frequency", freq: "daily", timeOfDay: "23:15", now: sundayMorning, expected: at(1, 18, 23, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := ComputeNextExecution(tt.freq, tt.timeOfDay, tt.dayOfWeek, tt.dayOfMonth, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
			assert.True(t, next.After(tt.now))
		})
	}
}

func TestComputeNextExecution_KeepsLocation(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	now := time.Date(2026, 1, 18, 1, 30, 0, 0, paris)

	next, err := ComputeNextExecution(FrequencyDaily, "02:00", nil, nil, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 1, 18, 2, 0, 0, 0, paris), next)
	assert.Equal(t, paris, next.Location())
}

func TestComputeNextExecution_AlwaysInTheFuture(t *testing.T) {
	times := []string{"00:00", "06:59", "12:30", "23:59"}
	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)

	for _, freq := range Frequencies {
		for _, tod := range times {
			for step := 0; step < 96; step++ {
				now := start.Add(time.Duration(step) * 37 * time.Minute)
				next, err := ComputeNextExecution(freq, tod, intPtr(5), intPtr(30), now)
				require.NoError(t, err)
				require.True(t, next.After(now), "%s %s at %s gave %s", freq, tod, now, next)
			}
		}
	}
}

func TestComputeNextExecution_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		freq       Frequency
		timeOfDay  string
		dayOfWeek  *int
		dayOfMonth *int
	}{
		{name: "unknown frequency", freq: "YEARLY", timeOfDay: "02:00"},
		{name: "hour out of range", freq: FrequencyDaily, timeOfDay: "25:00"},
		{name: "missing padding", freq: FrequencyDaily, timeOfDay: "7:05"},
		{name: "not a time", freq: FrequencyDaily, timeOfDay: "noon"},
		{name: "weekday out of range", freq: FrequencyWeekly, timeOfDay: "02:00", dayOfWeek: intPtr(8)},
		{name: "day of month out of range", freq: FrequencyMonthly, timeOfDay: "02:00", dayOfMonth: intPtr(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeNextExecution(tt.freq, tt.timeOfDay, tt.dayOfWeek, tt.dayOfMonth, sundayMorning)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
}

func TestUpcoming(t *testing.T) {
	s := &BackupSchedule{Frequency: FrequencyWeekly, TimeOfDay: "08:00", DayOfWeek: intPtr(3)}

	next, err := s.Upcoming(sundayMorning, 3)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{at(1, 21, 8, 0), at(1, 28, 8, 0), at(2, 4, 8, 0)}, next)
}
