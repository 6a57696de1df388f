package schedule

import (
	"fmt"
	"time"

	apperrors "hospital-backup/internal/errors"
)

// ComputeNextExecution returns the first instant strictly after now that matches the policy.
// The candidate is today at timeOfDay in now's location; WEEKLY moves it to dayOfWeek and
// MONTHLY to dayOfMonth (clamped to the month length) when given. While the candidate is not
// in the future it advances by one frequency unit: an hour, a day, a week or a month.
func ComputeNextExecution(freq Frequency, timeOfDay string, dayOfWeek, dayOfMonth *int, now time.Time) (time.Time, error) {
	freq, err := ParseFrequency(string(freq))
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(err.Error(), nil)
	}
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(err.Error(), nil)
	}
	if dayOfWeek != nil && (*dayOfWeek < 1 || *dayOfWeek > 7) {
		return time.Time{}, apperrors.NewValidationError(
			fmt.Sprintf("day of week %d must be between 1 (Monday) and 7 (Sunday)", *dayOfWeek), nil)
	}
	if dayOfMonth != nil && (*dayOfMonth < 1 || *dayOfMonth > 31) {
		return time.Time{}, apperrors.NewValidationError(
			fmt.Sprintf("day of month %d must be between 1 and 31", *dayOfMonth), nil)
	}

	loc := now.Location()
	year, month, day := now.Date()
	candidate := time.Date(year, month, day, hour, minute, 0, 0, loc)

	switch freq {
	case FrequencyHourly:
		if !candidate.After(now) {
			// whole hours between the candidate and now, plus one
			steps := int(now.Sub(candidate)/time.Hour) + 1
			candidate = candidate.Add(time.Duration(steps) * time.Hour)
		}
		for !candidate.After(now) {
			candidate = candidate.Add(time.Hour)
		}

	case FrequencyDaily:
		for !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}

	case FrequencyWeekly:
		if dayOfWeek != nil {
			shift := (isoWeekday(*dayOfWeek) - int(candidate.Weekday()) + 7) % 7
			candidate = candidate.AddDate(0, 0, shift)
		}
		for !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}

	case FrequencyMonthly:
		target := day
		if dayOfMonth != nil {
			target = *dayOfMonth
		}
		for offset := 0; ; offset++ {
			candidate = monthDay(year, month+time.Month(offset), target, hour, minute, loc)
			if candidate.After(now) {
				break
			}
		}
	}

	return candidate, nil
}

// isoWeekday converts 1 (Monday) .. 7 (Sunday) to time.Weekday
func isoWeekday(d int) int {
	return d % 7
}

// monthDay builds the given day of a month, clamped to the month's last day
func monthDay(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, hour, minute, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// Next computes the schedule's next execution after now
func (s *BackupSchedule) Next(now time.Time) (time.Time, error) {
	return ComputeNextExecution(s.Frequency, s.TimeOfDay, s.DayOfWeek, s.DayOfMonth, now)
}

// Upcoming lists the next n executions after now
func (s *BackupSchedule) Upcoming(now time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	at := now
	for i := 0; i < n; i++ {
		next, err := s.Next(at)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		at = next
	}
	return out, nil
}
