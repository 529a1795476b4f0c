// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package epitime implements arithmetic on calendar-encoded integer time
// values: days as YYYYMMDD, epiweeks as YYYYWW (MMWR numbering: weeks run
// Sunday through Saturday, week 1 is the week containing January 4th),
// months as YYYYMM, years as YYYY, and hours as YYYYMMDDHH.
//
// Integer encodings are NOT contiguous: 20210228 + 1 day is 20210301, and
// 202053 + 1 week may be 202101. All shifting and differencing goes
// through real calendar math.
package epitime

import (
	"fmt"
	"time"

	"github.com/tomtom215/epivault/internal/models"
)

const daysPerWeek = 7

// DayToTime converts a YYYYMMDD integer to a UTC midnight time.
func DayToTime(day int64) (time.Time, error) {
	y := int(day / 10000)
	m := int(day/100) % 100
	d := int(day % 100)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components; reject them instead.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid day value %d", day)
	}
	return t, nil
}

// TimeToDay converts a time to its YYYYMMDD integer.
func TimeToDay(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// ShiftDay moves a YYYYMMDD value by n calendar days (n may be negative).
func ShiftDay(day int64, n int) (int64, error) {
	t, err := DayToTime(day)
	if err != nil {
		return 0, err
	}
	return TimeToDay(t.AddDate(0, 0, n)), nil
}

// DayDiff returns a − b in calendar days.
func DayDiff(a, b int64) (int64, error) {
	ta, err := DayToTime(a)
	if err != nil {
		return 0, err
	}
	tb, err := DayToTime(b)
	if err != nil {
		return 0, err
	}
	return int64(ta.Sub(tb).Hours() / 24), nil
}

// epiweekStart returns the first day (Sunday) of MMWR week `week` of `year`.
// Week 1 is the Sunday-through-Saturday week containing January 4th.
func epiweekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	week1 := jan4.AddDate(0, 0, -int(jan4.Weekday()))
	return week1.AddDate(0, 0, daysPerWeek*(week-1))
}

// WeeksInYear returns the number of MMWR weeks (52 or 53) in an epi year.
func WeeksInYear(year int) int {
	days := int(epiweekStart(year+1, 1).Sub(epiweekStart(year, 1)).Hours() / 24)
	return days / daysPerWeek
}

// WeekToTime converts a YYYYWW epiweek to the UTC midnight of its first day.
func WeekToTime(week int64) (time.Time, error) {
	y := int(week / 100)
	w := int(week % 100)
	if w < 1 || w > WeeksInYear(y) {
		return time.Time{}, fmt.Errorf("invalid epiweek value %d", week)
	}
	return epiweekStart(y, w), nil
}

// TimeToWeek converts a time to its YYYYWW epiweek.
func TimeToWeek(t time.Time) int64 {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// The epi year can differ from the calendar year near January 1st.
	for _, y := range []int{t.Year() + 1, t.Year(), t.Year() - 1} {
		start := epiweekStart(y, 1)
		if !t.Before(start) {
			w := int(t.Sub(start).Hours()/24)/daysPerWeek + 1
			return int64(y)*100 + int64(w)
		}
	}
	// Unreachable: t is always on or after epiweekStart(t.Year()-1, 1).
	return 0
}

// ShiftWeek moves a YYYYWW value by n epiweeks (n may be negative).
func ShiftWeek(week int64, n int) (int64, error) {
	t, err := WeekToTime(week)
	if err != nil {
		return 0, err
	}
	return TimeToWeek(t.AddDate(0, 0, daysPerWeek*n)), nil
}

// WeekDiff returns a − b in epiweeks.
func WeekDiff(a, b int64) (int64, error) {
	ta, err := WeekToTime(a)
	if err != nil {
		return 0, err
	}
	tb, err := WeekToTime(b)
	if err != nil {
		return 0, err
	}
	return int64(ta.Sub(tb).Hours()/24) / daysPerWeek, nil
}

// HourToTime converts a YYYYMMDDHH integer to a UTC time.
func HourToTime(hour int64) (time.Time, error) {
	h := int(hour % 100)
	if h > 23 {
		return time.Time{}, fmt.Errorf("invalid hour value %d", hour)
	}
	day, err := DayToTime(hour / 100)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour value %d", hour)
	}
	return day.Add(time.Duration(h) * time.Hour), nil
}

// TimeToHour converts a time to its YYYYMMDDHH integer.
func TimeToHour(t time.Time) int64 {
	return TimeToDay(t)*100 + int64(t.Hour())
}

// Shift moves a time value by n units of its resolution.
func Shift(tt models.TimeType, value int64, n int) (int64, error) {
	switch tt {
	case models.TimeTypeDay:
		return ShiftDay(value, n)
	case models.TimeTypeWeek:
		return ShiftWeek(value, n)
	case models.TimeTypeMonth:
		y := value / 100
		m := value%100 - 1
		if m < 0 || m > 11 {
			return 0, fmt.Errorf("invalid month value %d", value)
		}
		total := y*12 + m + int64(n)
		return (total/12)*100 + total%12 + 1, nil
	case models.TimeTypeYear:
		return value + int64(n), nil
	case models.TimeTypeHour:
		t, err := HourToTime(value)
		if err != nil {
			return 0, err
		}
		return TimeToHour(t.Add(time.Duration(n) * time.Hour)), nil
	}
	return 0, fmt.Errorf("unknown time type %q", tt)
}

// Diff returns a − b in units of the given resolution.
func Diff(tt models.TimeType, a, b int64) (int64, error) {
	switch tt {
	case models.TimeTypeDay:
		return DayDiff(a, b)
	case models.TimeTypeWeek:
		return WeekDiff(a, b)
	case models.TimeTypeMonth:
		return (a/100)*12 + a%100 - ((b/100)*12 + b%100), nil
	case models.TimeTypeYear:
		return a - b, nil
	case models.TimeTypeHour:
		ta, err := HourToTime(a)
		if err != nil {
			return 0, err
		}
		tb, err := HourToTime(b)
		if err != nil {
			return 0, err
		}
		return int64(ta.Sub(tb).Hours()), nil
	}
	return 0, fmt.Errorf("unknown time type %q", tt)
}
