// Package thaidate converts between Buddhist-Era (BE) and Gregorian calendar dates
// as they appear in e-Claim exports.
//
// BE years are Gregorian + 543. Parsed values are always Gregorian; years above
// MinBuddhistYear are treated as BE and shifted back.
package thaidate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Offset is the difference between a BE year and its Gregorian year.
	Offset = 543
	// MinBuddhistYear is the smallest year interpreted as BE.
	MinBuddhistYear = 2400
)

// ErrInvalidDate indicates the input matches no supported date layout.
var ErrInvalidDate = errors.New("invalid date")

var thaiMonths = map[string]time.Month{
	"ม.ค.":  time.January,
	"ก.พ.":  time.February,
	"มี.ค.": time.March,
	"เม.ย.": time.April,
	"พ.ค.":  time.May,
	"มิ.ย.": time.June,
	"ก.ค.":  time.July,
	"ส.ค.":  time.August,
	"ก.ย.":  time.September,
	"ต.ค.":  time.October,
	"พ.ย.":  time.November,
	"ธ.ค.":  time.December,
}

// ToGregorianYear converts a BE year to Gregorian. Gregorian input is returned unchanged.
func ToGregorianYear(year int) int {
	if year > MinBuddhistYear {
		return year - Offset
	}
	return year
}

// ToBuddhistYear converts a Gregorian year to BE. BE input is returned unchanged.
func ToBuddhistYear(year int) int {
	if year > MinBuddhistYear {
		return year
	}
	return year + Offset
}

// Parse reads a date or date-time in one of the layouts found in e-Claim exports:
// "dd/mm/yyyy[ hh:mm[:ss]]", "yyyy-mm-dd[ hh:mm:ss]", "yyyy-mm-ddThh:mm:ss" and
// "d <thai month abbreviation> yyyy". The result is Gregorian in UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	datePart, timePart, _ := strings.Cut(strings.Replace(s, "T", " ", 1), " ")
	timePart = strings.TrimSpace(timePart)

	var (
		day, month, year int
		err              error
	)

	switch {
	case strings.Contains(datePart, "/"):
		day, month, year, err = splitDate(datePart, "/", false)
	case strings.Count(datePart, "-") == 2:
		day, month, year, err = splitDate(datePart, "-", true)
	default:
		return parseThaiMonth(s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	hour, minute, second, err := splitTime(timePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	return build(ToGregorianYear(year), month, day, hour, minute, second, s)
}

// Format renders t as "dd/mm/yyyy" with a BE year.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", t.Day(), int(t.Month()), ToBuddhistYear(t.Year()))
}

// FormatDateTime renders t as "dd/mm/yyyy hh:mm:ss" with a BE year.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %02d:%02d:%02d", Format(t), t.Hour(), t.Minute(), t.Second())
}

// FiscalYear returns the BE fiscal year containing t. Fiscal years start on 1 October.
func FiscalYear(t time.Time) int {
	year := t.Year()
	if t.Month() >= time.October {
		year++
	}
	return ToBuddhistYear(year)
}

// FiscalRange returns the first and last day of a fiscal year given in BE or Gregorian.
func FiscalRange(fiscalYear int) (time.Time, time.Time) {
	year := ToGregorianYear(fiscalYear)
	from := time.Date(year-1, time.October, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.September, 30, 0, 0, 0, 0, time.UTC)
	return from, to
}

func splitDate(s, sep string, yearFirst bool) (int, int, int, error) {
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return 0, 0, 0, ErrInvalidDate
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, err
		}
		nums[i] = n
	}

	if yearFirst {
		return nums[2], nums[1], nums[0], nil
	}
	return nums[0], nums[1], nums[2], nil
}

func splitTime(s string) (int, int, int, error) {
	if s == "" {
		return 0, 0, 0, nil
	}

	if i := strings.IndexAny(s, ".Z+"); i > 0 {
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, ErrInvalidDate
	}

	nums := []int{0, 0, 0}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, err
		}
		nums[i] = n
	}

	if nums[0] > 23 || nums[1] > 59 || nums[2] > 59 {
		return 0, 0, 0, ErrInvalidDate
	}
	return nums[0], nums[1], nums[2], nil
}

func parseThaiMonth(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	month, ok := thaiMonths[fields[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	var hour, minute, second int
	if len(fields) > 3 {
		if hour, minute, second, err = splitTime(fields[3]); err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
	}

	return build(ToGregorianYear(year), int(month), day, hour, minute, second, s)
}

func build(year, month, day, hour, minute, second int, raw string) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || year < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes overflow (31/02 becomes 03/03); reject it.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}
