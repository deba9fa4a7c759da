package contextutils

import (
	"time"
)

// BusinessDateLayout is the canonical YYYY-MM-DD layout used for all daily semantics.
const BusinessDateLayout = "2006-01-02"

// DefaultBusinessTimezone is the IANA timezone anchoring all "daily" behavior.
const DefaultBusinessTimezone = "America/New_York"

// BusinessLocation resolves an IANA timezone name, falling back to the default
// business timezone (and finally UTC) when the name is empty or invalid.
func BusinessLocation(timezone string) *time.Location {
	if timezone == "" {
		timezone = DefaultBusinessTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, err = time.LoadLocation(DefaultBusinessTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return loc
}

// BusinessDate returns the current calendar date as observed in the given IANA
// timezone, formatted YYYY-MM-DD. Timezone arithmetic is DST-correct via the
// IANA database, not a fixed UTC offset.
func BusinessDate(timezone string) string {
	return BusinessDateAt(time.Now(), timezone)
}

// BusinessDateAt returns the calendar date of t as observed in the given timezone.
func BusinessDateAt(t time.Time, timezone string) string {
	return t.In(BusinessLocation(timezone)).Format(BusinessDateLayout)
}

// ParseBusinessDate parses a YYYY-MM-DD date string as midnight in the given timezone.
func ParseBusinessDate(dateStr, timezone string) (time.Time, error) {
	t, err := time.ParseInLocation(BusinessDateLayout, dateStr, BusinessLocation(timezone))
	if err != nil {
		return time.Time{}, WrapError(ErrInvalidFormat, "invalid date format")
	}
	return t, nil
}

// DaysBetween returns the whole calendar days from one business-date string to
// another (to - from). Both dates are interpreted in the same timezone, so DST
// transitions cannot produce off-by-one results.
func DaysBetween(from, to, timezone string) (int, error) {
	loc := BusinessLocation(timezone)
	fromT, err := time.ParseInLocation(BusinessDateLayout, from, loc)
	if err != nil {
		return 0, WrapError(ErrInvalidFormat, "invalid date format")
	}
	toT, err := time.ParseInLocation(BusinessDateLayout, to, loc)
	if err != nil {
		return 0, WrapError(ErrInvalidFormat, "invalid date format")
	}
	// Compare date components rather than dividing elapsed hours, so a 23- or
	// 25-hour DST day still counts as exactly one day.
	fromMid := time.Date(fromT.Year(), fromT.Month(), fromT.Day(), 0, 0, 0, 0, time.UTC)
	toMid := time.Date(toT.Year(), toT.Month(), toT.Day(), 0, 0, 0, 0, time.UTC)
	return int(toMid.Sub(fromMid).Hours() / 24), nil
}

// EndOfBusinessDay returns the first instant of the next calendar day in the
// given timezone, relative to t. Cache entries keyed by business date expire here.
func EndOfBusinessDay(t time.Time, timezone string) time.Time {
	loc := BusinessLocation(timezone)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// AddBusinessDays returns the business-date string n calendar days after the given date.
func AddBusinessDays(dateStr string, n int, timezone string) (string, error) {
	t, err := ParseBusinessDate(dateStr, timezone)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(BusinessDateLayout), nil
}
