package schedule

import (
	"fmt"
	"strings"
	"time"
)

// ParseError indicates a raw date/time string could not be resolved to an instant.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return fmt.Sprintf("unparseable time %q", e.Raw) }

// Layouts that carry explicit UTC/offset information parse as absolute
// instants. Everything else is a wall-clock reading that only has meaning
// once a timezone is assumed.
var (
	instantLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04Z07:00",
		"2006-01-02 15:04:05Z07:00",
	}
	wallLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	clockLayouts = []string{"15:04:05", "15:04"}
)

// ToInstant resolves a raw date/time string to an absolute UTC instant.
// Strings with an explicit offset are taken at face value; anything else is
// interpreted in assumed (nil means UTC). Comparing two times that were parsed
// under different implicit timezone assumptions is the bug class this exists
// to prevent: normalize here first, then compare.
func ToInstant(raw string, assumed *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ParseError{Raw: raw}
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if assumed == nil {
		assumed = time.UTC
	}
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, s, assumed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Raw: raw}
}

// InstantToZoned renders an instant in the given zone. The result refers to
// the same instant, only the wall-clock reading changes.
func InstantToZoned(t time.Time, zone *time.Location) time.Time {
	if zone == nil {
		zone = time.UTC
	}
	return t.In(zone)
}

// ConvertWallTime re-anchors a bare time-of-day from one zone to another using
// a reference calendar date. Used for records that store only a time, not a
// full timestamp.
func ConvertWallTime(clock string, from, to *time.Location, refDate time.Time) (string, error) {
	t, err := anchorClock(clock, from, refDate)
	if err != nil {
		return "", err
	}
	return t.In(to).Format("15:04:05"), nil
}

// DayShift returns the signed number of calendar days the wall-clock date
// moves when the same instant is viewed in to rather than from. Records that
// persist date and time separately must apply this delta to the date field
// alongside ConvertWallTime, or the pair falls apart when the conversion
// crosses midnight.
func DayShift(clock string, from, to *time.Location, refDate time.Time) (int, error) {
	t, err := anchorClock(clock, from, refDate)
	if err != nil {
		return 0, err
	}
	src := t.In(from)
	dst := t.In(to)

	srcDay := time.Date(src.Year(), src.Month(), src.Day(), 0, 0, 0, 0, time.UTC)
	dstDay := time.Date(dst.Year(), dst.Month(), dst.Day(), 0, 0, 0, 0, time.UTC)
	return int(dstDay.Sub(srcDay).Hours() / 24), nil
}

// anchorClock combines a bare HH:mm[:ss] reading with the reference date,
// interpreted in zone, yielding an absolute instant.
func anchorClock(clock string, zone *time.Location, refDate time.Time) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}
	s := strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(refDate.Year(), refDate.Month(), refDate.Day(),
			c.Hour(), c.Minute(), c.Second(), 0, zone), nil
	}
	return time.Time{}, &ParseError{Raw: clock}
}
