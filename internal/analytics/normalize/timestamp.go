package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var daysOffsetRe = regexp.MustCompile(`^(\d+)\s+days,\s+([\d:.]+)$`)

// Fractional seconds are accepted after the seconds field even though the
// layouts do not spell them out.
var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006-01",
	"2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	time.ANSIC,
}

var epoch = time.Unix(0, 0).UTC()

// ParseTimestamp resolves a loosely typed timestamp cell to a UTC instant.
// It tries calendar datetimes (and numeric epochs) first, then the
// "<N> days, HH:MM:SS[.ffffff]" offset-from-epoch form. Nothing else parses;
// there is no fallback to the current time.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("empty timestamp")
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("zero timestamp")
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, fmt.Errorf("zero timestamp")
		}
		return t.UTC(), nil
	case float64:
		return fromEpoch(t)
	case float32:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid numeric timestamp %q", t.String())
		}
		return fromEpoch(f)
	case string:
		return parseString(t)
	case []byte:
		return parseString(string(t))
	default:
		return parseString(fmt.Sprint(v))
	}
}

func parseString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat") || strings.EqualFold(s, "null") {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range calendarLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	if m := daysOffsetRe.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day count %q", m[1])
		}
		clock, err := parseClock(m[2])
		if err != nil {
			return time.Time{}, err
		}
		return epoch.AddDate(0, 0, days).Add(clock), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseClock reads HH:MM:SS[.ffffff]; hours may exceed 23.
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec >= 60 || strings.Count(parts[2], ".") > 1 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	d += time.Duration(math.Round(sec * float64(time.Second)))
	return d, nil
}

// Epoch magnitudes at or past these bounds are read in the finer unit.
// 1e11 seconds falls in the year 5138.
const (
	epochMillisFloor = 1e11
	epochMicrosFloor = 1e14
	epochNanosFloor  = 1e17
)

// fromEpoch reads a numeric epoch, inferring seconds, milliseconds,
// microseconds or nanoseconds from its magnitude.
func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch %v", f)
	}
	switch {
	case f >= epochNanosFloor:
		return time.Unix(0, int64(f)).UTC(), nil
	case f >= epochMicrosFloor:
		f /= 1e6
	case f >= epochMillisFloor:
		f /= 1e3
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}
