package steps

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationExpression = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([A-Za-z]+)\s*$`)

var durationUnits = map[string]time.Duration{
	"ms":           time.Millisecond,
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"s":            time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"second":       time.Second,
	"seconds":      time.Second,
	"m":            time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"h":            time.Hour,
	"hr":           time.Hour,
	"hrs":          time.Hour,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"d":            24 * time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
}

// ParseDuration resolves a delay expression. Numbers are seconds; strings may be
// "N unit" ("30 seconds", "5 min", "2 days"), a Go duration ("1h30m") or a bare
// number of seconds.
func ParseDuration(value any) (time.Duration, error) {
	var d time.Duration

	switch v := value.(type) {
	case int:
		return scale(float64(v), time.Second, value)
	case int64:
		return scale(float64(v), time.Second, value)
	case float64:
		return scale(v, time.Second, value)
	case string:
		parsed, err := parseDurationString(v)
		if err != nil {
			return 0, err
		}

		d = parsed
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", value, value)
	}

	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", value)
	}

	return d, nil
}

func parseDurationString(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return scale(seconds, time.Second, s)
	}

	if match := durationExpression.FindStringSubmatch(trimmed); match != nil {
		unit, ok := durationUnits[strings.ToLower(match[2])]
		if ok {
			amount, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", s, err)
			}

			return scale(amount, unit, s)
		}
	}

	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	return d, nil
}

// scale converts amount units into a Duration, rejecting values that do not fit.
func scale(amount float64, unit time.Duration, raw any) (time.Duration, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid duration %v", raw)
	}

	if amount < 0 {
		return 0, fmt.Errorf("negative duration %v", raw)
	}

	total := amount * float64(unit)
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("duration %v is out of range", raw)
	}

	return time.Duration(total), nil
}
