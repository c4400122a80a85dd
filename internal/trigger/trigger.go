// Package trigger evaluates cron expressions. Parsing accepts the 5-field
// form (min hour dom month dow) and the 6-field form with a leading seconds
// field, including wildcards, comma lists, ranges and step values.
package trigger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseError marks a malformed trigger expression; the scheduler disables
// the owning job at registration so it is never dispatched.
type ParseError struct {
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Schedule is an immutable parsed expression. Next is pure: identical
// (expression, reference time) pairs always produce the identical result.
type Schedule struct {
	second []int
	minute []int
	hour   []int
	dom    []int
	month  []int
	dow    []int

	// Standard cron semantics: when both day fields are restricted the
	// fire condition is their logical OR, not AND.
	domRestricted bool
	dowRestricted bool
}

func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)

	var withSeconds bool
	switch len(fields) {
	case 5:
	case 6:
		withSeconds = true
	default:
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("expected 5 or 6 fields, got %d", len(fields))}
	}

	s := &Schedule{second: []int{0}}
	idx := 0

	var err error
	if withSeconds {
		if s.second, err = parseField(fields[idx], 0, 59); err != nil {
			return nil, &ParseError{Expr: expr, Err: fmt.Errorf("seconds: %w", err)}
		}
		idx++
	}
	if s.minute, err = parseField(fields[idx], 0, 59); err != nil {
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("minutes: %w", err)}
	}
	if s.hour, err = parseField(fields[idx+1], 0, 23); err != nil {
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("hours: %w", err)}
	}
	if s.dom, err = parseField(fields[idx+2], 1, 31); err != nil {
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("day of month: %w", err)}
	}
	if s.month, err = parseField(fields[idx+3], 1, 12); err != nil {
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("month: %w", err)}
	}
	if s.dow, err = parseField(fields[idx+4], 0, 7); err != nil {
		return nil, &ParseError{Expr: expr, Err: fmt.Errorf("day of week: %w", err)}
	}
	s.dow = foldSunday(s.dow)

	s.domRestricted = !strings.HasPrefix(fields[idx+2], "*")
	s.dowRestricted = !strings.HasPrefix(fields[idx+4], "*")

	return s, nil
}

// Next returns the first fire time strictly after ref, in ref's location.
// The zero time means no fire within the five-year search horizon.
func (s *Schedule) Next(ref time.Time) time.Time {
	loc := ref.Location()
	t := ref.Truncate(time.Second).Add(time.Second)
	limit := ref.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !contains(s.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			continue
		}
		if !contains(s.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour)
			continue
		}
		if !contains(s.minute, t.Minute()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)
			continue
		}
		if contains(s.second, t.Second()) {
			return t
		}
		t = t.Add(time.Second)
	}

	return time.Time{}
}

func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := contains(s.dom, t.Day())
	dowOK := contains(s.dow, int(t.Weekday()))

	switch {
	case s.domRestricted && s.dowRestricted:
		return domOK || dowOK
	case s.domRestricted:
		return domOK
	case s.dowRestricted:
		return dowOK
	default:
		return true
	}
}

// parseField expands one cron field into a sorted slice of accepted values.
func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]struct{})

	for _, token := range strings.Split(field, ",") {
		base, stepStr, hasStep := strings.Cut(token, "/")

		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step: %s", token)
			}
			step = s
		}

		start, end := min, max
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			lo, hi, _ := strings.Cut(base, "-")
			var err1, err2 error
			start, err1 = strconv.Atoi(lo)
			end, err2 = strconv.Atoi(hi)
			if err1 != nil || err2 != nil || start > end || start < min || end > max {
				return nil, fmt.Errorf("invalid range: %s", base)
			}
		default:
			num, err := strconv.Atoi(base)
			if err != nil || num < min || num > max {
				return nil, fmt.Errorf("invalid value: %s", base)
			}
			if hasStep {
				// "n/step" runs from n to the field maximum.
				start, end = num, max
			} else {
				start, end = num, num
			}
		}

		for v := start; v <= end; v += step {
			set[v] = struct{}{}
		}
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("empty field")
	}

	values := make([]int, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Ints(values)
	return values, nil
}

// foldSunday maps the alternative Sunday value 7 onto 0.
func foldSunday(values []int) []int {
	out := values[:0]
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		if v == 7 {
			v = 0
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func contains(values []int, v int) bool {
	i := sort.SearchInts(values, v)
	return i < len(values) && values[i] == v
}
