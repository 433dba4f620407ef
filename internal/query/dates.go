package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/metad/internal/fault"
)

var lastNDays = regexp.MustCompile(`^(?:last|past) (\d+) days?$`)

// ResolveDateRange turns a date range into closed [from, to] bounds.
// Relative expressions are resolved against now.
//
// Supported expressions:
//   - "today", "yesterday"
//   - "last week" (the 7 days before now), "last N days"
//   - "last month" (the previous calendar month)
//   - "last quarter": the 90 days ending the day before the current
//     quarter began; an approximation, not a calendar quarter
//   - "this year", "last year" (calendar years)
func ResolveDateRange(dr DateRange, now time.Time) (from, to time.Time, err error) {
	if expr := normalizeExpr(dr.Expr); expr != "" {
		return resolveExpr(expr, now)
	}

	from = time.Unix(0, 0).In(now.Location())
	to = now
	if dr.From != "" {
		if from, _, err = parseDate(dr.From, now.Location()); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if dr.To != "" {
		var dateOnly bool
		if to, dateOnly, err = parseDate(dr.To, now.Location()); err != nil {
			return time.Time{}, time.Time{}, err
		}
		if dateOnly {
			to = endOfDay(to)
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fault.Newf(fault.InvalidArgument,
			"Invalid date range: %s is after %s", dr.From, dr.To)
	}
	return from, to, nil
}

// IsDateExpr reports whether s is a supported relative date expression.
func IsDateExpr(s string) bool {
	_, _, err := resolveExpr(normalizeExpr(s), time.Now())
	return err == nil
}

func resolveExpr(expr string, now time.Time) (time.Time, time.Time, error) {
	today := startOfDay(now)

	switch expr {
	case "today":
		return today, endOfDay(today), nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, endOfDay(y), nil
	case "last week":
		return today.AddDate(0, 0, -7), now, nil
	case "last month":
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		prev := thisMonth.AddDate(0, -1, 0)
		return prev, endOfDay(thisMonth.AddDate(0, 0, -1)), nil
	case "last quarter":
		qMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		qStart := time.Date(now.Year(), qMonth, 1, 0, 0, 0, 0, now.Location())
		return qStart.AddDate(0, 0, -90), endOfDay(qStart.AddDate(0, 0, -1)), nil
	case "this year":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now, nil
	case "last year":
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(now.Year()-1, 12, 31, 0, 0, 0, 0, now.Location())
		return start, endOfDay(end), nil
	}

	if m := lastNDays.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return today.AddDate(0, 0, -n), now, nil
		}
	}

	return time.Time{}, time.Time{}, fault.Newf(fault.InvalidArgument, "Unsupported date range: %s", expr)
}

func normalizeExpr(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// parseDate accepts YYYY-MM-DD (dateOnly) or RFC 3339.
func parseDate(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fault.Newf(fault.InvalidArgument, "Invalid date: %s", s)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
