package textproc

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateRange is an inclusive [Start, End] day range extracted from a query.
type DateRange struct {
	Start time.Time
	End   time.Time
}

var (
	yearMonthDayPattern = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`)
	yearMonthPattern    = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월`)
)

// ExtractDateRange pulls a relative ("오늘", "지난주", …) or literal
// ("2025년 11월 20일", "2025년 11월") Korean date expression out of query and
// resolves it against now, returning ok=false when the query names no date.
// Relative expressions are tried before literal ones, matching the order a
// reader would disambiguate "이번달 2025년" style overlaps.
func ExtractDateRange(query string, now time.Time) (DateRange, bool) {
	if r, ok := parseRelativeDate(query, now); ok {
		return r, true
	}
	return parseSpecificDate(query)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func single(d time.Time) DateRange { return DateRange{Start: d, End: d} }

func parseRelativeDate(query string, now time.Time) (DateRange, bool) {
	today := day(now)
	switch {
	case containsAny(query, "오늘"):
		return single(today), true
	case containsAny(query, "어제"):
		return single(today.AddDate(0, 0, -1)), true
	case containsAny(query, "내일"):
		return single(today.AddDate(0, 0, 1)), true
	case containsAny(query, "지난주", "지난 주"):
		startThisWeek := today.AddDate(0, 0, -weekday(today))
		startLastWeek := startThisWeek.AddDate(0, 0, -7)
		return DateRange{Start: startLastWeek, End: startLastWeek.AddDate(0, 0, 6)}, true
	case containsAny(query, "이번주", "이번 주"):
		startThisWeek := today.AddDate(0, 0, -weekday(today))
		return DateRange{Start: startThisWeek, End: startThisWeek.AddDate(0, 0, 6)}, true
	case containsAny(query, "지난달", "지난 달"):
		firstThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastLastMonth := firstThisMonth.AddDate(0, 0, -1)
		firstLastMonth := time.Date(lastLastMonth.Year(), lastLastMonth.Month(), 1, 0, 0, 0, 0, today.Location())
		return DateRange{Start: firstLastMonth, End: lastLastMonth}, true
	case containsAny(query, "이번달", "이번 달"):
		firstThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastThisMonth := firstThisMonth.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return DateRange{Start: firstThisMonth, End: lastThisMonth}, true
	default:
		return DateRange{}, false
	}
}

// weekday returns days since Monday (0 for Monday), so week ranges start on
// Monday.
func weekday(t time.Time) int {
	wd := int(t.Weekday())
	// time.Sunday == 0 in Go; shift so Monday == 0.
	return (wd + 6) % 7
}

func parseSpecificDate(query string) (DateRange, bool) {
	if m := yearMonthDayPattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		dayNum, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 {
			return DateRange{}, false
		}
		d := time.Date(year, time.Month(month), dayNum, 0, 0, 0, 0, time.UTC)
		if d.Month() != time.Month(month) || d.Day() != dayNum {
			return DateRange{}, false // e.g. 2월 30일 rolled over
		}
		return single(d), true
	}
	if m := yearMonthPattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return DateRange{}, false
		}
		first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return DateRange{Start: first, End: last}, true
	}
	return DateRange{}, false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
