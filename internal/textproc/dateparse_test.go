package textproc

import (
	"testing"
	"time"
)

func mustKST(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestExtractDateRange_Today(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	r, ok := ExtractDateRange("오늘 공지사항", now)
	if !ok {
		t.Fatalf("expected a date range")
	}
	want := "2025-11-10"
	if r.Start.Format("2006-01-02") != want || r.End.Format("2006-01-02") != want {
		t.Fatalf("got [%s, %s], want [%s, %s]", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), want, want)
	}
}

func TestExtractDateRange_Yesterday(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	r, ok := ExtractDateRange("어제 학사일정", now)
	if !ok || r.Start.Format("2006-01-02") != "2025-11-09" {
		t.Fatalf("expected 2025-11-09, got ok=%v start=%v", ok, r.Start)
	}
}

func TestExtractDateRange_ThisWeek(t *testing.T) {
	// 2025-11-10 is a Monday.
	now := mustKST(2025, time.November, 12)
	r, ok := ExtractDateRange("이번주 행사", now)
	if !ok {
		t.Fatalf("expected a date range")
	}
	if r.Start.Format("2006-01-02") != "2025-11-10" || r.End.Format("2006-01-02") != "2025-11-16" {
		t.Fatalf("got [%s, %s]", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
}

func TestExtractDateRange_LastMonth(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	r, ok := ExtractDateRange("지난달 소식", now)
	if !ok || r.Start.Format("2006-01-02") != "2025-10-01" || r.End.Format("2006-01-02") != "2025-10-31" {
		t.Fatalf("got ok=%v [%s, %s]", ok, r.Start, r.End)
	}
}

func TestExtractDateRange_SpecificMonth(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	r, ok := ExtractDateRange("2025년 11월 공지", now)
	if !ok || r.Start.Format("2006-01-02") != "2025-11-01" || r.End.Format("2006-01-02") != "2025-11-30" {
		t.Fatalf("got ok=%v [%s, %s]", ok, r.Start, r.End)
	}
}

func TestExtractDateRange_SpecificDay(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	r, ok := ExtractDateRange("2024년 5월 15일 이벤트", now)
	if !ok || r.Start.Format("2006-01-02") != "2024-05-15" || r.End.Format("2006-01-02") != "2024-05-15" {
		t.Fatalf("got ok=%v [%s, %s]", ok, r.Start, r.End)
	}
}

func TestExtractDateRange_NoDate(t *testing.T) {
	now := mustKST(2025, time.November, 10)
	if _, ok := ExtractDateRange("그냥 일반 질문", now); ok {
		t.Fatalf("expected no date range to be found")
	}
}
