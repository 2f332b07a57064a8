package ingest

import "testing"

func TestNoticeToRecordAndDoc(t *testing.T) {
	r := row{cols: map[string]string{
		"board": "공지사항", "title": "휴강 안내", "category": "학사",
		"published_date": "2025.11.10", "detail_url": "https://example.ac.kr/1",
		"content": "<p>내일 휴강합니다.</p>",
	}}
	rec := noticeToRecord(r)
	if rec.PublishedDate != "2025-11-10" {
		t.Errorf("PublishedDate = %q, want canonical form", rec.PublishedDate)
	}
	if rec.Department != "공지사항" {
		t.Errorf("Department = %q", rec.Department)
	}
	doc := noticeToDoc(rec)
	if doc.DocID == "" {
		t.Error("expected non-empty DocID")
	}
	if doc.PublishedAt != "2025-11-10" {
		t.Errorf("doc.PublishedAt = %q", doc.PublishedAt)
	}
}

func TestScheduleDepartmentExtractedFromContent(t *testing.T) {
	r := row{cols: map[string]string{
		"title": "수강신청", "start_date": "2025-02-24", "end_date": "2025-02-26",
		"content": "주관부서: 학사지원팀\n세부 일정 안내",
	}}
	rec := scheduleToRecord(r)
	if rec.Department != "학사지원팀" {
		t.Errorf("Department = %q, want extracted from content", rec.Department)
	}
	doc := scheduleToDoc(rec)
	if doc.PublishedAt != "2025-02-24" {
		t.Errorf("schedule published_at should mirror start_date, got %q", doc.PublishedAt)
	}
}

func TestCourseToRecordKeepsMajorForFiltering(t *testing.T) {
	r := row{cols: map[string]string{"course_code": "STA301", "title": "회귀분석", "major": "통계학과"}}
	rec := courseToRecord(r)
	if rec.Major != "통계학과" {
		t.Errorf("Major = %q", rec.Major)
	}
	doc := courseToDoc(rec)
	if doc.Major != "통계학과" {
		t.Errorf("doc.Major = %q", doc.Major)
	}
}

func TestSpecsScalesScheduleChunkWindow(t *testing.T) {
	specs := Specs(800, 100)
	if specs["schedule"].ChunkSize != 400 || specs["schedule"].ChunkOverlap != 50 {
		t.Errorf("schedule chunk window = %+v, want halved", specs["schedule"])
	}
	if specs["notices"].ChunkSize != 800 {
		t.Errorf("notices chunk size = %d, want 800", specs["notices"].ChunkSize)
	}
	if specs["courses"].ChunkSize != 0 {
		t.Errorf("courses should chunk as a single segment, got size %d", specs["courses"].ChunkSize)
	}
}
