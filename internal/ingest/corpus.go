package ingest

import (
	"regexp"
	"sort"
	"strings"

	"campusqa/internal/store/relational"
	"campusqa/internal/textproc"
)

// CorpusSpec models a corpus as a value (per its key, its chunk window, and
// the two row-shaping functions) rather than a type hierarchy, so the
// pipeline in pipeline.go is parameterized by data, not by per-corpus code
// paths.
type CorpusSpec struct {
	Key          string
	Collection   string
	HasDateField bool
	HasMajor     bool
	ChunkSize    int
	ChunkOverlap int
	IncludeTitle bool

	// ToRecord converts one raw CSV row into a source record ready for
	// insertion (no ID yet).
	ToRecord func(r row) relational.SourceRecord
	// ToDoc builds the chunkable document for an already-inserted record.
	ToDoc func(rec relational.SourceRecord) textproc.Doc
}

var departmentPattern = regexp.MustCompile(`주관부서\s*[:：]\s*(\S+)`)

// Specs returns the fixed, chunk-size-scaled registry of known corpora. size
// and overlap are the configured defaults (notices/rules use them as-is;
// schedule halves them; courses/staff chunk as a single segment).
func Specs(size, overlap int) map[string]CorpusSpec {
	return map[string]CorpusSpec{
		"notices": {
			Key: "notices", Collection: "dongguk_notices", HasDateField: true,
			ChunkSize: size, ChunkOverlap: overlap, IncludeTitle: true,
			ToRecord: noticeToRecord,
			ToDoc:    noticeToDoc,
		},
		"rules": {
			Key: "rules", Collection: "dongguk_rules",
			ChunkSize: size, ChunkOverlap: overlap, IncludeTitle: true,
			ToRecord: ruleToRecord,
			ToDoc:    ruleToDoc,
		},
		"schedule": {
			Key: "schedule", Collection: "dongguk_schedule", HasDateField: true,
			ChunkSize: size / 2, ChunkOverlap: overlap / 2,
			ToRecord: scheduleToRecord,
			ToDoc:    scheduleToDoc,
		},
		"courses": {
			Key: "courses", Collection: "dongguk_courses", HasMajor: true,
			ChunkSize: 0, IncludeTitle: true,
			ToRecord: courseToRecord,
			ToDoc:    courseToDoc,
		},
		"staff": {
			Key: "staff", Collection: "dongguk_staff",
			ChunkSize: 0, IncludeTitle: true,
			ToRecord: staffToRecord,
			ToDoc:    staffToDoc,
		},
	}
}

func clean(s string) string {
	return textproc.NormalizeWhitespace(textproc.StripHTML(s))
}

func noticeToRecord(r row) relational.SourceRecord {
	return relational.SourceRecord{
		Department:    r.first("board", "게시판"),
		Title:         r.first("title", "제목"),
		Category:      r.first("category", "분류"),
		PublishedDate: textproc.StandardizeDate(r.first("published_date", "게시일", "date")),
		DetailURL:     r.first("detail_url", "url", "링크"),
		Content:       clean(r.first("content", "내용")),
		RawData:       r.first("attachments", "첨부파일"),
		Origin:        r.first("origin", "출처"),
	}
}

func noticeToDoc(rec relational.SourceRecord) textproc.Doc {
	text := rec.Content
	if rec.Department != "" {
		text = "[게시판: " + rec.Department + "]\n" + text
	}
	return textproc.Doc{
		DocID:       textproc.MakeDocID(rec.Title, rec.Department, rec.PublishedDate, rec.DetailURL),
		Title:       rec.Title,
		Text:        text,
		Topics:      rec.Category,
		PublishedAt: rec.PublishedDate,
		URL:         rec.DetailURL,
	}
}

func ruleToRecord(r row) relational.SourceRecord {
	return relational.SourceRecord{
		Title:      r.first("filename", "파일명"),
		Department: r.first("relative_dir", "경로"),
		Content:    clean(r.first("full_text", "content", "내용")),
	}
}

func ruleToDoc(rec relational.SourceRecord) textproc.Doc {
	return textproc.Doc{
		DocID: textproc.MakeDocID(rec.Department, rec.Title),
		Title: rec.Title,
		Text:  rec.Content,
	}
}

func scheduleToRecord(r row) relational.SourceRecord {
	content := clean(r.first("content", "내용"))
	dept := r.first("department", "주관부서")
	if dept == "" {
		if m := departmentPattern.FindStringSubmatch(content); len(m) == 2 {
			dept = m[1]
		}
	}
	return relational.SourceRecord{
		Title:      r.first("title", "제목"),
		StartDate:  textproc.StandardizeDate(r.first("start_date", "시작일")),
		EndDate:    textproc.StandardizeDate(r.first("end_date", "종료일")),
		Category:   r.first("category", "분류"),
		Department: dept,
		Content:    content,
		Origin:     r.first("origin", "출처"),
	}
}

func scheduleToDoc(rec relational.SourceRecord) textproc.Doc {
	text := "학사일정: " + rec.Title + "\n기간: " + rec.StartDate + " ~ " + rec.EndDate + "\n" + rec.Content
	return textproc.Doc{
		DocID: textproc.MakeDocID(rec.Title, rec.StartDate, rec.EndDate),
		Title: rec.Title,
		Text:  text,
		// published_at mirrors start_date: the event's own start is the
		// meaningful "when" for the date post-filter, matching the upstream
		// crawler and the schedule's own semantics.
		PublishedAt: rec.StartDate,
		Topics:      rec.Category,
	}
}

func courseToRecord(r row) relational.SourceRecord {
	return relational.SourceRecord{
		CourseCode: r.first("course_code", "과목코드"),
		Title:      r.first("title", "과목명"),
		Content:    clean(r.first("description", "강의계획", "content")),
		Corpus:     r.first("source_table", "개설표"),
		Major:      r.first("major", "전공", "학과"),
		RawData:    encodeRaw(r.all()),
	}
}

func courseToDoc(rec relational.SourceRecord) textproc.Doc {
	text := rec.Title + "\n" + rec.Content
	return textproc.Doc{
		DocID: textproc.MakeDocID(rec.CourseCode, rec.Title),
		Title: rec.Title,
		Text:  text,
		Major: rec.Major,
	}
}

func staffToRecord(r row) relational.SourceRecord {
	return relational.SourceRecord{
		Department: r.first("department", "부서"),
		Name:       r.first("name", "이름", "성명"),
		Position:   r.first("position", "직위"),
		Category:   r.first("role", "담당업무"),
		Phone:      r.first("phone", "전화", "연락처"),
		Email:      r.first("email", "이메일"),
		RawData:    encodeRaw(r.all()),
	}
}

func staffToDoc(rec relational.SourceRecord) textproc.Doc {
	text := strings.Join(nonEmptyStrings(rec.Department, rec.Name, rec.Position, rec.Category, rec.Phone, rec.Email), "\n")
	return textproc.Doc{
		DocID: textproc.MakeDocID(rec.Department, rec.Name, rec.Email),
		Title: rec.Name,
		Text:  text,
	}
}

func nonEmptyStrings(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// encodeRaw stores the full row as a stable, sorted "key=value" blob for the
// raw_data columns: opaque, display-only data that doesn't warrant a JSON
// dependency.
func encodeRaw(cols map[string]string) string {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + cols[k]
	}
	return strings.Join(pairs, "; ")
}
