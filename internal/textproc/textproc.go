// Package textproc normalizes heterogeneous source text into clean,
// content-addressed chunks: HTML stripping, whitespace/date normalization,
// deterministic id derivation, and window-based chunking.
package textproc

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"campusqa/internal/util"
)

var (
	tagScriptStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagBreak       = regexp.MustCompile(`(?is)<br\s*/?>`)
	tagParagraph   = regexp.MustCompile(`(?is)</p>`)
	tagGeneric     = regexp.MustCompile(`(?is)<[^>]*>`)
)

// StripHTML removes script/style blocks, turns <br> and </p> into newlines,
// and strips any remaining tags.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = tagScriptStyle.ReplaceAllString(s, " ")
	s = tagBreak.ReplaceAllString(s, "\n")
	s = tagParagraph.ReplaceAllString(s, "\n")
	s = tagGeneric.ReplaceAllString(s, " ")
	return s
}

var (
	runWhitespace     = regexp.MustCompile(`[ \t\x{00A0}]+`)
	digitNewlineHan   = regexp.MustCompile(`(\d)\n(\p{Hangul})`)
	hanNewlineDigit   = regexp.MustCompile(`(\p{Hangul})\n(\d)`)
	newlineBeforeParen = regexp.MustCompile(`\n([()])`)
	newlineAfterParen  = regexp.MustCompile(`([()])\n`)
	newlineBeforePunct = regexp.MustCompile(`\n([.,!?·])`)
	multiNewline       = regexp.MustCompile(`\n{2,}`)
	spacedParen        = regexp.MustCompile(`\s*([()])\s*`)
	spacedPunct        = regexp.MustCompile(`\s*([.,!?·:/])\s*`)
	runSpace           = regexp.MustCompile(`\s{2,}`)
	spacedQuote        = regexp.MustCompile(`\s+'|'\s+`)
	sentenceBreak      = regexp.MustCompile(`([.!?])\s+([\p{Hangul}A-Z0-9])`)
)

const multiNewlinePlaceholder = "\x00NL\x00"

// NormalizeWhitespace collapses runs of spaces/tabs/NBSP, joins digit<->hangul
// line breaks, tidies newlines around punctuation and parentheses, condenses
// multi-newlines to one, and inserts a newline after sentence-final
// punctuation when followed by a capital letter, digit, or hangul syllable.
func NormalizeWhitespace(s string) string {
	if s == "" {
		return ""
	}
	s = runWhitespace.ReplaceAllString(s, " ")
	s = digitNewlineHan.ReplaceAllString(s, "$1$2")
	s = hanNewlineDigit.ReplaceAllString(s, "$1 $2")
	s = newlineBeforeParen.ReplaceAllString(s, "$1")
	s = newlineAfterParen.ReplaceAllString(s, "$1")
	s = newlineBeforePunct.ReplaceAllString(s, "$1")

	// Collapse runs of 2+ newlines to a placeholder first so the next step
	// can treat any remaining newline as an isolated one (Go's RE2 engine
	// has no negative lookaround to express this as a single pass).
	s = multiNewline.ReplaceAllString(s, multiNewlinePlaceholder)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, multiNewlinePlaceholder, "\n")

	s = spacedParen.ReplaceAllString(s, "$1")
	s = spacedPunct.ReplaceAllString(s, "$1 ")
	s = runSpace.ReplaceAllString(s, " ")
	s = spacedQuote.ReplaceAllString(s, "'")
	s = sentenceBreak.ReplaceAllString(s, "$1\n$2")
	return strings.TrimSpace(s)
}

var dateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "2006년 01월 02일"}

// StandardizeDate tries a fixed set of layouts and returns the canonical
// YYYY-MM-DD form, or "" if none match.
func StandardizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// MakeDocID returns the hex SHA1 of the non-empty parts joined by "|".
// Equal inputs always produce equal ids.
func MakeDocID(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	sum := sha1.Sum([]byte(strings.Join(nonEmpty, "|")))
	return hex.EncodeToString(sum[:])
}

// MakeChunkID returns the hex SHA1 of "<docID>|<position>".
func MakeChunkID(docID string, position int) string {
	sum := sha1.Sum([]byte(docID + "|" + strconv.Itoa(position)))
	return hex.EncodeToString(sum[:])
}

// Chunk splits text into a character (rune) window with the given size and
// overlap. step = max(1, size-overlap); the last window is truncated to the
// end of the text and the loop stops once a window reaches the end.
func Chunk(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	step := size - overlap
	if step < 1 {
		step = 1
	}
	var segments []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}
	return segments
}

// Doc is the normalized input to ToChunks: one source document's derived
// text plus the metadata that gets denormalized onto every chunk.
type Doc struct {
	DocID       string
	Title       string
	Text        string
	Topics      string
	PublishedAt string
	UpdatedAt   string
	URL         string
	Major       string
}

// ChunkRecord is one output row of ToChunks.
type ChunkRecord struct {
	ChunkID     string
	DocID       string
	Text        string
	Position    int
	TokenLen    int
	Title       string
	Topics      string
	PublishedAt string
	UpdatedAt   string
	URL         string
	Major       string
}

// ToChunks converts documents into chunk records. When size is 0, each
// document becomes exactly one chunk (its full text). Otherwise Chunk is
// applied with the given size/overlap. Each chunk is prefixed with
// "[title]\n\n" when includeTitle is set and the document has a title.
func ToChunks(docs []Doc, size, overlap int, includeTitle bool) []ChunkRecord {
	var out []ChunkRecord
	for _, doc := range docs {
		segments := []string{doc.Text}
		if size > 0 {
			if s := Chunk(doc.Text, size, overlap); len(s) > 0 {
				segments = s
			}
		}
		for idx, seg := range segments {
			body := strings.TrimSpace(seg)
			if includeTitle && doc.Title != "" {
				body = strings.TrimSpace("[" + doc.Title + "]\n\n" + seg)
			}
			out = append(out, ChunkRecord{
				ChunkID:     MakeChunkID(doc.DocID, idx),
				DocID:       doc.DocID,
				Text:        body,
				Position:    idx,
				TokenLen:    util.CountTokens(body),
				Title:       doc.Title,
				Topics:      doc.Topics,
				PublishedAt: doc.PublishedAt,
				UpdatedAt:   doc.UpdatedAt,
				URL:         doc.URL,
				Major:       doc.Major,
			})
		}
	}
	return out
}
