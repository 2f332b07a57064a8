package sparseindex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenize_LowercasesStripsPunctuationAndStopwords(t *testing.T) {
	got := Tokenize("The Library is open, and the Café closes at 9.")
	want := []string{"library", "open", "café", "closes", "9"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestModel_FitAndQuery_RanksMatchingDocHighest(t *testing.T) {
	m := NewModel()
	ids := []string{"a", "b", "c"}
	texts := []string{
		"library closing hours announcement",
		"cafeteria menu update for next week",
		"library extended hours during exam week",
	}
	m.Fit(ids, texts)
	if !m.Fitted() {
		t.Fatalf("expected model to report fitted after Fit")
	}

	scores := m.Query("library hours", 2)
	if len(scores) == 0 {
		t.Fatalf("expected at least one match")
	}
	if scores[0].ID != "a" && scores[0].ID != "c" {
		t.Fatalf("expected a library-related doc to rank first, got %s", scores[0].ID)
	}
	for _, cafeID := range scores {
		if cafeID.ID == "b" {
			t.Fatalf("cafeteria doc should not outrank the library docs for this query")
		}
	}
}

func TestModel_Query_UnfittedReturnsNil(t *testing.T) {
	m := NewModel()
	if got := m.Query("anything", 5); got != nil {
		t.Fatalf("expected nil from an unfitted model, got %v", got)
	}
}

func TestModel_Append_AddsRowWithoutRefit(t *testing.T) {
	m := NewModel()
	m.Fit([]string{"a"}, []string{"library hours"})
	m.Append("b", "library hours extended")
	if len(m.IDs) != 2 || len(m.Matrix) != 2 {
		t.Fatalf("expected 2 rows after append, got ids=%v matrix=%d", m.IDs, len(m.Matrix))
	}
	scores := m.Query("library", 10)
	found := false
	for _, s := range scores {
		if s.ID == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected appended doc to be queryable")
	}
}

func TestModel_SaveLoad_RoundTrips(t *testing.T) {
	m := NewModel()
	m.Fit([]string{"a", "b"}, []string{"library hours", "cafeteria menu"})

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Fitted() {
		t.Fatalf("expected loaded model to be fitted")
	}
	got := loaded.Query("library", 5)
	want := m.Query("library", 5)
	if len(got) != len(want) || len(got) == 0 {
		t.Fatalf("loaded model scored differently: got %v want %v", got, want)
	}
	if got[0].ID != want[0].ID {
		t.Fatalf("top id mismatch after round trip: got %s want %s", got[0].ID, want[0].ID)
	}
}

func TestModel_Load_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(os.TempDir(), "does-not-exist-sparseindex.gob")); err == nil {
		t.Fatalf("expected an error loading a missing file")
	}
}
