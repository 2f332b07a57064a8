// Package sparseindex implements an in-memory TF-IDF vector-space model:
// fit a vocabulary over a corpus, transform text into sparse weight vectors,
// and score a query against the fitted matrix by cosine similarity. It is
// the sparse half of the hybrid retriever, mirroring the accuracy/recall
// tradeoffs of scikit-learn's TfidfVectorizer without depending on it.
package sparseindex

import (
	"bytes"
	"encoding/gob"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

// MaxFeatures caps the vocabulary size, keeping memory and query cost
// bounded on large corpora.
const MaxFeatures = 10000

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopwords = map[string]bool{
	"the": true, "is": true, "at": true, "of": true, "on": true, "and": true,
	"a": true, "an": true, "to": true, "in": true, "for": true, "이": true,
	"그": true, "저": true, "것": true, "수": true, "등": true,
}

// Tokenize lowercases, strips punctuation, and drops stopwords.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	fields := nonWord.Split(text, -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

type sparseVector map[int]float64

// Model is a fitted TF-IDF vocabulary plus the document-term matrix for one
// corpus. The zero value is usable but untrained; call Fit before Transform
// or Query.
type Model struct {
	Vocab   map[string]int // token -> column index
	IDF     []float64      // per-column inverse document frequency
	IDs     []string       // row i corresponds to IDs[i]
	Matrix  []sparseVector // row i's TF-IDF weights, L2-normalized
	fitted  bool
}

// NewModel returns an empty, unfitted model.
func NewModel() *Model {
	return &Model{Vocab: map[string]int{}}
}

// Fit builds the vocabulary and document-term matrix from scratch, replacing
// any previous state. ids[i] identifies texts[i]; the two slices must be the
// same length.
func (m *Model) Fit(ids []string, texts []string) {
	docTokens := make([][]string, len(texts))
	df := map[string]int{}
	for i, t := range texts {
		toks := Tokenize(t)
		docTokens[i] = toks
		seen := map[string]bool{}
		for _, tok := range toks {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	type termDF struct {
		term string
		df   int
	}
	terms := make([]termDF, 0, len(df))
	for term, count := range df {
		terms = append(terms, termDF{term, count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].df != terms[j].df {
			return terms[i].df > terms[j].df
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > MaxFeatures {
		terms = terms[:MaxFeatures]
	}

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for idx, t := range terms {
		vocab[t.term] = idx
		idf[idx] = math.Log(n/float64(t.df)) + 1
	}

	m.Vocab = vocab
	m.IDF = idf
	m.IDs = append([]string(nil), ids...)
	m.Matrix = make([]sparseVector, len(texts))
	for i, toks := range docTokens {
		m.Matrix[i] = m.weighVector(toks)
	}
	m.fitted = true
}

// Fitted reports whether Fit has been called successfully at least once.
func (m *Model) Fitted() bool {
	return m.fitted && len(m.Vocab) > 0
}

// weighVector computes the L2-normalized TF-IDF vector for a token list
// against the model's current vocabulary and IDF weights.
func (m *Model) weighVector(tokens []string) sparseVector {
	tf := map[int]float64{}
	for _, tok := range tokens {
		if idx, ok := m.Vocab[tok]; ok {
			tf[idx]++
		}
	}
	vec := make(sparseVector, len(tf))
	var normSq float64
	for idx, count := range tf {
		w := count * m.IDF[idx]
		vec[idx] = w
		normSq += w * w
	}
	if normSq > 0 {
		norm := math.Sqrt(normSq)
		for idx, w := range vec {
			vec[idx] = w / norm
		}
	}
	return vec
}

// Transform maps free text into a TF-IDF vector under the current
// vocabulary; terms absent from the vocabulary are ignored.
func (m *Model) Transform(text string) sparseVector {
	return m.weighVector(Tokenize(text))
}

// Score is one Model.Query hit: a document id and its cosine similarity to
// the query vector.
type Score struct {
	ID         string
	Similarity float64
}

// Query scores every fitted document against text's TF-IDF vector and
// returns the top n by cosine similarity, descending, omitting zero scores.
func (m *Model) Query(text string, n int) []Score {
	if !m.Fitted() {
		return nil
	}
	qv := m.Transform(text)
	if len(qv) == 0 {
		return nil
	}
	scores := make([]Score, 0, len(m.Matrix))
	for i, doc := range m.Matrix {
		var dot float64
		// iterate the shorter vector for speed; both are small sparse maps.
		a, b := qv, doc
		if len(b) < len(a) {
			a, b = b, a
		}
		for idx, w := range a {
			dot += w * b[idx]
		}
		if dot > 0 {
			scores = append(scores, Score{ID: m.IDs[i], Similarity: dot})
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Similarity > scores[j].Similarity })
	if n > 0 && len(scores) > n {
		scores = scores[:n]
	}
	return scores
}

// Append incrementally adds one document without rebuilding the vocabulary,
// for single-row admin-approval ingestion. The new document's terms outside
// the existing vocabulary are dropped; callers that need them represented
// should trigger a full Fit on the next bulk refresh. The row is appended
// unconditionally so IDs and Matrix always stay aligned with the caller's
// chunk table, even when the vocabulary is empty.
func (m *Model) Append(id string, text string) {
	m.IDs = append(m.IDs, id)
	m.Matrix = append(m.Matrix, m.weighVector(Tokenize(text)))
}

type gobModel struct {
	Vocab  map[string]int
	IDF    []float64
	IDs    []string
	Matrix []map[int]float64
}

// Save persists the model to path via encoding/gob.
func (m *Model) Save(path string) error {
	gm := gobModel{Vocab: m.Vocab, IDF: m.IDF, IDs: m.IDs}
	gm.Matrix = make([]map[int]float64, len(m.Matrix))
	for i, v := range m.Matrix {
		gm.Matrix[i] = v
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gm); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load restores a model previously written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gm gobModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gm); err != nil {
		return nil, err
	}
	m := &Model{Vocab: gm.Vocab, IDF: gm.IDF, IDs: gm.IDs, fitted: len(gm.Vocab) > 0}
	m.Matrix = make([]sparseVector, len(gm.Matrix))
	for i, v := range gm.Matrix {
		m.Matrix[i] = v
	}
	return m, nil
}
