package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"campusqa/internal/answer"
	"campusqa/internal/moderation"
	"campusqa/internal/retrieve"
	"campusqa/internal/router"
	"campusqa/internal/store/vectorstore"
	"campusqa/internal/textproc"
)

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
	Major     string `json:"major"`
}

type askResponse struct {
	Answer    string            `json:"answer"`
	Citations []answer.Citation `json:"citations"`
	Route     []string          `json:"route"`
	Sources   []string          `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "질문이 비어 있습니다."})
		return
	}

	ctx := r.Context()
	routes, err := s.Router.Route(ctx, req.Question)
	if err != nil || len(routes) == 0 {
		routes = router.DefaultRoute
	}

	filters := map[string]*vectorstore.Filter{}
	if major := strings.TrimSpace(req.Major); major != "" {
		filters["courses"] = &vectorstore.Filter{Key: "major", Value: major}
	}

	var dates *retrieve.DateRange
	if dr, ok := textproc.ExtractDateRange(req.Question, s.now()); ok {
		dates = &retrieve.DateRange{Start: dr.Start, End: dr.End}
	}

	ranked, err := s.Retrieve.Retrieve(ctx, retrieve.Request{
		Corpora:       routes,
		Query:         req.Question,
		TopK:          s.topK(),
		Alpha:         s.alpha(),
		RecencyWeight: s.recencyWeight(),
		Filters:       filters,
		Dates:         dates,
	})
	if err != nil {
		if errors.Is(err, retrieve.ErrDatasetUnavailable) {
			corpus := unavailableCorpus(err)
			respondJSON(w, http.StatusInternalServerError, map[string]any{"error": fmt.Sprintf("Dataset '%s' unavailable", corpus)})
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	chunks := make([]answer.Chunk, len(ranked))
	for i, rk := range ranked {
		chunks[i] = answer.Chunk{
			ChunkID: rk.ChunkID, Corpus: rk.Corpus, Text: rk.Text,
			Title: rk.Title, PublishedAt: rk.PublishedAt, URL: rk.URL,
		}
	}

	currentDate := s.now().Format("2006-01-02")
	result, err := s.Answer.Answer(ctx, req.Question, chunks, req.SessionID, currentDate, routes)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, askResponse{
		Answer: result.Answer, Citations: result.Citations, Route: result.Route, Sources: result.Sources,
	})
}

// unavailableCorpus best-efforts the corpus name out of a dataset-load
// failure so /ask can surface "Dataset '<k>' unavailable"; falls back to
// "unknown" if the error doesn't name one.
func unavailableCorpus(err error) string {
	for _, c := range router.Corpus {
		if strings.Contains(err.Error(), fmt.Sprintf("dataset %q", c)) {
			return c
		}
	}
	return "unknown"
}

type adminSubmitRequest struct {
	SourceType string          `json:"source_type"`
	Data       json.RawMessage `json:"data"`
}

func (s *Server) handleAdminSubmit(w http.ResponseWriter, r *http.Request) {
	var req adminSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	payload, err := dataToPayloadString(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.Moderator.Submit(r.Context(), req.SourceType, payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, moderation.ErrBadPayload) {
			status = http.StatusBadRequest
		}
		respondError(w, status, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": id})
}

// dataToPayloadString accepts "data" either as an already-encoded JSON
// string or as a JSON object, normalizing both to the opaque payload string
// Moderator.Submit expects.
func dataToPayloadString(data json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", errors.New("httpapi: data is required")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("httpapi: malformed data string: %w", err)
		}
		return s, nil
	}
	return trimmed, nil
}

func (s *Server) handleAdminPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.Pending.ListPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleAdminItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.Pending.ListAllPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid id"})
		return
	}
	chunkID, err := s.Moderator.Approve(r.Context(), id)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "approved", "chunk_id": chunkID})
}

func (s *Server) handleAdminReject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Moderator.Reject(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "rejected"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	datasets := map[string]int{}
	for _, corpus := range router.Corpus {
		n, err := s.Health.ChunkCount(r.Context(), corpus)
		if err != nil {
			continue
		}
		datasets[corpus] = n
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "datasets": datasets})
}

func (s *Server) alpha() float64 {
	if s.Alpha > 0 {
		return s.Alpha
	}
	return 0.5
}

func (s *Server) recencyWeight() float64 {
	return s.RecencyWeight
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
