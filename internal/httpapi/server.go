// Package httpapi exposes the service's stable HTTP surface: /ask,
// /admin/*, and /health, wired to the router, hybrid retriever, answer
// orchestrator, and admin moderator.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"campusqa/internal/answer"
	"campusqa/internal/moderation"
	"campusqa/internal/retrieve"
	"campusqa/internal/router"
	"campusqa/internal/store/relational"
)

// HealthStore is the slice of relational.Store the health handler depends
// on, narrowed so it can be faked in tests.
type HealthStore interface {
	ChunkCount(ctx context.Context, corpus string) (int, error)
}

// PendingStore is the slice of relational.Store the admin listing handlers
// depend on.
type PendingStore interface {
	ListPending(ctx context.Context) ([]relational.PendingItem, error)
	ListAllPending(ctx context.Context) ([]relational.PendingItem, error)
}

// Server wires the retrieval-and-answer engine to net/http.
type Server struct {
	Router     *router.Router
	Retrieve   *retrieve.Engine
	Answer     *answer.Orchestrator
	Moderator  *moderation.Moderator
	Health     HealthStore
	Pending    PendingStore

	DefaultTopK   int
	Alpha         float64
	RecencyWeight float64

	// Now returns the current time in the timezone the system clock's
	// "current date" is reported in (KST in production); overridable in
	// tests. Defaults to time.Now.
	Now func() time.Time

	mux     *http.ServeMux
	handler http.Handler
}

// NewServer builds a Server, registers its routes, and wraps them with the
// same trace-enriched, redacted request logging the LLM and embedding
// clients use for their own outbound calls.
func NewServer(s *Server) *Server {
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.handler = requestLoggingMiddleware(s.mux)
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) topK() int {
	if s.DefaultTopK > 0 {
		return s.DefaultTopK
	}
	return 5
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("POST /admin/submit", s.handleAdminSubmit)
	s.mux.HandleFunc("GET /admin/pending", s.handleAdminPending)
	s.mux.HandleFunc("GET /admin/items", s.handleAdminItems)
	s.mux.HandleFunc("POST /admin/approve/{id}", s.handleAdminApprove)
	s.mux.HandleFunc("POST /admin/reject/{id}", s.handleAdminReject)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}
