// Package mockwebhook implements a local stand-in for the downstream webhook,
// for the dev harness and end-to-end tests.
package mockwebhook

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

// Call records one batch posted to the mock webhook.
type Call struct {
	Batch []lead.Record `json:"batch"`
}

// Server accepts lead batches and remembers them. It can be told to fail the
// next N deliveries with a fixed status, which is how retry behavior gets
// exercised against a real HTTP round trip.
type Server struct {
	mu         sync.Mutex
	calls      []Call
	failTimes  int
	failStatus int
}

func New() *Server {
	return &Server{failStatus: http.StatusServiceUnavailable}
}

// FailNext makes the next n POSTs respond with the given status before the
// server goes back to accepting batches.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTimes = n
	if status != 0 {
		s.failStatus = status
	}
}

// Calls returns a snapshot of accepted batches.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Leads returns every accepted record in delivery order.
func (s *Server) Leads() []lead.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []lead.Record
	for _, c := range s.calls {
		out = append(out, c.Batch...)
	}
	return out
}

// Handler returns the HTTP surface: POST /webhook and GET /calls.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/calls", s.handleCalls)
	return r
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.failTimes > 0 {
		s.failTimes--
		status := s.failStatus
		s.mu.Unlock()
		http.Error(w, "injected failure", status)
		return
	}
	s.mu.Unlock()

	var batch []lead.Record
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "body must be a JSON array of lead records", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Batch: batch})
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCalls(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Calls())
}
