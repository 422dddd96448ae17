// Package httpapi exposes the Decision Pipeline's outward contract
// (Decide, UpsertPolicy, GetActivePolicy, ListAudit) over an HTTP+JSON
// boundary. The core stays transport-agnostic; this package is the one
// place that knows about wire shapes, status codes, and routing.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/actionguard/gateway/internal/audit"
	"github.com/actionguard/gateway/internal/decision"
	"github.com/actionguard/gateway/internal/observability"
	"github.com/actionguard/gateway/internal/store"
)

// Server is the chi-based HTTP surface for the gateway's core operation.
type Server struct {
	router *chi.Mux

	pipeline    *decision.Pipeline
	policyStore store.PolicyStore
	auditSink   audit.Sink
	metrics     *observability.Metrics
}

// NewServer constructs the HTTP surface over the given collaborators.
func NewServer(pipeline *decision.Pipeline, policyStore store.PolicyStore, auditSink audit.Sink, metrics *observability.Metrics) *Server {
	s := &Server{
		pipeline:    pipeline,
		policyStore: policyStore,
		auditSink:   auditSink,
		metrics:     metrics,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/v1/decide", s.handleDecide)
	r.Route("/v1/projects/{project_id}/policy", func(r chi.Router) {
		r.Get("/", s.handleGetActivePolicy)
		r.Put("/", s.handleUpsertPolicy)
	})
	r.Get("/v1/audit", s.handleListAudit)

	s.router = r
}
