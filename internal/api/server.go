// Package api is the thin REST/JSON surface over aggregate.Service,
// routed with gorilla/mux the way the teacher's APIServer wires
// internal/handlers. It does not implement business logic; each route
// decodes path/query parameters, calls one Service method, and encodes
// the result.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gonka-ai/inferencecache/internal/aggregate"
	"github.com/gonka-ai/inferencecache/internal/middleware"
)

// Server exposes cached epoch/participant/model views over HTTP.
type Server struct {
	svc         *aggregate.Service
	logger      *log.Logger
	rateLimiter *middleware.RateLimiter
}

// NewServer builds a Server over the given aggregation service.
func NewServer(svc *aggregate.Service) *Server {
	return &Server{
		svc:    svc,
		logger: log.New(log.Writer(), "[API] ", log.LstdFlags),
		rateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			MaxCallsPerMinute: 600,
		}),
	}
}

// Router builds the gorilla/mux router with CORS, logging, and
// rate-limiting middleware, the way the teacher's APIServer.Start
// assembles routes.
func (s *Server) Router(corsAllowOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware(corsAllowOrigins))
	r.Use(s.loggingMiddleware)
	r.Use(s.rateLimiter.Middleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/epochs/current", s.handleCurrentEpoch).Methods("GET")
	r.HandleFunc("/epochs/{epochId}", s.handleHistoricalEpoch).Methods("GET")
	r.HandleFunc("/epochs/{epochId}/participants/{participantId}", s.handleParticipantDetails).Methods("GET")
	r.HandleFunc("/epochs/{epochId}/participants/{participantId}/inferences", s.handleParticipantInferences).Methods("GET")
	r.HandleFunc("/models", s.handleCurrentModels).Methods("GET")
	r.HandleFunc("/epochs/{epochId}/models", s.handleHistoricalModels).Methods("GET")
	r.HandleFunc("/timeline", s.handleTimeline).Methods("GET")

	return r
}

func corsMiddleware(allowOrigins []string) mux.MiddlewareFunc {
	origin := "*"
	if len(allowOrigins) > 0 {
		origin = allowOrigins[0]
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, breakers := s.svc.UpstreamHealth()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"upstream_breakers": breakers,
	})
}
