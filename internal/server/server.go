// Package server exposes the enrichment pipeline over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-enricher/internal/bulk"
	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/importjob"
	"github.com/sells-group/prospect-enricher/internal/model"
)

// Enricher runs the single-prospect path.
type Enricher interface {
	Enrich(ctx context.Context, prospectID string) (*enrich.Result, error)
}

// BulkStarter starts bulk jobs.
type BulkStarter interface {
	Start(ctx context.Context, req bulk.Request) (*bulk.Run, error)
}

// Importer runs and cancels import chunks.
type Importer interface {
	Resume(ctx context.Context, jobID string) (*importjob.ProcessResult, error)
	Cancel(ctx context.Context, jobID string) (*model.ImportJob, error)
}

// Store is the read and admin surface the handlers use directly.
type Store interface {
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	ResetProspect(ctx context.Context, id, note string, staleBefore time.Time) error
	ListContacts(ctx context.Context, prospectID string) ([]model.Contact, error)
	GetJob(ctx context.Context, id string) (*model.EnrichmentJob, error)
	RequestStop(ctx context.Context, id string) error
	ListJobItems(ctx context.Context, jobID string) ([]model.JobItem, error)
	GetImportJob(ctx context.Context, id string) (*model.ImportJob, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Enricher Enricher
	Bulk     BulkStarter
	Imports  Importer
	Store    Store
	// ImportToken, when set, is the bearer token required on import/process.
	ImportToken string
	// LeaseTTL is how old a lease must be before a reset may clear it.
	// Zero means ten minutes.
	LeaseTTL time.Duration
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	d      Deps
	cfg    config.ServerConfig
	router chi.Router
}

// New builds the router. Reads and writes are throttled by separate limiters.
func New(d Deps, cfg config.ServerConfig) *Server {
	s := &Server{d: d, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(throttle(newLimiter(cfg.ReadRPS, cfg.ReadBurst)))
			r.Get("/prospects/{id}", s.handleGetProspect)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Get("/imports/{id}", s.handleGetImport)
		})
		r.Group(func(r chi.Router) {
			r.Use(throttle(newLimiter(cfg.WriteRPS, cfg.WriteBurst)))
			r.Post("/enrich/single", s.handleEnrichSingle)
			r.Post("/enrich/bulk", s.handleEnrichBulk)
			r.Post("/jobs/{id}/stop", s.handleStopJob)
			r.With(requireToken(d.ImportToken)).Post("/import/process", s.handleImportProcess)
			r.Post("/imports/{id}/cancel", s.handleCancelImport)
			r.Post("/prospects/{id}/reset", s.handleResetProspect)
		})
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// newLimiter returns nil, meaning unlimited, when rps is not positive.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func throttle(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
