// Package api serves the lead-generation HTTP API: streamed generation
// runs, manual entry, and lead and run listings for the calling owner.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// Generator prepares and runs generation requests. *leadgen.Orchestrator
// satisfies it.
type Generator interface {
	Prepare(ctx context.Context, req leadgen.GenerateRequest) (*leadgen.Plan, error)
	Start(ctx context.Context, plan *leadgen.Plan) *leadgen.Stream
	ProcessManual(ctx context.Context, ownerID string, leads []leadgen.ManualLead) ([]leadgen.EnrichedLead, []leadgen.ManualFailure)
}

// Records reads and updates persisted leads and runs.
type Records interface {
	leadgen.LeadStore
	leadgen.RunStore
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP-layer settings.
type Config struct {
	AllowedOrigins []string
	// KeepAlive is the interval between SSE comment frames. Zero uses 15s.
	KeepAlive time.Duration
	// MaxManualLeads caps one manual-entry request. Zero uses 100.
	MaxManualLeads int
}

// Server holds the API's collaborators.
type Server struct {
	gen      Generator
	records  Records
	health   Pinger
	verifier auth.Verifier
	validate *validator.Validate
	cfg      Config
	now      func() time.Time
}

// NewServer creates a Server. health may be nil.
func NewServer(gen Generator, records Records, health Pinger, verifier auth.Verifier, cfg Config) *Server {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if cfg.MaxManualLeads <= 0 {
		cfg.MaxManualLeads = 100
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Server{
		gen:      gen,
		records:  records,
		health:   health,
		verifier: verifier,
		validate: v,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireOwner)
		r.Post("/leads/generate", s.handleGenerate)
		r.Post("/leads/manual", s.handleManual)
		r.Get("/leads", s.handleListLeads)
		r.Patch("/leads/{id}/status", s.handleUpdateStatus)
		r.Get("/runs", s.handleListRuns)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
