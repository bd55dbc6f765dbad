package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/enricher"
	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/insights"
	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/report"
	"github.com/gosight/logflow/internal/tracker"
)

// Tracker is the tracker surface the HTTP API drives
type Tracker interface {
	Record(ctx context.Context, hit tracker.Hit)
	SetUserID(userID string)
	StartSession(ctx context.Context)
	EndSession(ctx context.Context)
	Events() []event.Event
	Sessions() []event.Session
	CurrentSession() *event.Session
	Snapshot() event.Snapshot
	ClearData(ctx context.Context)
}

// Dashboard serves precomputed summaries
type Dashboard interface {
	Latest() analytics.Summary
	Refresh() analytics.Summary
	Recomputes() int
}

type Options struct {
	Tracker   Tracker
	Dashboard Dashboard
	Generator report.Generator
	Enricher  *enricher.Enricher
	Insights  *insights.Detector
	Metrics   *metrics.Metrics
	Limiter   Limiter

	ReportTimeout time.Duration
	TimeRange     string
	Location      *time.Location
}

type Server struct {
	tracker   Tracker
	dashboard Dashboard
	generator report.Generator
	enricher  *enricher.Enricher
	insights  *insights.Detector
	metrics   *metrics.Metrics
	limiter   Limiter

	reportTimeout time.Duration
	timeRange     string
	loc           *time.Location
	now           func() time.Time
}

func New(opts Options) *Server {
	s := &Server{
		tracker:       opts.Tracker,
		dashboard:     opts.Dashboard,
		generator:     opts.Generator,
		enricher:      opts.Enricher,
		insights:      opts.Insights,
		metrics:       opts.Metrics,
		limiter:       opts.Limiter,
		reportTimeout: opts.ReportTimeout,
		timeRange:     opts.TimeRange,
		loc:           opts.Location,
		now:           time.Now,
	}
	if s.generator == nil {
		s.generator = report.NewSummary()
	}
	if s.enricher == nil {
		s.enricher = enricher.NewEnricher("")
	}
	if s.insights == nil {
		s.insights = insights.NewDetector(config.InsightsConfig{})
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

// Router builds the chi router with every route mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)

	r.Get("/health", HealthCheck)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(RateLimit(s.limiter))
		}

		r.Post("/events", s.HandleEvents)
		r.Get("/events", s.HandleListEvents)
		r.Post("/user", s.HandleSetUser)
		r.Post("/session/start", s.HandleStartSession)
		r.Post("/session/end", s.HandleEndSession)
		r.Get("/session/current", s.HandleCurrentSession)
		r.Get("/sessions", s.HandleListSessions)

		r.Get("/dashboard", s.HandleDashboard)
		r.Get("/top", s.HandleTop)
		r.Get("/breakdown", s.HandleBreakdown)
		r.Get("/timeline", s.HandleTimeline)
		r.Post("/funnel", s.HandleFunnel)
		r.Get("/insights", s.HandleInsights)

		r.Post("/report", s.HandleReport)
		r.Delete("/data", s.HandleClear)
	})

	return r
}
