package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/availability"
	"github.com/hackgods/clinic-calendar-engine/internal/layout"
	"github.com/hackgods/clinic-calendar-engine/internal/occupancy"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

// CalendarService is the part of scheduling.Service the HTTP layer drives.
type CalendarService interface {
	Availability(ctx context.Context, q scheduling.AvailabilityQuery) (availability.Result, error)
	DayLayout(ctx context.Context, day time.Time, site appointment.Site) ([]layout.Positioned, error)
	WeekLayout(ctx context.Context, weekStart time.Time, days int, site appointment.Site) ([]layout.Positioned, error)
	Snapshot(ctx context.Context, site appointment.Site) (*occupancy.Snapshot, error)
	Heatmap(ctx context.Context, from, to time.Time, site appointment.Site) ([]occupancy.DayStat, error)
	CompareSites(ctx context.Context) ([]occupancy.SiteSummary, error)

	Book(ctx context.Context, req scheduling.BookingRequest) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointment.Appointment, error)
}

type RouterConfig struct {
	Service  CalendarService
	Postgres CheckFunc
	Redis    CheckFunc
	Metrics  prometheus.Gatherer
	Logger   zerolog.Logger
	Location *time.Location
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	h := &handlers{svc: cfg.Service, loc: loc, log: cfg.Logger}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.Get("/availability", h.availability)

	r.Route("/calendar", func(r chi.Router) {
		r.Get("/day", h.day)
		r.Get("/week", h.week)
	})

	r.Route("/occupancy", func(r chi.Router) {
		r.Get("/", h.occupancy)
		r.Get("/heatmap", h.heatmap)
		r.Get("/sites", h.sites)
	})

	r.Post("/appointments", h.createAppointment)
	r.Post("/appointments/{id}/status", h.updateStatus)
	r.Post("/appointments/{id}/reschedule", h.reschedule)

	return r
}
