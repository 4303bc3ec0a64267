package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

type RouterConfig struct {
	Directory    *patient.Directory
	Allocator    *booking.Allocator
	Ledger       *ledger.Service
	Availability *availability.Store
	Reminders    *reminder.Scheduler

	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Post("/bookings", createBookingHandler(cfg.Directory, cfg.Allocator))

	r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Availability))

	r.Get("/appointments", listAppointmentsHandler(cfg.Ledger))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Ledger))
	r.Get("/appointments/{id}/audit", auditTrailHandler(cfg.Ledger))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Ledger, confirmEvent))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Ledger, cancelEvent))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Ledger, completeEvent))
	r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Ledger, noShowEvent))

	r.Get("/appointments/{id}/reminders", listRemindersHandler(cfg.Reminders))
	r.Post("/appointments/{id}/reminders/{stage}/response", reminderResponseHandler(cfg.Reminders))

	return r
}
