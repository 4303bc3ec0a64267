package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

const version = "0.3.0"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	ledgerRepo := ledger.NewPgRepository(pgPool)
	ledgerSvc := ledger.NewService(ledgerRepo, log)
	ledgerSvc.SetMetrics(bookingMetrics)

	patientRepo := patient.NewPgRepository(pgPool)
	directory := patient.NewDirectory(patientRepo, ledgerRepo, log)

	dayLocker := redisclient.NewDayLocker(rdb, cfg.LockTTL)
	store := availability.NewStore(availability.NewPgRepository(pgPool), dayLocker, cfg.SlotGrid, log)

	allocator := booking.NewAllocator(store, ledgerSvc, cfg.LookAheadDays, cfg.BookingRetries, bookingMetrics, log)

	scheduler := reminder.NewScheduler(
		reminder.NewPgRepository(pgPool),
		ledgerSvc,
		patientRepo,
		newDispatcher(cfg, log),
		reminder.SchedulerConfig{
			DispatchTimeout: cfg.DispatchTimeout,
			MaxAttempts:     cfg.DispatchRetries,
			OpsRecipient:    cfg.OpsRecipient,
		},
		bookingMetrics,
		log,
	)
	ledgerSvc.SetReminderPlanner(scheduler)

	router := api.NewRouter(api.RouterConfig{
		Directory:    directory,
		Allocator:    allocator,
		Ledger:       ledgerSvc,
		Availability: store,
		Reminders:    scheduler,
		PgPool:       pgPool,
		Redis:        rdb,
		Registry:     registry,
		Logger:       log,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// newDispatcher picks the real email transport when a SendGrid key is
// configured and falls back to log-only delivery in dev.
func newDispatcher(cfg config.Config, log zerolog.Logger) notify.Dispatcher {
	if cfg.SendGridAPIKey == "" {
		log.Warn().Msg("SENDGRID_API_KEY not set, using log dispatcher")
		return notify.NewLogDispatcher(log)
	}

	email, err := notify.NewEmailDispatcher(notify.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("email dispatcher init error")
	}
	return notify.NewBreakerDispatcher(email, log)
}
