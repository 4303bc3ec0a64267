package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reminder-worker").Logger()
	log.Info().Msg("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configuration loaded")

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

	ledgerSvc := ledger.NewService(ledger.NewPgRepository(pgPool), log)

	scheduler := reminder.NewScheduler(
		reminder.NewPgRepository(pgPool),
		ledgerSvc,
		patient.NewPgRepository(pgPool),
		newDispatcher(cfg, log),
		reminder.SchedulerConfig{
			DispatchTimeout: cfg.DispatchTimeout,
			MaxAttempts:     cfg.DispatchRetries,
			OpsRecipient:    cfg.OpsRecipient,
		},
		nil,
		log,
	)
	ledgerSvc.SetReminderPlanner(scheduler)

	// Run once at startup, then on the ticker.
	runOnce(rootCtx, scheduler, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, scheduler, log)
		}
	}
}

func runOnce(ctx context.Context, scheduler *reminder.Scheduler, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := scheduler.Tick(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Info().Int("dispatched", sent).Dur("took", time.Since(start)).Msg("reminder run complete")
}

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
