// Command sweep runs one reconciliation pass and exits. It is meant for cron
// or for operators catching up after downtime; the API process runs the same
// sweep on an interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seatbook/internal/config"
	"seatbook/internal/database"
	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/logging"
	"seatbook/internal/metrics"
	"seatbook/internal/notify"
	"seatbook/internal/service"
	"seatbook/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	at := flag.String("at", "", "evaluate as of this RFC3339 time instead of now")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "sweep-main").Logger()

	now := time.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics.Register()

	var locker domain.Locker = notify.NewMemoryLocker()
	bus := events.NewEventBus()
	if cfg.Redis.Address != "" {
		client := notify.NewRedisClient(cfg.Redis)
		defer client.Close()
		if err := notify.Ping(ctx, client); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, sweeping without the shared lock")
		} else {
			locker = notify.NewRedisLocker(client)
			notify.NewForwarder(notify.NewRedisNotifier(client), logging.Component(&logger, "notify")).Attach(bus)
		}
	}

	sweeps := service.NewSweepService(db, locker, bus,
		time.Duration(cfg.Sweep.GraceMinutes)*time.Minute,
		time.Duration(cfg.Sweep.LockTTLSeconds)*time.Second,
		cfg.App.Location(), logging.Component(&logger, "sweep"))

	w := worker.NewSweepWorker(atTime{sweeps, now}, nil, 0, worker.RetryPolicyFromConfig(cfg.Sweep.Retry), &logger)
	rep, err := w.RunOnce(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Bool("skipped", rep.Skipped).
		Int("missed", rep.Missed).
		Int("no_checkout", rep.NoCheckout).
		Int("completed", rep.Completed).
		Int("monthly_missed", rep.MonthlyMissed).
		Int("monthly_completed", rep.MonthlyCompleted).
		Int("sessions_closed", rep.SessionsClosed).
		Msg("sweep finished")
	return nil
}

// atTime pins every attempt to the same instant so retries are evaluated
// consistently.
type atTime struct {
	sweeps *service.SweepService
	now    time.Time
}

func (a atTime) RunSweep(ctx context.Context, _ time.Time) (service.SweepReport, error) {
	return a.sweeps.RunSweep(ctx, a.now)
}
