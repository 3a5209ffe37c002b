package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seatbook/internal/api"
	"seatbook/internal/config"
	"seatbook/internal/database"
	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/export"
	"seatbook/internal/logging"
	"seatbook/internal/metrics"
	"seatbook/internal/notify"
	"seatbook/internal/service"
	"seatbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	notifier := initNotifier(redisClient, &logger)
	notify.NewForwarder(notifier, logging.Component(&logger, "notify")).Attach(bus)

	policy := service.PolicyFromConfig(cfg.Booking, cfg.App.Location())
	bookings := service.NewBookingService(db, bus, policy, logging.Component(&logger, "booking"))
	attendance := service.NewAttendanceService(db, bus, policy, logging.Component(&logger, "attendance"))
	wallets := service.NewWalletService(db, bus, policy, logging.Component(&logger, "wallet"))
	sweeps := newSweepService(cfg, db, redisClient, bus, &logger)

	startMetrics(ctx, cfg, &logger)
	startBackground(ctx, cfg, db, sweeps, redisClient, &logger)

	handler := api.NewHandler(api.Deps{
		Bookings:      bookings,
		Attendance:    attendance,
		Wallets:       wallets,
		Sweeps:        sweeps,
		Exporter:      export.NewExporter(db, cfg.Exports.Path, logging.Component(&logger, "export")),
		Notifications: notifier,
		Production:    cfg.App.IsProduction(),
	}, &logger)
	httpServer := api.NewHTTPServer(cfg.API, handler, &logger)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := notify.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := notify.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initNotifier prefers redis pub/sub so every instance can reach every
// subscriber, falling back to in-process delivery.
func initNotifier(redisClient *redis.Client, logger *zerolog.Logger) notify.Transport {
	memory := notify.NewMemoryNotifier()
	if redisClient == nil {
		return memory
	}
	return notify.NewFailoverNotifier(notify.NewRedisNotifier(redisClient), memory, logging.Component(logger, "notify"))
}

func newSweepService(cfg *config.Config, db *database.DB, redisClient *redis.Client, bus *events.EventBus, logger *zerolog.Logger) *service.SweepService {
	var locker domain.Locker = notify.NewMemoryLocker()
	if redisClient != nil {
		locker = notify.NewRedisLocker(redisClient)
	}
	grace := time.Duration(cfg.Sweep.GraceMinutes) * time.Minute
	lockTTL := time.Duration(cfg.Sweep.LockTTLSeconds) * time.Second
	return service.NewSweepService(db, locker, bus, grace, lockTTL, cfg.App.Location(), logging.Component(logger, "sweep"))
}

func startBackground(ctx context.Context, cfg *config.Config, db *database.DB, sweeps *service.SweepService,
	redisClient *redis.Client, logger *zerolog.Logger) {
	backup := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	if !cfg.Sweep.Enabled {
		logger.Info().Msg("sweep worker is disabled")
		return
	}
	interval := time.Duration(cfg.Sweep.IntervalMinutes) * time.Minute
	w := worker.NewSweepWorker(sweeps, redisClient, interval, worker.RetryPolicyFromConfig(cfg.Sweep.Retry),
		logging.Component(logger, "sweep-worker"))
	go w.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("env", cfg.App.Environment).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
