package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seatbook/internal/config"
	"seatbook/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "seatbook:sweep:failures"

// Sweeper is the reconciliation pass the worker drives.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (service.SweepReport, error)
}

// SweepWorker runs the sweep at startup and then on a fixed interval.
// Failed runs are retried with backoff; a run that exhausts its retries is
// recorded on a redis list when redis is available.
type SweepWorker struct {
	sweeper     Sweeper
	redis       *redis.Client
	retryPolicy RetryPolicy
	interval    time.Duration
	now         func() time.Time
	logger      *zerolog.Logger
}

// failedRun is what lands on the dead-letter list.
type failedRun struct {
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
}

func NewSweepWorker(sweeper Sweeper, redisClient *redis.Client, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 5 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	return &SweepWorker{
		sweeper:     sweeper,
		redis:       redisClient,
		retryPolicy: retry,
		interval:    interval,
		now:         time.Now,
		logger:      logger,
	}
}

// RetryPolicyFromConfig maps the sweep retry settings.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  time.Duration(cfg.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.MaxDelaySeconds) * time.Second,
		BackoffFactor: 2,
	}
}

// Start blocks until ctx is done.
func (w *SweepWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("sweep worker started")
	defer w.logger.Info().Msg("sweep worker stopped")

	w.runLogged(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *SweepWorker) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("sweep failed")
	}
}

// RunOnce performs one sweep, retrying failures per the retry policy.
func (w *SweepWorker) RunOnce(ctx context.Context) (service.SweepReport, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := w.retryPolicy.Wait(ctx, attempt); err != nil {
				return service.SweepReport{}, err
			}
		}
		attempts++
		rep, err := w.sweeper.RunSweep(ctx, w.now())
		if err == nil {
			return rep, nil
		}
		lastErr = err
		w.logger.Warn().Err(err).Int("attempt", attempts).Msg("sweep attempt failed")
	}

	w.pushDeadLetter(ctx, failedRun{At: w.now().UTC(), Attempts: attempts, Error: lastErr.Error()})
	return service.SweepReport{}, fmt.Errorf("sweep failed after %d attempts: %w", attempts, lastErr)
}

func (w *SweepWorker) pushDeadLetter(ctx context.Context, run failedRun) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(run)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode failed sweep")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("dead-letter push failed")
	}
}
