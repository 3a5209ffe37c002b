package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"seatbook/internal/config"
	"seatbook/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSweeper struct {
	mu    sync.Mutex
	fails int
	calls int
	seen  []time.Time
}

func (f *fakeSweeper) RunSweep(_ context.Context, now time.Time) (service.SweepReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, now)
	if f.calls <= f.fails {
		return service.SweepReport{}, errors.New("database is locked")
	}
	return service.SweepReport{Missed: 2}, nil
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func newWorker(s Sweeper, rdb *redis.Client, retry RetryPolicy) *SweepWorker {
	logger := zerolog.Nop()
	w := NewSweepWorker(s, rdb, time.Hour, retry, &logger)
	w.now = func() time.Time { return time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC) }
	return w
}

func TestRunOnceSuccess(t *testing.T) {
	s := &fakeSweeper{}
	w := newWorker(s, nil, fastRetry(3))

	rep, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Missed != 2 {
		t.Fatalf("expected report to pass through, got %+v", rep)
	}
	if s.Calls() != 1 {
		t.Fatalf("expected one call, got %d", s.Calls())
	}
	if !s.seen[0].Equal(w.now()) {
		t.Fatalf("expected sweep at worker clock, got %s", s.seen[0])
	}
}

func TestRunOnceRetries(t *testing.T) {
	s := &fakeSweeper{fails: 2}
	w := newWorker(s, nil, fastRetry(3))

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if s.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", s.Calls())
	}
}

func TestRunOnceDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := &fakeSweeper{fails: 100}
	w := newWorker(s, rdb, fastRetry(2))

	_, err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected failure")
	}
	if s.Calls() != 3 {
		t.Fatalf("expected 1 run + 2 retries, got %d", s.Calls())
	}

	items, err := rdb.LRange(context.Background(), deadLetterKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(items))
	}
	var run failedRun
	if err := json.Unmarshal([]byte(items[0]), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Attempts != 3 || run.Error != "database is locked" {
		t.Fatalf("unexpected dead letter %+v", run)
	}
}

func TestRunOnceCancelledDuringBackoff(t *testing.T) {
	s := &fakeSweeper{fails: 100}
	w := newWorker(s, nil, RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := w.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Calls() != 1 {
		t.Fatalf("expected a single attempt, got %d", s.Calls())
	}
}

func TestStartRunsImmediately(t *testing.T) {
	s := &fakeSweeper{}
	w := newWorker(s, nil, fastRetry(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.Calls() == 0 {
		select {
		case <-deadline:
			t.Fatalf("sweep never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.RetryConfig{MaxRetries: 4, InitialDelaySeconds: 3, MaxDelaySeconds: 30})
	if p.MaxRetries != 4 || p.InitialDelay != 3*time.Second || p.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected policy %+v", p)
	}
}
