package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"seatbook/internal/domain"

	"github.com/rs/zerolog"
)

// Transport is a notification channel that can both send and stream.
type Transport interface {
	domain.Notifier
	domain.NotificationSource
}

const recoveryInterval = time.Minute

// FailoverNotifier sends through the primary transport and switches to the
// fallback when it errors, retrying the primary once a minute.
type FailoverNotifier struct {
	primary   Transport
	fallback  Transport
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverNotifier(primary, fallback Transport, logger *zerolog.Logger) *FailoverNotifier {
	return &FailoverNotifier{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *FailoverNotifier) markDown(err error) {
	if !n.isDown.Swap(true) {
		n.logger.Error().Err(err).Msg("primary notifier failed, falling back to memory")
	}
	n.lastCheck.Store(n.now().UnixNano())
}

func (n *FailoverNotifier) Notify(ctx context.Context, userID int64, payload []byte) error {
	if !n.isDown.Load() {
		err := n.primary.Notify(ctx, userID, payload)
		if err == nil {
			return nil
		}
		n.markDown(err)
	} else if n.now().Sub(time.Unix(0, n.lastCheck.Load())) > recoveryInterval {
		if err := n.primary.Notify(ctx, userID, payload); err == nil {
			n.isDown.Store(false)
			n.logger.Info().Msg("primary notifier recovered")
			return nil
		}
		n.lastCheck.Store(n.now().UnixNano())
	}

	return n.fallback.Notify(ctx, userID, payload)
}

// Subscribe listens on both transports so a subscriber keeps receiving
// across a switch. A primary that cannot subscribe is skipped.
func (n *FailoverNotifier) Subscribe(ctx context.Context, userID int64) (<-chan []byte, error) {
	fb, err := n.fallback.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}
	sources := []<-chan []byte{fb}
	if pr, err := n.primary.Subscribe(ctx, userID); err == nil {
		sources = append(sources, pr)
	} else {
		n.logger.Warn().Err(err).Int64("user_id", userID).Msg("primary subscribe failed")
	}
	return merge(ctx, sources...), nil
}

func merge(ctx context.Context, sources ...<-chan []byte) <-chan []byte {
	out := make(chan []byte, 16)
	var wg sync.WaitGroup
	wg.Add(len(sources))
	for _, src := range sources {
		go func(src <-chan []byte) {
			defer wg.Done()
			for msg := range src {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
