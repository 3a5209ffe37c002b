package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Notify(ctx context.Context, userID int64, payload []byte) error {
	args := m.Called(ctx, userID, payload)
	return args.Error(0)
}

func (m *mockTransport) Subscribe(ctx context.Context, userID int64) (<-chan []byte, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan []byte), args.Error(1)
}

func TestFailoverNotifier(t *testing.T) {
	primary := new(mockTransport)
	fallback := new(mockTransport)
	logger := zerolog.New(io.Discard)
	n := NewFailoverNotifier(primary, fallback, &logger)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }
	ctx := context.Background()
	payload := []byte("x")

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Notify", ctx, int64(1), payload).Return(nil).Once()

		assert.NoError(t, n.Notify(ctx, 1, payload))
		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PrimaryFailure", func(t *testing.T) {
		primary.On("Notify", ctx, int64(1), payload).Return(errors.New("redis down")).Once()
		fallback.On("Notify", ctx, int64(1), payload).Return(nil).Once()

		assert.NoError(t, n.Notify(ctx, 1, payload))
		assert.True(t, n.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWithinInterval", func(t *testing.T) {
		fallback.On("Notify", ctx, int64(1), payload).Return(nil).Once()

		assert.NoError(t, n.Notify(ctx, 1, payload))
		fallback.AssertExpectations(t)
		primary.AssertNumberOfCalls(t, "Notify", 2)
	})

	t.Run("Recovery", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Notify", ctx, int64(1), payload).Return(nil).Once()

		assert.NoError(t, n.Notify(ctx, 1, payload))
		assert.False(t, n.isDown.Load())
		primary.AssertExpectations(t)
	})
}

func TestFailoverNotifier_SubscribeMergesSources(t *testing.T) {
	logger := zerolog.New(io.Discard)
	mem := NewMemoryNotifier()
	primary := new(mockTransport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primaryCh := make(chan []byte, 1)
	primary.On("Subscribe", mock.Anything, int64(3)).Return((<-chan []byte)(primaryCh), nil).Once()

	n := NewFailoverNotifier(primary, mem, &logger)
	msgs, err := n.Subscribe(ctx, 3)
	require.NoError(t, err)

	primaryCh <- []byte("from redis")
	require.NoError(t, mem.Notify(ctx, 3, []byte("from memory")))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-msgs:
			got[string(m)] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged message")
		}
	}
	assert.True(t, got["from redis"])
	assert.True(t, got["from memory"])
}

func TestFailoverNotifier_PrimarySubscribeFails(t *testing.T) {
	logger := zerolog.New(io.Discard)
	mem := NewMemoryNotifier()
	primary := new(mockTransport)
	primary.On("Subscribe", mock.Anything, int64(3)).Return(nil, errors.New("down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewFailoverNotifier(primary, mem, &logger)
	msgs, err := n.Subscribe(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, mem.Notify(ctx, 3, []byte("ok")))
	assert.Equal(t, []byte("ok"), <-msgs)
}
