package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/queue"
	"go-gin-cinema-booking/internal/service"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification *model.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotifier) Close() error {
	return nil
}

// MockLedger 只實作清理排程用到的方法
type MockLedger struct {
	service.BookingLedger
	mock.Mock
}

func (m *MockLedger) ExpireStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	args := m.Called(ctx, now, timeout)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) CompleteFinished(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func notification(id string) *model.Notification {
	return &model.Notification{ID: id, Kind: model.NotificationBookingConfirmed, BookingID: "bk-" + id}
}

func runWorker(t *testing.T, w NotificationWorker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestNotificationWorker_Delivers(t *testing.T) {
	q := queue.NewMemoryNotificationQueue(10)
	notifier := &MockNotifier{}
	m := metrics.New()

	delivered := make(chan string, 2)
	notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { delivered <- args.Get(1).(*model.Notification).ID }).
		Return(nil)

	require.NoError(t, q.PublishNotification(context.Background(), notification("n1")))
	require.NoError(t, q.PublishNotification(context.Background(), notification("n2")))

	cancel, done := runWorker(t, NewNotificationWorker(q, notifier, m))

	assert.Equal(t, "n1", <-delivered)
	assert.Equal(t, "n2", <-delivered)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Notifications.WithLabelValues("booking.confirmed", "sent")))
}

func TestNotificationWorker_RetriesThenSucceeds(t *testing.T) {
	q := queue.NewMemoryNotificationQueue(10)
	notifier := &MockNotifier{}
	m := metrics.New()

	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Twice()
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, q.PublishNotification(context.Background(), notification("n1")))
	runWorker(t, NewNotificationWorker(q, notifier, m))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Notifications.WithLabelValues("booking.confirmed", "sent")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Notifications.WithLabelValues("booking.confirmed", "retry")))
}

func TestNotificationWorker_DropsAfterMaxAttempts(t *testing.T) {
	q := queue.NewMemoryNotificationQueue(10)
	notifier := &MockNotifier{}
	m := metrics.New()

	var calls atomic.Int32
	notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(errors.New("rejected"))

	require.NoError(t, q.PublishNotification(context.Background(), notification("n1")))
	runWorker(t, NewNotificationWorker(q, notifier, m))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Notifications.WithLabelValues("booking.confirmed", "dropped")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 丟棄後不再重試
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(defaultMaxAttempts), calls.Load())
}

func TestExpiryWorker_RunOnce(t *testing.T) {
	now := time.Date(2030, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("ExpireStale", mock.Anything, now, 30*time.Minute).Return(3, nil).Once()
		ledger.On("CompleteFinished", mock.Anything, now).Return(2, nil).Once()

		m := metrics.New()
		w := NewExpiryWorker(ledger, ExpiryWorkerConfig{Interval: time.Minute, StaleAfter: 30 * time.Minute}, m)
		w.now = func() time.Time { return now }

		expired, completed, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, expired)
		assert.Equal(t, 2, completed)
		assert.Equal(t, 2, testutil.CollectAndCount(m.SweepDuration))
		ledger.AssertExpectations(t)
	})

	t.Run("ExpireFailureStillCompletes", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("ExpireStale", mock.Anything, now, 30*time.Minute).Return(0, errors.New("db down")).Once()
		ledger.On("CompleteFinished", mock.Anything, now).Return(1, nil).Once()

		w := NewExpiryWorker(ledger, ExpiryWorkerConfig{Interval: time.Minute, StaleAfter: 30 * time.Minute}, nil)
		w.now = func() time.Time { return now }

		_, completed, err := w.RunOnce(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "expire stale")
		assert.Equal(t, 1, completed)
		ledger.AssertExpectations(t)
	})
}

func TestExpiryWorker_Run(t *testing.T) {
	t.Run("RunsOnSchedule", func(t *testing.T) {
		ledger := &MockLedger{}
		var runs atomic.Int32
		ledger.On("ExpireStale", mock.Anything, mock.Anything, 30*time.Minute).
			Run(func(mock.Arguments) { runs.Add(1) }).
			Return(0, nil)
		ledger.On("CompleteFinished", mock.Anything, mock.Anything).Return(0, nil)

		w := NewExpiryWorker(ledger, ExpiryWorkerConfig{Interval: 20 * time.Millisecond, StaleAfter: 30 * time.Minute}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not stop")
		}
	})

	t.Run("Failed - InvalidInterval", func(t *testing.T) {
		w := NewExpiryWorker(&MockLedger{}, ExpiryWorkerConfig{}, nil)
		assert.Error(t, w.Run(context.Background()))
	})
}
