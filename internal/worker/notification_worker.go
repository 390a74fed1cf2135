package worker

import (
	"context"
	"sync"

	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/notify"
	"go-gin-cinema-booking/internal/queue"
	"go-gin-cinema-booking/pkg/logger"

	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

type NotificationWorker interface {
	// 訂閱通知隊列並轉送給 Notifier，直到 ctx 結束
	Run(ctx context.Context) error
}

type NotificationWorkerImpl struct {
	queue       queue.NotificationQueue
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	maxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

// NewNotificationWorker metrics 可為 nil
func NewNotificationWorker(q queue.NotificationQueue, notifier notify.Notifier, m *metrics.Metrics) NotificationWorker {
	return &NotificationWorkerImpl{
		queue:       q,
		notifier:    notifier,
		metrics:     m,
		maxAttempts: defaultMaxAttempts,
		attempts:    make(map[string]int),
	}
}

func (w *NotificationWorkerImpl) Run(ctx context.Context) error {
	msgs, err := w.queue.SubscribeNotifications(ctx)
	if err != nil {
		return err
	}

	log := logger.WithComponent("notify")
	log.Info("notification worker started")
	for msg := range msgs {
		w.handle(ctx, msg)
	}
	log.Info("notification worker stopped")
	return nil
}

func (w *NotificationWorkerImpl) handle(ctx context.Context, msg queue.Delivery) {
	n := msg.Data
	err := w.notifier.Notify(ctx, n)
	if err == nil {
		w.forget(n.ID)
		w.count(string(n.Kind), "sent")
		msg.Ack()
		return
	}

	attempts := w.recordAttempt(n.ID)
	log := logger.WithComponent("notify").With(
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.Int("attempt", attempts),
		zap.Error(err))

	if attempts >= w.maxAttempts {
		log.Error("notification dropped after max attempts")
		w.forget(n.ID)
		w.count(string(n.Kind), "dropped")
		msg.Nack(false)
		return
	}

	log.Warn("notification failed, requeue")
	w.count(string(n.Kind), "retry")
	msg.Nack(true)
}

func (w *NotificationWorkerImpl) recordAttempt(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[id]++
	return w.attempts[id]
}

func (w *NotificationWorkerImpl) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, id)
}

func (w *NotificationWorkerImpl) count(kind, result string) {
	if w.metrics != nil {
		w.metrics.Notifications.WithLabelValues(kind, result).Inc()
	}
}
