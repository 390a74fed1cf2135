package notify

import (
	"context"

	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/pkg/logger"

	"go.uber.org/zap"
)

// Notifier 把訂位事件送到外部通知服務
type Notifier interface {
	Notify(ctx context.Context, notification *model.Notification) error
	Close() error
}

// LogNotifier 只寫 log，本機開發與測試使用
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = logger.WithComponent("notify")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notification *model.Notification) error {
	n.log.Info("booking notification",
		zap.String("notification_id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.String("booking_id", notification.BookingID),
		zap.String("booking_number", notification.BookingNumber),
		zap.String("user_id", notification.UserID),
		zap.Strings("seats", notification.Seats),
		zap.Int64("total_amount", notification.TotalAmount),
		zap.Int64("refund_amount", notification.RefundAmount))
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
