package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQNotifier 將通知發佈到 durable queue，routing key 即 queue 名稱
type RabbitMQNotifier struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQNotifier(url, queue string) (*RabbitMQNotifier, error) {
	n := &RabbitMQNotifier{url: url, queue: queue}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

// connect 呼叫前必須持有 mu（建構時除外）
func (n *RabbitMQNotifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	n.conn = conn
	n.ch = ch
	return nil
}

func (n *RabbitMQNotifier) Notify(ctx context.Context, notification *model.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// 連線中斷時重連一次
	if n.conn == nil || n.conn.IsClosed() || n.ch == nil || n.ch.IsClosed() {
		logger.WithComponent("notify").Warn("rabbitmq connection lost, reconnecting")
		n.closeLocked()
		if err := n.connect(); err != nil {
			return err
		}
	}

	err = n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    notification.ID,
		Type:         string(notification.Kind),
		Timestamp:    notification.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	logger.WithComponent("notify").Debug("notification published",
		zap.String("notification_id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.String("queue", n.queue))
	return nil
}

func (n *RabbitMQNotifier) closeLocked() {
	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}

func (n *RabbitMQNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
	return nil
}
