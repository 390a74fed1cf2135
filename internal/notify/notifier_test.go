package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"go-gin-cinema-booking/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testNotification() *model.Notification {
	return &model.Notification{
		ID:            "n-1",
		Kind:          model.NotificationBookingCancelled,
		BookingID:     "bk-1",
		BookingNumber: "BK-abc",
		UserID:        "user-1",
		ShowtimeID:    "st-1",
		Seats:         []string{"C1"},
		TotalAmount:   338,
		RefundAmount:  338,
		OccurredAt:    time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), testNotification()))
	require.NoError(t, n.Close())

	entries := logs.FilterMessage("booking notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "booking.cancelled", fields["kind"])
	assert.Equal(t, "bk-1", fields["booking_id"])
	assert.Equal(t, int64(338), fields["refund_amount"])
}

func TestRabbitMQNotifier(t *testing.T) {
	url := os.Getenv("RABBITMQ_TEST_URL")
	if url == "" {
		t.Skip("RABBITMQ_TEST_URL not set")
	}
	queueName := "booking.events.test"

	n, err := NewRabbitMQNotifier(url, queueName)
	require.NoError(t, err)
	defer n.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	_, err = ch.QueuePurge(queueName, false)
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), testNotification()))

	var msg amqp.Delivery
	var ok bool
	assert.Eventually(t, func() bool {
		msg, ok, err = ch.Get(queueName, true)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)
	require.True(t, ok)

	assert.Equal(t, "booking.cancelled", msg.Type)
	var got model.Notification
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "bk-1", got.BookingID)
}
