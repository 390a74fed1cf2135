package model

import "time"

// NotificationKind 通知事件種類
type NotificationKind string

const (
	NotificationBookingCreated   NotificationKind = "booking.created"
	NotificationBookingConfirmed NotificationKind = "booking.confirmed"
	NotificationBookingCancelled NotificationKind = "booking.cancelled"
	NotificationBookingExpired   NotificationKind = "booking.expired"
)

// Notification 發送給通知服務的事件（fire-and-forget）
type Notification struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	BookingID     string           `json:"booking_id"`
	BookingNumber string           `json:"booking_number"`
	UserID        string           `json:"user_id"`
	ShowtimeID    string           `json:"showtime_id"`
	Seats         []string         `json:"seats"`
	TotalAmount   int64            `json:"total_amount"`
	RefundAmount  int64            `json:"refund_amount,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewNotification 由訂位產生通知事件
func NewNotification(id string, kind NotificationKind, b *Booking, at time.Time) *Notification {
	seats := make([]string, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		seats = append(seats, t.Key().String())
	}
	return &Notification{
		ID:            id,
		Kind:          kind,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		UserID:        b.UserID,
		ShowtimeID:    b.ShowtimeID,
		Seats:         seats,
		TotalAmount:   b.TotalAmount,
		RefundAmount:  b.Cancellation.RefundAmount,
		OccurredAt:    at,
	}
}
