package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStatusChanged CAS 失敗：訂位狀態已被其他請求改變
var ErrStatusChanged = errors.New("booking status changed concurrently")

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByNumber(ctx context.Context, number string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Booking, error)
	// pending 且建立時間早於 before
	ListPendingCreatedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error)
	// confirmed 且開演時間早於 before
	ListConfirmedStartedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error)
	// 場次內仍佔用座位的訂位，用於重建庫存
	ListHoldingSeats(ctx context.Context, showtimeID string) ([]*model.Booking, error)
	// 只在目前狀態等於 expected 時寫入，否則回傳 ErrStatusChanged
	UpdateIfStatus(ctx context.Context, booking *model.Booking, expected model.BookingStatus) (*model.Booking, error)
}

type BookingRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &BookingRepositoryImpl{
		pool: pool,
	}
}

const bookingColumns = `id, booking_number, user_id, showtime_id, movie_id, theater_id, hall,
	show_date, show_time, show_starts_at, tickets, total_amount,
	payment_method, payment_intent_id, payment_transaction_id, payment_status, paid_at,
	status, is_cancelled, cancelled_at, cancelled_by, refund_amount, refund_status,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b       model.Booking
		tickets []byte
	)
	err := row.Scan(
		&b.ID,
		&b.BookingNumber,
		&b.UserID,
		&b.ShowtimeID,
		&b.MovieID,
		&b.TheaterID,
		&b.Hall,
		&b.ShowDate,
		&b.ShowTime,
		&b.ShowStartsAt,
		&tickets,
		&b.TotalAmount,
		&b.Payment.Method,
		&b.Payment.IntentID,
		&b.Payment.TransactionID,
		&b.Payment.Status,
		&b.Payment.PaidAt,
		&b.Status,
		&b.Cancellation.IsCancelled,
		&b.Cancellation.CancelledAt,
		&b.Cancellation.CancelledBy,
		&b.Cancellation.RefundAmount,
		&b.Cancellation.RefundStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tickets, &b.Tickets); err != nil {
		return nil, fmt.Errorf("invalid tickets for booking %s: %w", b.ID, err)
	}
	return &b, nil
}

func (r *BookingRepositoryImpl) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*model.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (r *BookingRepositoryImpl) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	tickets, err := json.Marshal(booking.Tickets)
	if err != nil {
		return nil, err
	}

	createdAt := booking.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO bookings (
			id, booking_number, user_id, showtime_id, movie_id, theater_id, hall,
			show_date, show_time, show_starts_at, tickets, total_amount,
			payment_method, payment_intent_id, payment_status, status, refund_status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		RETURNING ` + bookingColumns

	created, err := scanBooking(r.pool.QueryRow(ctx, query,
		booking.ID, booking.BookingNumber, booking.UserID, booking.ShowtimeID,
		booking.MovieID, booking.TheaterID, booking.Hall,
		booking.ShowDate, booking.ShowTime, booking.ShowStartsAt, tickets, booking.TotalAmount,
		booking.Payment.Method, booking.Payment.IntentID, booking.Payment.Status,
		booking.Status, booking.Cancellation.RefundStatus,
		createdAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	return created, nil
}

func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) FindByNumber(ctx context.Context, number string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_number = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.queryBookings(ctx, query, userID)
}

func (r *BookingRepositoryImpl) ListPendingCreatedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`
	return r.queryBookings(ctx, query, model.BookingStatusPending, before)
}

func (r *BookingRepositoryImpl) ListConfirmedStartedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND show_starts_at < $2
		ORDER BY show_starts_at
	`
	return r.queryBookings(ctx, query, model.BookingStatusConfirmed, before)
}

func (r *BookingRepositoryImpl) ListHoldingSeats(ctx context.Context, showtimeID string) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE showtime_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at
	`
	return r.queryBookings(ctx, query, showtimeID,
		model.BookingStatusPending, model.BookingStatusConfirmed, model.BookingStatusCompleted)
}

func (r *BookingRepositoryImpl) UpdateIfStatus(ctx context.Context, booking *model.Booking, expected model.BookingStatus) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $1,
		    payment_intent_id = $2,
		    payment_transaction_id = $3,
		    payment_status = $4,
		    paid_at = $5,
		    is_cancelled = $6,
		    cancelled_at = $7,
		    cancelled_by = $8,
		    refund_amount = $9,
		    refund_status = $10,
		    updated_at = $11
		WHERE id = $12 AND status = $13
		RETURNING ` + bookingColumns

	updated, err := scanBooking(r.pool.QueryRow(ctx, query,
		booking.Status,
		booking.Payment.IntentID,
		booking.Payment.TransactionID,
		booking.Payment.Status,
		booking.Payment.PaidAt,
		booking.Cancellation.IsCancelled,
		booking.Cancellation.CancelledAt,
		booking.Cancellation.CancelledBy,
		booking.Cancellation.RefundAmount,
		booking.Cancellation.RefundStatus,
		time.Now().UTC(),
		booking.ID,
		expected,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	// 區分不存在與狀態已變
	if _, findErr := r.FindByID(ctx, booking.ID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrStatusChanged
}
