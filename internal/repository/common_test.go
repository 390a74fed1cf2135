package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-gin-cinema-booking/config"
	"go-gin-cinema-booking/internal/database"
	"go-gin-cinema-booking/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testDBOnce sync.Once
	testDB     *pgxpool.Pool
	testDBErr  error
)

// getTestDB 測試 DB (5433) 連不上時跳過 Postgres 測試
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testDBOnce.Do(func() {
		cfg := config.LoadTestConfig()
		testDB, testDBErr = database.InitDatabase(&cfg.Database)
		if testDBErr == nil {
			testDBErr = database.EnsureSchema(context.Background(), testDB)
		}
	})
	if testDBErr != nil {
		t.Skipf("test database unavailable: %v", testDBErr)
	}
	return testDB
}

func setupTestWithTruncate(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool := getTestDB(t)

	// 清空所有測試資料，保留 schema
	_, err := pool.Exec(context.Background(), "TRUNCATE showtimes, bookings")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return pool
}

// 兩種實作跑同一組測試
func forEachShowtimeRepository(t *testing.T, fn func(t *testing.T, repo ShowtimeRepository)) {
	t.Run("Memory", func(t *testing.T) {
		fn(t, NewMemoryShowtimeRepository())
	})
	t.Run("Postgres", func(t *testing.T) {
		fn(t, NewShowtimeRepository(setupTestWithTruncate(t)))
	})
}

func forEachBookingRepository(t *testing.T, fn func(t *testing.T, repo BookingRepository)) {
	t.Run("Memory", func(t *testing.T) {
		fn(t, NewMemoryBookingRepository())
	})
	t.Run("Postgres", func(t *testing.T) {
		fn(t, NewBookingRepository(setupTestWithTruncate(t)))
	})
}

func newTestShowtime(hall, start, end string) *model.Showtime {
	return &model.Showtime{
		ID:        uuid.New().String(),
		MovieID:   "mv-001",
		TheaterID: "pvr-juhu",
		Hall:      hall,
		Date:      "2030-01-15",
		StartTime: start,
		EndTime:   end,
		Prices:    model.PriceTable{Regular: 200, Premium: 300, VIP: 440},
		Status:    model.ShowtimeStatusActive,
	}
}

func newTestBooking(userID, showtimeID string, createdAt time.Time) *model.Booking {
	id := uuid.New().String()
	return &model.Booking{
		ID:            id,
		BookingNumber: fmt.Sprintf("BK-%s", id[:8]),
		UserID:        userID,
		ShowtimeID:    showtimeID,
		MovieID:       "mv-001",
		TheaterID:     "pvr-juhu",
		Hall:          "Hall 1",
		ShowDate:      "2030-01-15",
		ShowTime:      "19:30",
		ShowStartsAt:  time.Date(2030, 1, 15, 19, 30, 0, 0, time.UTC),
		Tickets: []model.Ticket{
			{ID: uuid.New().String(), Row: "A", Number: 2, Type: model.SeatTypeRegular, Price: 200},
			{ID: uuid.New().String(), Row: "A", Number: 3, Type: model.SeatTypeRegular, Price: 200},
		},
		TotalAmount: 400,
		Payment: model.Payment{
			Method: model.PaymentMethodCard,
			Status: model.PaymentStatusPending,
		},
		Status:       model.BookingStatusPending,
		Cancellation: model.Cancellation{RefundStatus: model.RefundStatusNone},
		CreatedAt:    createdAt.UTC().Truncate(time.Microsecond),
	}
}
