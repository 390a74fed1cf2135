package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-gin-cinema-booking/internal/cache"
	"go-gin-cinema-booking/internal/catalog"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/payment"
	"go-gin-cinema-booking/internal/pricing"
	"go-gin-cinema-booking/internal/repository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 2030-01-15 19:30 UTC 開演的場次，時鐘從五天前開始
var (
	testShowStart = time.Date(2030, 1, 15, 19, 30, 0, 0, time.UTC)
	testNow       = testShowStart.Add(-5 * 24 * time.Hour)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx       context.Context
	clock     *fakeClock
	catalog   *catalog.StaticCatalog
	policy    *pricing.Policy
	showtimes repository.ShowtimeRepository
	bookings  repository.BookingRepository
	inventory cache.SeatInventory
	scheduler SchedulerService
	ledger    BookingLedger
	showtime  *model.Showtime
}

func newFixture(t *testing.T, opts ...LedgerOption) *fixture {
	t.Helper()
	f := &fixture{
		ctx:       context.Background(),
		clock:     &fakeClock{now: testNow},
		catalog:   catalog.DemoCatalog(),
		policy:    pricing.DefaultPolicy(),
		showtimes: repository.NewMemoryShowtimeRepository(),
		bookings:  repository.NewMemoryBookingRepository(),
		inventory: cache.NewMemorySeatInventory(),
	}
	f.scheduler = NewSchedulerService(f.showtimes, f.bookings, f.catalog, f.policy, f.inventory, time.UTC)
	f.ledger = NewBookingLedger(f.bookings, f.scheduler, append([]LedgerOption{WithClock(f.clock.Now)}, opts...)...)

	showtime, err := f.scheduler.CreateShowtime(f.ctx, CreateShowtimeParams{
		MovieID:         "mv-001",
		TheaterID:       "pvr-juhu",
		Hall:            "Hall 1",
		Date:            "2030-01-15",
		StartTime:       "19:30",
		DurationMinutes: 120,
		BasePrice:       200,
	})
	require.NoError(t, err)
	f.showtime = showtime
	return f
}

func regular(row string, number int) model.Seat {
	return model.Seat{Row: row, Number: number, Type: model.SeatTypeRegular}
}

func (f *fixture) book(t *testing.T, userID string, seats ...model.Seat) *model.Booking {
	t.Helper()
	return f.bookOn(t, f.showtime.ID, userID, seats...)
}

func (f *fixture) bookOn(t *testing.T, showtimeID string, userID string, seats ...model.Seat) *model.Booking {
	t.Helper()
	booking, err := f.ledger.Create(f.ctx, CreateBookingParams{
		UserID:        userID,
		ShowtimeID:    showtimeID,
		Seats:         seats,
		PaymentMethod: model.PaymentMethodCard,
	})
	require.NoError(t, err)
	return booking
}

func (f *fixture) isAvailable(t *testing.T, row string, number int) bool {
	t.Helper()
	available, err := f.scheduler.SeatAvailability(f.ctx, f.showtime.ID, row, number)
	require.NoError(t, err)
	return available
}

func (f *fixture) remaining(t *testing.T, seatType model.SeatType) int {
	t.Helper()
	remaining, err := f.scheduler.Remaining(f.ctx, f.showtime.ID)
	require.NoError(t, err)
	return remaining[seatType]
}

// failingBookingRepository 寫入失敗，用來驗證座位回滾
type failingBookingRepository struct {
	repository.BookingRepository
	err error
}

func (r *failingBookingRepository) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	return nil, r.err
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, bookingID string, amount int64) (*payment.Intent, error) {
	args := m.Called(ctx, bookingID, amount)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishNotification(ctx context.Context, notification *model.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}
