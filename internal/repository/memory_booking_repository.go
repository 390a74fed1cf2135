package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
)

type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	byNumber map[string]string
}

func NewMemoryBookingRepository() BookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*model.Booking),
		byNumber: make(map[string]string),
	}
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		return nil, fmt.Errorf("failed to create booking: duplicate id %s", booking.ID)
	}
	if _, ok := r.byNumber[booking.BookingNumber]; ok {
		return nil, fmt.Errorf("failed to create booking: duplicate number %s", booking.BookingNumber)
	}

	stored := booking.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.bookings[stored.ID] = stored
	r.byNumber[stored.BookingNumber] = stored.ID
	return stored.Clone(), nil
}

func (r *MemoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepository) FindByNumber(ctx context.Context, number string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[number]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	return r.bookings[id].Clone(), nil
}

func (r *MemoryBookingRepository) filter(match func(b *model.Booking) bool) []*model.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}

func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	out := r.filter(func(b *model.Booking) bool { return b.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryBookingRepository) ListPendingCreatedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	out := r.filter(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusPending && b.CreatedAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryBookingRepository) ListConfirmedStartedBefore(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	out := r.filter(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusConfirmed && b.ShowStartsAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ShowStartsAt.Before(out[j].ShowStartsAt) })
	return out, nil
}

func (r *MemoryBookingRepository) ListHoldingSeats(ctx context.Context, showtimeID string) ([]*model.Booking, error) {
	out := r.filter(func(b *model.Booking) bool {
		return b.ShowtimeID == showtimeID && b.Status.HoldsSeats()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryBookingRepository) UpdateIfStatus(ctx context.Context, booking *model.Booking, expected model.BookingStatus) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[booking.ID]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	if current.Status != expected {
		return nil, ErrStatusChanged
	}

	// 只更新可變欄位
	next := current.Clone()
	next.Status = booking.Status
	next.Payment = booking.Payment
	next.Cancellation = booking.Cancellation
	next.UpdatedAt = time.Now().UTC()
	next = next.Clone()
	r.bookings[next.ID] = next
	return next.Clone(), nil
}
