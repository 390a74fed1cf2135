package cache

import (
	"context"
	"sync"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
)

// showtimeSeats 單一場次的佔用集合與剩餘數量，由同一把鎖保護
type showtimeSeats struct {
	mu        sync.Mutex
	holders   map[model.SeatKey]string
	remaining map[model.SeatType]int
}

// MemorySeatInventory 每個場次一把鎖，不同場次互不阻塞
type MemorySeatInventory struct {
	mu    sync.RWMutex
	shows map[string]*showtimeSeats
}

func NewMemorySeatInventory() SeatInventory {
	return &MemorySeatInventory{shows: make(map[string]*showtimeSeats)}
}

func (m *MemorySeatInventory) show(showtimeID string) (*showtimeSeats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shows[showtimeID]
	if !ok {
		return nil, apperrors.ErrShowtimeNotFound
	}
	return s, nil
}

func (m *MemorySeatInventory) WarmUpInventory(ctx context.Context, showtimeID string, capacity map[model.SeatType]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shows[showtimeID]; ok {
		return nil
	}
	remaining := make(map[model.SeatType]int, len(model.CountedSeatTypes))
	for _, t := range model.CountedSeatTypes {
		remaining[t] = capacity[t]
	}
	m.shows[showtimeID] = &showtimeSeats{
		holders:   make(map[model.SeatKey]string),
		remaining: remaining,
	}
	return nil
}

func (m *MemorySeatInventory) ReserveSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) error {
	s, err := m.show(showtimeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. 檢查座位是否已被其他訂位佔用
	var taken []model.SeatKey
	fresh := make([]model.Seat, 0, len(seats))
	need := make(map[model.SeatType]int)
	for _, seat := range seats {
		holder, held := s.holders[seat.Key()]
		if held {
			if holder != bookingID {
				taken = append(taken, seat.Key())
			}
			continue
		}
		fresh = append(fresh, seat)
		if seat.Type.IsCounted() {
			need[seat.Type]++
		}
	}
	if len(taken) > 0 {
		return unavailableError(taken)
	}

	// 2. 檢查各類型剩餘數量
	for _, t := range model.CountedSeatTypes {
		if need[t] > s.remaining[t] {
			return &apperrors.CapacityError{SeatType: string(t)}
		}
	}

	// 3. 寫入佔用並扣減數量
	for _, seat := range fresh {
		s.holders[seat.Key()] = bookingID
	}
	for t, n := range need {
		s.remaining[t] -= n
	}
	return nil
}

func (m *MemorySeatInventory) ReleaseSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) (int, error) {
	s, err := m.show(showtimeID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, seat := range seats {
		if s.holders[seat.Key()] != bookingID {
			continue
		}
		delete(s.holders, seat.Key())
		if seat.Type.IsCounted() {
			s.remaining[seat.Type]++
		}
		released++
	}
	return released, nil
}

func (m *MemorySeatInventory) IsBooked(ctx context.Context, showtimeID string, key model.SeatKey) (bool, error) {
	s, err := m.show(showtimeID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.holders[key]
	return held, nil
}

func (m *MemorySeatInventory) BookedSeats(ctx context.Context, showtimeID string) (map[model.SeatKey]string, error) {
	s, err := m.show(showtimeID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.SeatKey]string, len(s.holders))
	for k, v := range s.holders {
		out[k] = v
	}
	return out, nil
}

func (m *MemorySeatInventory) Remaining(ctx context.Context, showtimeID string) (map[model.SeatType]int, error) {
	s, err := m.show(showtimeID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.SeatType]int, len(s.remaining))
	for k, v := range s.remaining {
		out[k] = v
	}
	return out, nil
}
