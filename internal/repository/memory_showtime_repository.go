package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
)

// MemoryShowtimeRepository 單一把鎖涵蓋重疊檢查與寫入
type MemoryShowtimeRepository struct {
	mu        sync.RWMutex
	showtimes map[string]*model.Showtime
}

func NewMemoryShowtimeRepository() ShowtimeRepository {
	return &MemoryShowtimeRepository{showtimes: make(map[string]*model.Showtime)}
}

func copyShowtime(s *model.Showtime) *model.Showtime {
	c := *s
	c.Remaining = nil
	return &c
}

func (r *MemoryShowtimeRepository) CreateIfNoOverlap(ctx context.Context, showtime *model.Showtime) (*model.Showtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.showtimes {
		if existing.TheaterID != showtime.TheaterID || existing.Hall != showtime.Hall || existing.Date != showtime.Date {
			continue
		}
		if existing.IsActive() && existing.Overlaps(showtime.StartTime, showtime.EndTime) {
			return nil, apperrors.ErrScheduleConflict
		}
	}

	now := time.Now().UTC()
	stored := copyShowtime(showtime)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.showtimes[stored.ID] = stored
	return copyShowtime(stored), nil
}

func (r *MemoryShowtimeRepository) FindByID(ctx context.Context, id string) (*model.Showtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.showtimes[id]
	if !ok {
		return nil, apperrors.ErrShowtimeNotFound
	}
	return copyShowtime(s), nil
}

func (r *MemoryShowtimeRepository) List(ctx context.Context, filter model.ShowtimeFilter) ([]*model.Showtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Showtime
	for _, s := range r.showtimes {
		if filter.TheaterID != "" && s.TheaterID != filter.TheaterID {
			continue
		}
		if filter.Hall != "" && s.Hall != filter.Hall {
			continue
		}
		if filter.Date != "" && s.Date != filter.Date {
			continue
		}
		if filter.OnlyActive && !s.IsActive() {
			continue
		}
		out = append(out, copyShowtime(s))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].Hall < out[j].Hall
	})
	return out, nil
}

func (r *MemoryShowtimeRepository) UpdateStatus(ctx context.Context, id string, status model.ShowtimeStatus) (*model.Showtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.showtimes[id]
	if !ok {
		return nil, apperrors.ErrShowtimeNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return copyShowtime(s), nil
}
