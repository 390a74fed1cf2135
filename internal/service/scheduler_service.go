package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-gin-cinema-booking/internal/cache"
	"go-gin-cinema-booking/internal/catalog"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/pricing"
	"go-gin-cinema-booking/internal/repository"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minutesPerDay = 24 * 60
	sandboxPrefix = "sandbox-"
)

// CreateShowtimeParams 建立場次參數
type CreateShowtimeParams struct {
	MovieID         string
	TheaterID       string
	Hall            string
	Date            string
	StartTime       string
	DurationMinutes int
	BasePrice       int64
}

type SchedulerService interface {
	// 建立場次：檢查時段重疊、凍結票價、預熱座位庫存
	CreateShowtime(ctx context.Context, params CreateShowtimeParams) (*model.Showtime, error)
	GetShowtime(ctx context.Context, id string) (*model.Showtime, error)
	ListShowtimes(ctx context.Context, filter model.ShowtimeFilter) ([]*model.Showtime, error)
	CancelShowtime(ctx context.Context, id string) (*model.Showtime, error)
	SeatAvailability(ctx context.Context, showtimeID string, row string, number int) (bool, error)
	Remaining(ctx context.Context, showtimeID string) (map[model.SeatType]int, error)
	SeatMap(ctx context.Context, showtimeID string) (*model.SeatMap, error)
	Resolve(ctx context.Context, showtimeID string) (ShowtimeSource, error)
	RegisterSynthetic(ctx context.Context, showtime *model.Showtime, hall *model.Hall) (ShowtimeSource, error)
	CreateSandboxShowtime(ctx context.Context, params CreateShowtimeParams) (ShowtimeSource, error)
	// 啟動時依仍佔位的訂位重建座位庫存
	RestoreInventory(ctx context.Context) (int, error)
	Location() *time.Location
}

type SchedulerServiceImpl struct {
	repository        repository.ShowtimeRepository
	bookingRepository repository.BookingRepository
	catalog           catalog.Catalog
	policy            *pricing.Policy
	inventory         cache.SeatInventory
	location          *time.Location

	mu        sync.RWMutex
	synthetic map[string]*SyntheticShowtime
}

func NewSchedulerService(
	showtimeRepository repository.ShowtimeRepository,
	bookingRepository repository.BookingRepository,
	catalog catalog.Catalog,
	policy *pricing.Policy,
	inventory cache.SeatInventory,
	location *time.Location,
) SchedulerService {
	if policy == nil {
		policy = pricing.DefaultPolicy()
	}
	if location == nil {
		location = time.UTC
	}
	return &SchedulerServiceImpl{
		repository:        showtimeRepository,
		bookingRepository: bookingRepository,
		catalog:           catalog,
		policy:            policy,
		inventory:         inventory,
		location:          location,
		synthetic:         make(map[string]*SyntheticShowtime),
	}
}

func (s *SchedulerServiceImpl) Location() *time.Location {
	return s.location
}

// showtimeWindow 驗證日期與開演時間，回傳補零後的開演與散場時間，不可跨日
func showtimeWindow(date string, startTime string, durationMinutes int) (string, string, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return "", "", apperrors.Validation("invalid date %q, expected YYYY-MM-DD", date)
	}
	start, err := time.Parse(model.TimeLayout, startTime)
	if err != nil {
		return "", "", apperrors.Validation("invalid start time %q, expected HH:MM", startTime)
	}
	if durationMinutes <= 0 {
		return "", "", apperrors.Validation("duration must be positive")
	}

	begin := start.Hour()*60 + start.Minute()
	end := begin + durationMinutes
	if end > minutesPerDay {
		return "", "", apperrors.Validation("showtime must end by 24:00 on %s", date)
	}
	return clock(begin), clock(end), nil
}

// 重疊判斷與排序都比較 HH:MM 字串，必須固定兩位數
func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// prepareShowtime 驗證參數、查目錄並凍結票價，尚未寫入
func (s *SchedulerServiceImpl) prepareShowtime(ctx context.Context, params CreateShowtimeParams) (*model.Showtime, *model.Hall, error) {
	params.StartTime = strings.TrimSpace(params.StartTime)
	params.Date = strings.TrimSpace(params.Date)
	if params.BasePrice <= 0 {
		return nil, nil, apperrors.Validation("base price must be positive")
	}

	// 1. 計算時段
	startTime, endTime, err := showtimeWindow(params.Date, params.StartTime, params.DurationMinutes)
	if err != nil {
		return nil, nil, err
	}

	// 2. 目錄資料：電影、戲院、影廳
	if _, err := s.catalog.Movie(ctx, params.MovieID); err != nil {
		return nil, nil, err
	}
	theater, err := s.catalog.Theater(ctx, params.TheaterID)
	if err != nil {
		return nil, nil, err
	}
	hall, err := s.catalog.Hall(ctx, params.TheaterID, params.Hall)
	if err != nil {
		return nil, nil, err
	}

	// 3. 凍結票價
	prices, err := s.policy.PriceTable(params.BasePrice, theater.City, startTime)
	if err != nil {
		return nil, nil, err
	}

	return &model.Showtime{
		MovieID:   params.MovieID,
		TheaterID: params.TheaterID,
		Hall:      params.Hall,
		Date:      params.Date,
		StartTime: startTime,
		EndTime:   endTime,
		Prices:    prices,
		Status:    model.ShowtimeStatusActive,
	}, hall, nil
}

func (s *SchedulerServiceImpl) CreateShowtime(ctx context.Context, params CreateShowtimeParams) (*model.Showtime, error) {
	log := logger.WithComponent("scheduler")

	showtime, hall, err := s.prepareShowtime(ctx, params)
	if err != nil {
		return nil, err
	}
	showtime.ID = uuid.New().String()

	// 4. 原子性檢查重疊並寫入
	created, err := s.repository.CreateIfNoOverlap(ctx, showtime)
	if err != nil {
		return nil, err
	}

	// 5. 預熱座位庫存
	capacity := hall.Capacity()
	if err := s.inventory.WarmUpInventory(ctx, created.ID, capacity); err != nil {
		log.Error("failed to warm up seat inventory", zap.String("showtime_id", created.ID), zap.Error(err))
		// 預熱失敗時取消場次以釋出時段
		if _, cancelErr := s.repository.UpdateStatus(context.Background(), created.ID, model.ShowtimeStatusCancelled); cancelErr != nil {
			log.Error("failed to cancel showtime after warm-up failure",
				zap.String("showtime_id", created.ID), zap.Error(cancelErr))
		}
		return nil, fmt.Errorf("failed to warm up seat inventory: %w", err)
	}
	created.Remaining = capacity

	log.Info("showtime created",
		zap.String("showtime_id", created.ID),
		zap.String("theater_id", created.TheaterID),
		zap.String("hall", created.Hall),
		zap.String("date", created.Date),
		zap.String("start", created.StartTime),
		zap.String("end", created.EndTime),
	)
	return created, nil
}

func (s *SchedulerServiceImpl) GetShowtime(ctx context.Context, id string) (*model.Showtime, error) {
	source, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	showtime := *source.Showtime()
	remaining, err := source.Inventory().Remaining(ctx, id)
	if err != nil {
		return nil, err
	}
	showtime.Remaining = remaining
	return &showtime, nil
}

func (s *SchedulerServiceImpl) ListShowtimes(ctx context.Context, filter model.ShowtimeFilter) ([]*model.Showtime, error) {
	return s.repository.List(ctx, filter)
}

func (s *SchedulerServiceImpl) CancelShowtime(ctx context.Context, id string) (*model.Showtime, error) {
	showtime, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !showtime.IsActive() {
		return showtime, nil
	}
	cancelled, err := s.repository.UpdateStatus(ctx, id, model.ShowtimeStatusCancelled)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("scheduler").Info("showtime cancelled", zap.String("showtime_id", id))
	return cancelled, nil
}

func (s *SchedulerServiceImpl) SeatAvailability(ctx context.Context, showtimeID string, row string, number int) (bool, error) {
	source, err := s.Resolve(ctx, showtimeID)
	if err != nil {
		return false, err
	}
	key := model.SeatKey{Row: model.NormalizeRow(row), Number: number}
	if _, ok := source.Layout().FindSeat(key.Row, key.Number); !ok {
		return false, apperrors.ErrSeatNotFound
	}
	booked, err := source.Inventory().IsBooked(ctx, showtimeID, key)
	if err != nil {
		return false, err
	}
	return !booked, nil
}

func (s *SchedulerServiceImpl) Remaining(ctx context.Context, showtimeID string) (map[model.SeatType]int, error) {
	source, err := s.Resolve(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	return source.Inventory().Remaining(ctx, showtimeID)
}

func (s *SchedulerServiceImpl) SeatMap(ctx context.Context, showtimeID string) (*model.SeatMap, error) {
	source, err := s.Resolve(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	showtime := source.Showtime()
	inventory := source.Inventory()

	booked, err := inventory.BookedSeats(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	remaining, err := inventory.Remaining(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	seatMap := &model.SeatMap{
		ShowtimeID: showtimeID,
		Hall:       showtime.Hall,
		Rows:       make([]model.SeatMapRow, 0, len(source.Layout().Rows)),
		Remaining:  remaining,
	}
	for _, row := range source.Layout().Rows {
		mapRow := model.SeatMapRow{Row: row.Row, Seats: make([]model.SeatMapSeat, 0, len(row.Seats))}
		for _, seat := range row.Seats {
			price, _ := showtime.Prices.For(seat.Type)
			status := model.SeatStatusAvailable
			if _, held := booked[seat.Key()]; held {
				status = model.SeatStatusBooked
			}
			mapRow.Seats = append(mapRow.Seats, model.SeatMapSeat{
				Number: seat.Number,
				Type:   seat.Type,
				Price:  price,
				Status: status,
			})
		}
		seatMap.Rows = append(seatMap.Rows, mapRow)
	}
	return seatMap, nil
}

func (s *SchedulerServiceImpl) Resolve(ctx context.Context, showtimeID string) (ShowtimeSource, error) {
	s.mu.RLock()
	synthetic, ok := s.synthetic[showtimeID]
	s.mu.RUnlock()
	if ok {
		return synthetic, nil
	}

	showtime, err := s.repository.FindByID(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	hall, err := s.catalog.Hall(ctx, showtime.TheaterID, showtime.Hall)
	if err != nil {
		return nil, err
	}
	return &PersistedShowtime{showtime: showtime, hall: hall, inventory: s.inventory}, nil
}

// CreateSandboxShowtime 與 CreateShowtime 相同的驗證與定價，但只註冊為記憶體場次
func (s *SchedulerServiceImpl) CreateSandboxShowtime(ctx context.Context, params CreateShowtimeParams) (ShowtimeSource, error) {
	showtime, hall, err := s.prepareShowtime(ctx, params)
	if err != nil {
		return nil, err
	}
	showtime.ID = sandboxPrefix + uuid.New().String()
	return s.RegisterSynthetic(ctx, showtime, hall)
}

func (s *SchedulerServiceImpl) RegisterSynthetic(ctx context.Context, showtime *model.Showtime, hall *model.Hall) (ShowtimeSource, error) {
	if showtime == nil || hall == nil {
		return nil, apperrors.Validation("showtime and hall are required")
	}
	copied := *showtime
	showtime = &copied
	if showtime.ID == "" {
		showtime.ID = uuid.New().String()
	}
	if showtime.Status == "" {
		showtime.Status = model.ShowtimeStatusActive
	}

	inventory := cache.NewMemorySeatInventory()
	if err := inventory.WarmUpInventory(ctx, showtime.ID, hall.Capacity()); err != nil {
		return nil, err
	}
	source := &SyntheticShowtime{showtime: showtime, hall: hall, inventory: inventory}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.synthetic[showtime.ID]; exists {
		return nil, apperrors.Validation("synthetic showtime %s already registered", showtime.ID)
	}
	s.synthetic[showtime.ID] = source
	return source, nil
}

func (s *SchedulerServiceImpl) RestoreInventory(ctx context.Context) (int, error) {
	log := logger.WithComponent("scheduler")

	showtimes, err := s.repository.List(ctx, model.ShowtimeFilter{})
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, showtime := range showtimes {
		hall, err := s.catalog.Hall(ctx, showtime.TheaterID, showtime.Hall)
		if err != nil {
			log.Warn("skip inventory restore: hall missing from catalog",
				zap.String("showtime_id", showtime.ID), zap.Error(err))
			continue
		}
		// 已預熱（例如 Redis 仍保有資料）時不覆蓋
		if err := s.inventory.WarmUpInventory(ctx, showtime.ID, hall.Capacity()); err != nil {
			return restored, err
		}

		bookings, err := s.bookingRepository.ListHoldingSeats(ctx, showtime.ID)
		if err != nil {
			return restored, err
		}
		for _, booking := range bookings {
			// 同一訂位重複佔位為冪等
			err := s.inventory.ReserveSeats(ctx, showtime.ID, booking.ID, booking.Seats())
			if err != nil && !errors.Is(err, apperrors.ErrSeatUnavailable) && !errors.Is(err, apperrors.ErrCapacity) {
				return restored, err
			}
			if err != nil {
				log.Error("inventory restore conflict",
					zap.String("showtime_id", showtime.ID),
					zap.String("booking_id", booking.ID),
					zap.Error(err))
			}
		}
		restored++
	}

	log.Info("seat inventory restored", zap.Int("showtimes", restored))
	return restored, nil
}
