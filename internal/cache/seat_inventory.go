package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
)

// SeatInventory 場次座位佔用集合與各類型剩餘數量。
// 佔用集合是哪個座位被誰訂走的唯一依據；剩餘數量是衍生快取，與佔用集合在同一個原子操作內更新。
type SeatInventory interface {
	// 預熱：場次建立時寫入各類型容量，已存在時不覆蓋
	WarmUpInventory(ctx context.Context, showtimeID string, capacity map[model.SeatType]int) error
	// 佔位：整批座位全部可用才寫入，否則一個都不佔
	ReserveSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) error
	// 釋放：只釋放仍屬於該訂位的座位，回傳實際釋放數量
	ReleaseSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) (int, error)
	// 查詢單一座位是否已被佔用
	IsBooked(ctx context.Context, showtimeID string, key model.SeatKey) (bool, error)
	// 場次所有被佔用的座位及其訂位 ID
	BookedSeats(ctx context.Context, showtimeID string) (map[model.SeatKey]string, error)
	// 各類型剩餘數量
	Remaining(ctx context.Context, showtimeID string) (map[model.SeatType]int, error)
}

func unavailableError(keys []model.SeatKey) error {
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		labels = append(labels, k.String())
	}
	sort.Strings(labels)
	return &apperrors.SeatUnavailableError{Seats: labels}
}

// parseSeatField 解析 "A:12" 格式
func parseSeatField(field string) (model.SeatKey, error) {
	idx := strings.LastIndex(field, ":")
	if idx <= 0 {
		return model.SeatKey{}, fmt.Errorf("invalid seat field %q", field)
	}
	number, err := strconv.Atoi(field[idx+1:])
	if err != nil {
		return model.SeatKey{}, fmt.Errorf("invalid seat field %q: %w", field, err)
	}
	return model.SeatKey{Row: field[:idx], Number: number}, nil
}
