package model

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ShowtimeStatus 場次狀態
type ShowtimeStatus string

const (
	ShowtimeStatusActive    ShowtimeStatus = "active"
	ShowtimeStatusCancelled ShowtimeStatus = "cancelled"
)

// PriceTable 場次建立時凍結的各類型票價
type PriceTable struct {
	Regular int64 `json:"regular" db:"price_regular"`
	Premium int64 `json:"premium" db:"price_premium"`
	VIP     int64 `json:"vip" db:"price_vip"`
}

// For 取得座位類型的票價，輪椅座位以一般票價計
func (p PriceTable) For(t SeatType) (int64, bool) {
	switch t {
	case SeatTypeRegular, SeatTypeWheelchair:
		return p.Regular, true
	case SeatTypePremium:
		return p.Premium, true
	case SeatTypeVIP:
		return p.VIP, true
	}
	return 0, false
}

// Showtime 某廳某日某時段的一場放映
type Showtime struct {
	ID        string           `json:"id" db:"id"`
	MovieID   string           `json:"movie_id" db:"movie_id"`
	TheaterID string           `json:"theater_id" db:"theater_id"`
	Hall      string           `json:"hall" db:"hall"`
	Date      string           `json:"date" db:"show_date"`
	StartTime string           `json:"start_time" db:"start_time"`
	EndTime   string           `json:"end_time" db:"end_time"`
	Prices    PriceTable       `json:"prices"`
	Remaining map[SeatType]int `json:"remaining,omitempty" db:"-"`
	Status    ShowtimeStatus   `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// IsActive 場次是否仍可販售
func (s *Showtime) IsActive() bool {
	return s.Status == ShowtimeStatusActive
}

// StartsAt 開演時間（依戲院時區）
func (s *Showtime) StartsAt(loc *time.Location) (time.Time, error) {
	return ParseWallClock(s.Date, s.StartTime, loc)
}

// Overlaps 半開區間 [start,end) 重疊判斷
func (s *Showtime) Overlaps(start, end string) bool {
	return s.StartTime < end && start < s.EndTime
}

// ParseWallClock 將日期與 HH:MM 組成時間
func ParseWallClock(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %s: %w", date, clock, err)
	}
	return t, nil
}

// ShowtimeFilter 場次查詢條件
type ShowtimeFilter struct {
	TheaterID  string
	Hall       string
	Date       string
	OnlyActive bool
}

// CreateShowtimeRequest 建立場次請求
type CreateShowtimeRequest struct {
	MovieID         string `json:"movie_id" binding:"required"`
	TheaterID       string `json:"theater_id" binding:"required"`
	Hall            string `json:"hall" binding:"required"`
	Date            string `json:"date" binding:"required"`
	StartTime       string `json:"start_time" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
	BasePrice       int64  `json:"base_price" binding:"required,min=1"`
}
