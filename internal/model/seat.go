package model

import (
	"fmt"
	"strings"
)

// SeatType 座位類型，決定價格等級與容量池
type SeatType string

const (
	SeatTypeRegular    SeatType = "regular"
	SeatTypePremium    SeatType = "premium"
	SeatTypeVIP        SeatType = "vip"
	SeatTypeWheelchair SeatType = "wheelchair"
)

// CountedSeatTypes 有剩餘數量計數的座位類型（輪椅座位不計數）
var CountedSeatTypes = []SeatType{SeatTypeRegular, SeatTypePremium, SeatTypeVIP}

// IsValid 驗證座位類型是否有效
func (t SeatType) IsValid() bool {
	switch t {
	case SeatTypeRegular, SeatTypePremium, SeatTypeVIP, SeatTypeWheelchair:
		return true
	}
	return false
}

// IsCounted 輪椅座位只檢查佔用，不扣容量
func (t SeatType) IsCounted() bool {
	return t.IsValid() && t != SeatTypeWheelchair
}

// SeatKey 在同一場次中唯一識別一個座位
type SeatKey struct {
	Row    string `json:"row"`
	Number int    `json:"number"`
}

func (k SeatKey) String() string {
	return fmt.Sprintf("%s%d", k.Row, k.Number)
}

// Field Redis hash 欄位格式 "A:12"
func (k SeatKey) Field() string {
	return fmt.Sprintf("%s:%d", k.Row, k.Number)
}

// NormalizeRow 排號統一為大寫
func NormalizeRow(row string) string {
	return strings.ToUpper(strings.TrimSpace(row))
}

// Seat 廳內固定座位
type Seat struct {
	Row    string   `json:"row" yaml:"row"`
	Number int      `json:"number" yaml:"number"`
	Type   SeatType `json:"type" yaml:"type"`
}

func (s Seat) Key() SeatKey {
	return SeatKey{Row: s.Row, Number: s.Number}
}

// SeatRow 一排座位
type SeatRow struct {
	Row   string `json:"row" yaml:"row"`
	Seats []Seat `json:"seats" yaml:"seats"`
}

// Hall 影廳的固定座位配置
type Hall struct {
	TheaterID string    `json:"theater_id" yaml:"theater_id"`
	Name      string    `json:"name" yaml:"name"`
	Rows      []SeatRow `json:"rows" yaml:"rows"`
}

// FindSeat 依排號與座號找座位
func (h *Hall) FindSeat(row string, number int) (Seat, bool) {
	for _, r := range h.Rows {
		if r.Row != row {
			continue
		}
		for _, s := range r.Seats {
			if s.Number == number {
				return s, true
			}
		}
	}
	return Seat{}, false
}

// Capacity 各類型（計數類）座位總數
func (h *Hall) Capacity() map[SeatType]int {
	capacity := make(map[SeatType]int, len(CountedSeatTypes))
	for _, t := range CountedSeatTypes {
		capacity[t] = 0
	}
	for _, r := range h.Rows {
		for _, s := range r.Seats {
			if s.Type.IsCounted() {
				capacity[s.Type]++
			}
		}
	}
	return capacity
}

// SeatStatus 座位圖上的狀態
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusBooked    SeatStatus = "booked"
)

// SeatMapSeat 座位圖上的單一座位
type SeatMapSeat struct {
	Number int        `json:"number"`
	Type   SeatType   `json:"type"`
	Price  int64      `json:"price"`
	Status SeatStatus `json:"status"`
}

// SeatMapRow 座位圖上的一排
type SeatMapRow struct {
	Row   string        `json:"row"`
	Seats []SeatMapSeat `json:"seats"`
}

// SeatMap 某場次的座位圖
type SeatMap struct {
	ShowtimeID string           `json:"showtime_id"`
	Hall       string           `json:"hall"`
	Rows       []SeatMapRow     `json:"rows"`
	Remaining  map[SeatType]int `json:"remaining"`
}
