// Package pricing 提供票價與退款計算，皆為無狀態純函式
package pricing

import (
	"strings"
	"time"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"github.com/shopspring/decimal"
)

// TimeBucket 一天中的時段，[FromMinute, ToMinute) 以分鐘計；跨午夜時 From > To
type TimeBucket struct {
	Name       string
	FromMinute int
	ToMinute   int
	Multiplier decimal.Decimal
}

func (b TimeBucket) contains(minute int) bool {
	if b.FromMinute <= b.ToMinute {
		return minute >= b.FromMinute && minute < b.ToMinute
	}
	return minute >= b.FromMinute || minute < b.ToMinute
}

// Policy 定價表：城市等級、時段、座位類型倍率
type Policy struct {
	CityMultipliers map[string]decimal.Decimal
	DefaultCity     decimal.Decimal
	TimeBuckets     []TimeBucket
	SeatMultipliers map[model.SeatType]decimal.Decimal
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultPolicy 預設定價表
func DefaultPolicy() *Policy {
	return &Policy{
		CityMultipliers: map[string]decimal.Decimal{
			// metro
			"mumbai":    d("1.3"),
			"delhi":     d("1.3"),
			"bengaluru": d("1.25"),
			"bangalore": d("1.25"),
			"chennai":   d("1.2"),
			"hyderabad": d("1.2"),
			"kolkata":   d("1.2"),
			"pune":      d("1.2"),
			// smaller cities
			"jaipur":  d("0.9"),
			"lucknow": d("0.9"),
			"indore":  d("0.9"),
			"nagpur":  d("0.9"),
			"bhopal":  d("0.85"),
			"patna":   d("0.85"),
		},
		DefaultCity: d("1.0"),
		TimeBuckets: []TimeBucket{
			{Name: "morning", FromMinute: 6 * 60, ToMinute: 12 * 60, Multiplier: d("0.8")},
			{Name: "afternoon", FromMinute: 12 * 60, ToMinute: 17 * 60, Multiplier: d("1.0")},
			{Name: "evening", FromMinute: 17 * 60, ToMinute: 21 * 60, Multiplier: d("1.3")},
			{Name: "night", FromMinute: 21 * 60, ToMinute: 6 * 60, Multiplier: d("1.1")},
		},
		SeatMultipliers: map[model.SeatType]decimal.Decimal{
			model.SeatTypeRegular:    d("1.0"),
			model.SeatTypePremium:    d("1.5"),
			model.SeatTypeVIP:        d("2.2"),
			model.SeatTypeWheelchair: d("1.0"),
		},
	}
}

// CityMultiplier 城市倍率，不分大小寫，未知城市使用預設值
func (p *Policy) CityMultiplier(city string) decimal.Decimal {
	if m, ok := p.CityMultipliers[strings.ToLower(strings.TrimSpace(city))]; ok {
		return m
	}
	return p.DefaultCity
}

// TimeMultiplier 依 HH:MM 取得時段倍率
func (p *Policy) TimeMultiplier(timeOfDay string) (decimal.Decimal, string, error) {
	t, err := time.Parse(model.TimeLayout, timeOfDay)
	if err != nil {
		return decimal.Zero, "", apperrors.Validation("invalid time of day %q", timeOfDay)
	}
	minute := t.Hour()*60 + t.Minute()
	for _, b := range p.TimeBuckets {
		if b.contains(minute) {
			return b.Multiplier, b.Name, nil
		}
	}
	return decimal.NewFromInt(1), "", nil
}

// Price 計算單一座位票價：
//  1. 城市倍率
//  2. 時段倍率
//  3. 座位類型倍率
//  4. 四捨五入到整數
func (p *Policy) Price(basePrice int64, seatType model.SeatType, city string, timeOfDay string) (int64, error) {
	if basePrice < 0 {
		return 0, apperrors.Validation("base price must not be negative")
	}
	seatMultiplier, ok := p.SeatMultipliers[seatType]
	if !ok {
		return 0, apperrors.Validation("unknown seat type %q", seatType)
	}
	timeMultiplier, _, err := p.TimeMultiplier(timeOfDay)
	if err != nil {
		return 0, err
	}

	price := decimal.NewFromInt(basePrice).
		Mul(p.CityMultiplier(city)).
		Mul(timeMultiplier).
		Mul(seatMultiplier)

	return price.Round(0).IntPart(), nil
}

// PriceTable 場次建立時計算並凍結的票價表
func (p *Policy) PriceTable(basePrice int64, city string, timeOfDay string) (model.PriceTable, error) {
	var table model.PriceTable
	var err error
	if table.Regular, err = p.Price(basePrice, model.SeatTypeRegular, city, timeOfDay); err != nil {
		return model.PriceTable{}, err
	}
	if table.Premium, err = p.Price(basePrice, model.SeatTypePremium, city, timeOfDay); err != nil {
		return model.PriceTable{}, err
	}
	if table.VIP, err = p.Price(basePrice, model.SeatTypeVIP, city, timeOfDay); err != nil {
		return model.PriceTable{}, err
	}
	return table, nil
}
