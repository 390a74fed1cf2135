package service

import (
	"go-gin-cinema-booking/internal/cache"
	"go-gin-cinema-booking/internal/model"
)

// ShowtimeSource 訂位流程取得場次資料、座位配置與庫存的統一介面
type ShowtimeSource interface {
	Showtime() *model.Showtime
	Layout() *model.Hall
	Inventory() cache.SeatInventory
	// 沙盒／示範場次，不寫入資料庫
	Synthetic() bool
}

// PersistedShowtime 資料庫中的場次，共用全域座位庫存
type PersistedShowtime struct {
	showtime  *model.Showtime
	hall      *model.Hall
	inventory cache.SeatInventory
}

func (p *PersistedShowtime) Showtime() *model.Showtime      { return p.showtime }
func (p *PersistedShowtime) Layout() *model.Hall            { return p.hall }
func (p *PersistedShowtime) Inventory() cache.SeatInventory { return p.inventory }
func (p *PersistedShowtime) Synthetic() bool                { return false }

// SyntheticShowtime 只存在於記憶體的場次，擁有獨立的座位庫存
type SyntheticShowtime struct {
	showtime  *model.Showtime
	hall      *model.Hall
	inventory cache.SeatInventory
}

func (s *SyntheticShowtime) Showtime() *model.Showtime      { return s.showtime }
func (s *SyntheticShowtime) Layout() *model.Hall            { return s.hall }
func (s *SyntheticShowtime) Inventory() cache.SeatInventory { return s.inventory }
func (s *SyntheticShowtime) Synthetic() bool                { return true }
