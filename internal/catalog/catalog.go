// Package catalog 提供唯讀的電影、戲院與影廳資料
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"gopkg.in/yaml.v3"
)

type Catalog interface {
	Theater(ctx context.Context, theaterID string) (*model.Theater, error)
	Movie(ctx context.Context, movieID string) (*model.Movie, error)
	Hall(ctx context.Context, theaterID string, hall string) (*model.Hall, error)
}

// catalogFile YAML 檔案結構
type catalogFile struct {
	Theaters []model.Theater `yaml:"theaters"`
	Movies   []model.Movie   `yaml:"movies"`
}

type StaticCatalog struct {
	mu       sync.RWMutex
	theaters map[string]*model.Theater
	movies   map[string]*model.Movie
}

func NewStaticCatalog(theaters []model.Theater, movies []model.Movie) *StaticCatalog {
	c := &StaticCatalog{
		theaters: make(map[string]*model.Theater, len(theaters)),
		movies:   make(map[string]*model.Movie, len(movies)),
	}
	for i := range theaters {
		c.AddTheater(theaters[i])
	}
	for i := range movies {
		c.AddMovie(movies[i])
	}
	return c
}

// LoadFile 從 YAML 載入目錄資料
func LoadFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*StaticCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewStaticCatalog(file.Theaters, file.Movies), nil
}

func (c *StaticCatalog) AddTheater(t model.Theater) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range t.Halls {
		t.Halls[i].TheaterID = t.ID
		for r := range t.Halls[i].Rows {
			row := &t.Halls[i].Rows[r]
			row.Row = model.NormalizeRow(row.Row)
			// YAML 中可省略每個座位的排號
			for s := range row.Seats {
				row.Seats[s].Row = row.Row
				if row.Seats[s].Type == "" {
					row.Seats[s].Type = model.SeatTypeRegular
				}
			}
		}
	}
	c.theaters[t.ID] = &t
}

func (c *StaticCatalog) AddMovie(m model.Movie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.movies[m.ID] = &m
}

func (c *StaticCatalog) Theater(ctx context.Context, theaterID string) (*model.Theater, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.theaters[theaterID]
	if !ok {
		return nil, apperrors.ErrTheaterNotFound
	}
	return t, nil
}

func (c *StaticCatalog) Movie(ctx context.Context, movieID string) (*model.Movie, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.movies[movieID]
	if !ok {
		return nil, apperrors.ErrMovieNotFound
	}
	return m, nil
}

func (c *StaticCatalog) Hall(ctx context.Context, theaterID string, hall string) (*model.Hall, error) {
	theater, err := c.Theater(ctx, theaterID)
	if err != nil {
		return nil, err
	}
	for i := range theater.Halls {
		if theater.Halls[i].Name == hall {
			return &theater.Halls[i], nil
		}
	}
	return nil, apperrors.ErrHallNotFound
}

// GridHall 產生規則排列的影廳：前排一般、中段 premium、後排 vip，每排第一個座位為輪椅座位（僅第一排）
func GridHall(name string, rows int, seatsPerRow int, premiumFrom int, vipFrom int) model.Hall {
	hall := model.Hall{Name: name}
	for r := 0; r < rows; r++ {
		label := string(rune('A' + r))
		row := model.SeatRow{Row: label}
		for n := 1; n <= seatsPerRow; n++ {
			seatType := model.SeatTypeRegular
			switch {
			case r >= vipFrom:
				seatType = model.SeatTypeVIP
			case r >= premiumFrom:
				seatType = model.SeatTypePremium
			case r == 0 && n == 1:
				seatType = model.SeatTypeWheelchair
			}
			row.Seats = append(row.Seats, model.Seat{Row: label, Number: n, Type: seatType})
		}
		hall.Rows = append(hall.Rows, row)
	}
	return hall
}

// DemoCatalog 未設定 CATALOG_FILE 時使用的示範資料
func DemoCatalog() *StaticCatalog {
	return NewStaticCatalog(
		[]model.Theater{
			{
				ID:   "pvr-juhu",
				Name: "PVR Juhu",
				City: "Mumbai",
				Halls: []model.Hall{
					GridHall("Hall 1", 8, 12, 4, 7),
					GridHall("Hall 2", 6, 10, 3, 5),
				},
			},
			{
				ID:    "inox-patna",
				Name:  "INOX Patna",
				City:  "Patna",
				Halls: []model.Hall{GridHall("Audi 1", 6, 10, 3, 5)},
			},
		},
		[]model.Movie{
			{ID: "mv-001", Title: "The Long Night", DurationMinutes: 120, BasePrice: 200},
			{ID: "mv-002", Title: "Monsoon Letters", DurationMinutes: 150, BasePrice: 180},
		},
	)
}
