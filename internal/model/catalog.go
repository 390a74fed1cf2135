package model

// Theater 戲院（唯讀目錄資料）
type Theater struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	City  string `json:"city" yaml:"city"`
	Halls []Hall `json:"halls" yaml:"halls"`
}

// Movie 電影（唯讀目錄資料）
type Movie struct {
	ID              string `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	BasePrice       int64  `json:"base_price" yaml:"base_price"`
}
