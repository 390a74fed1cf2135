package handler

import (
	"net/http"
	"strings"

	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/service"

	"github.com/gin-gonic/gin"
)

type ShowtimeHandler struct {
	service service.SchedulerService
}

func NewShowtimeHandler(service service.SchedulerService) *ShowtimeHandler {
	return &ShowtimeHandler{service: service}
}

// RegisterRoutes adminOnly 套用在會改變排程的路由
func (h *ShowtimeHandler) RegisterRoutes(router *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	router.GET("showtimes", h.List)
	router.GET("showtimes/:id", h.Get)
	router.GET("showtimes/:id/seatmap", h.SeatMap)
	router.GET("showtimes/:id/seats/:row/:number", h.SeatAvailability)
	router.POST("showtimes", adminOnly, h.Create)
	router.POST("showtimes/:id/cancel", adminOnly, h.Cancel)
}

// ListShowtimesQuery 場次查詢參數
type ListShowtimesQuery struct {
	TheaterID  string `form:"theater_id"`
	Hall       string `form:"hall"`
	Date       string `form:"date"`
	OnlyActive bool   `form:"active"`
}

type seatURI struct {
	ID     string `uri:"id" binding:"required"`
	Row    string `uri:"row" binding:"required"`
	Number int    `uri:"number" binding:"required,min=1"`
}

func (h *ShowtimeHandler) Create(c *gin.Context) {
	var req model.CreateShowtimeRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	showtime, err := h.service.CreateShowtime(c, service.CreateShowtimeParams{
		MovieID:         strings.TrimSpace(req.MovieID),
		TheaterID:       strings.TrimSpace(req.TheaterID),
		Hall:            strings.TrimSpace(req.Hall),
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		BasePrice:       req.BasePrice,
	})
	if err != nil {
		handleError(c, err, "CreateShowtime")
		return
	}

	handleSuccess(c, showtime, http.StatusCreated)
}

func (h *ShowtimeHandler) List(c *gin.Context) {
	var query ListShowtimesQuery
	if err := BindQuery(c, &query); err != nil {
		return
	}

	showtimes, err := h.service.ListShowtimes(c, model.ShowtimeFilter{
		TheaterID:  query.TheaterID,
		Hall:       query.Hall,
		Date:       query.Date,
		OnlyActive: query.OnlyActive,
	})
	if err != nil {
		handleError(c, err, "ListShowtimes")
		return
	}
	if showtimes == nil {
		showtimes = []*model.Showtime{}
	}

	handleSuccess(c, showtimes, http.StatusOK)
}

func (h *ShowtimeHandler) Get(c *gin.Context) {
	showtime, err := h.service.GetShowtime(c, c.Param("id"))
	if err != nil {
		handleError(c, err, "GetShowtime")
		return
	}

	handleSuccess(c, showtime, http.StatusOK)
}

func (h *ShowtimeHandler) SeatMap(c *gin.Context) {
	seatMap, err := h.service.SeatMap(c, c.Param("id"))
	if err != nil {
		handleError(c, err, "SeatMap")
		return
	}

	handleSuccess(c, seatMap, http.StatusOK)
}

func (h *ShowtimeHandler) SeatAvailability(c *gin.Context) {
	var uri seatURI
	if err := BindUri(c, &uri); err != nil {
		return
	}

	row := model.NormalizeRow(uri.Row)
	available, err := h.service.SeatAvailability(c, uri.ID, row, uri.Number)
	if err != nil {
		handleError(c, err, "SeatAvailability")
		return
	}

	handleSuccess(c, gin.H{
		"showtime_id": uri.ID,
		"row":         row,
		"number":      uri.Number,
		"available":   available,
	}, http.StatusOK)
}

func (h *ShowtimeHandler) Cancel(c *gin.Context) {
	showtime, err := h.service.CancelShowtime(c, c.Param("id"))
	if err != nil {
		handleError(c, err, "CancelShowtime")
		return
	}

	handleSuccess(c, showtime, http.StatusOK)
}
