package handler

import (
	"net/http"

	"go-gin-cinema-booking/internal/middleware"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/service"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service service.ReservationCoordinator
}

func NewBookingHandler(service service.ReservationCoordinator) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("reservations", h.Reserve)
	router.GET("bookings", h.GetByNumber)
	router.GET("bookings/:id", h.Get)
	router.POST("bookings/:id/cancel", h.Cancel)
	router.GET("users/:id/bookings", h.ListByUser)
}

// RegisterWebhookRoutes 金流回呼不經過使用者身分驗證
func (h *BookingHandler) RegisterWebhookRoutes(router *gin.RouterGroup, webhookAuth gin.HandlerFunc) {
	router.POST("bookings/:id/confirm-payment", webhookAuth, h.ConfirmPayment)
}

func (h *BookingHandler) Reserve(c *gin.Context) {
	var req model.CreateReservationRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	// 已識別的顧客只能替自己訂位
	actor := middleware.ActorFrom(c)
	if actor.UserID != "" && !actor.IsAdmin() {
		req.UserID = actor.UserID
	}

	reservation, err := h.service.ReserveSeats(c, req)
	if err != nil {
		handleError(c, err, "Reserve")
		return
	}

	handleSuccess(c, reservation, http.StatusCreated)
}

func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.GetBooking(c, c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		handleError(c, err, "GetBooking")
		return
	}

	handleSuccess(c, booking, http.StatusOK)
}

// GetByNumber 以訂位代號查詢 ?number=BK-xxx
func (h *BookingHandler) GetByNumber(c *gin.Context) {
	number := c.Query("number")
	if number == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "number is required",
		})
		return
	}

	booking, err := h.service.GetBookingByNumber(c, number, middleware.ActorFrom(c))
	if err != nil {
		handleError(c, err, "GetBookingByNumber")
		return
	}

	handleSuccess(c, booking, http.StatusOK)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	result, err := h.service.CancelBooking(c, c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		handleError(c, err, "CancelBooking")
		return
	}

	handleSuccess(c, result, http.StatusOK)
}

func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	var req model.PaymentResultRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	booking, err := h.service.HandlePaymentResult(c, c.Param("id"), req.PaymentReference, *req.Succeeded)
	if err != nil {
		handleError(c, err, "ConfirmPayment")
		return
	}

	handleSuccess(c, booking, http.StatusOK)
}

func (h *BookingHandler) ListByUser(c *gin.Context) {
	bookings, err := h.service.ListUserBookings(c, c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		handleError(c, err, "ListUserBookings")
		return
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}

	handleSuccess(c, bookings, http.StatusOK)
}
