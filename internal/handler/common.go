package handler

import (
	"errors"
	"net/http"

	apperrors "go-gin-cinema-booking/pkg/app_errors"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "Invalid request format: " + err.Error(),
		})
		return err
	}
	return nil
}

func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "Invalid query: " + err.Error(),
		})
		return err
	}
	return nil
}

func BindUri(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindUri(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "Invalid path: " + err.Error(),
		})
		return err
	}
	return nil
}

// errorKind 錯誤分類對應的 HTTP 狀態碼與錯誤代碼
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrSeatUnavailable):
		return http.StatusConflict, "seat_unavailable"
	case errors.Is(err, apperrors.ErrCapacity):
		return http.StatusConflict, "capacity"
	case errors.Is(err, apperrors.ErrScheduleConflict):
		return http.StatusConflict, "schedule_conflict"
	case errors.Is(err, apperrors.ErrShowtimeNotBookable):
		return http.StatusConflict, "showtime_not_bookable"
	case errors.Is(err, apperrors.ErrPaymentState):
		return http.StatusConflict, "payment_state"
	case errors.Is(err, apperrors.ErrNotCancellable):
		return http.StatusBadRequest, "not_cancellable"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal"
}

func handleError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	status, kind := errorKind(err)

	body := gin.H{"error": kind, "message": err.Error()}
	var seatErr *apperrors.SeatUnavailableError
	if errors.As(err, &seatErr) {
		body["seats"] = seatErr.Seats
	}

	if status >= http.StatusInternalServerError {
		log.Error("Unexpected error")
		body["message"] = "Internal server error"
	} else {
		log.Warn("Request failed", zap.String("kind", kind))
	}
	c.JSON(status, body)
}

func handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}
