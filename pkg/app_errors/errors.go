package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// 錯誤分類：handler 依此對應 HTTP 狀態碼
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrSeatUnavailable     = errors.New("seat unavailable")
	ErrCapacity            = errors.New("seat type sold out")
	ErrScheduleConflict    = errors.New("schedule conflict")
	ErrShowtimeNotBookable = errors.New("showtime not bookable")
	ErrNotCancellable      = errors.New("booking not cancellable")
	ErrPaymentState        = errors.New("invalid payment state")
	ErrForbidden           = errors.New("forbidden")
	ErrInternalServerError = errors.New("internal server error")
)

var (
	ErrShowtimeNotFound = fmt.Errorf("showtime %w", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("booking %w", ErrNotFound)
	ErrTheaterNotFound  = fmt.Errorf("theater %w", ErrNotFound)
	ErrMovieNotFound    = fmt.Errorf("movie %w", ErrNotFound)
	ErrHallNotFound     = fmt.Errorf("hall %w", ErrNotFound)
	ErrSeatNotFound     = fmt.Errorf("seat %w", ErrNotFound)

	ErrInvalidBookingStatus = fmt.Errorf("invalid booking status: %w", ErrNotCancellable)
	ErrTooCloseToShowtime   = fmt.Errorf("too close to showtime: %w", ErrNotCancellable)
)

// Validation 包裝成 ErrValidation，保留具體原因
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// SeatUnavailableError 指出哪些座位已被佔用，讓前端重繪座位圖
type SeatUnavailableError struct {
	Seats []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat unavailable: %s", strings.Join(e.Seats, ", "))
}

func (e *SeatUnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable
}

// CapacityError 指出售完的座位類型
type CapacityError struct {
	SeatType string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("seat type sold out: %s", e.SeatType)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}
