package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/payment"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("seattype", func(fl validator.FieldLevel) bool {
		return model.SeatType(fl.Field().String()).IsValid()
	})
	_ = validate.RegisterValidation("paymethod", func(fl validator.FieldLevel) bool {
		return model.PaymentMethod(fl.Field().String()).IsValid()
	})
}

// validationError 將 validator 的錯誤轉為 ErrValidation
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Validation("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return apperrors.Validation("%s", strings.Join(msgs, "; "))
}

type ReservationCoordinator interface {
	// 建立訂位並向金流建立付款意圖
	ReserveSeats(ctx context.Context, req model.CreateReservationRequest) (*model.Reservation, error)
	CancelBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.CancelResult, error)
	// 金流回呼：成功確認訂位，失敗記錄付款失敗
	HandlePaymentResult(ctx context.Context, bookingID string, paymentReference string, succeeded bool) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error)
	GetBookingByNumber(ctx context.Context, bookingNumber string, actor model.Actor) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID string, actor model.Actor) ([]*model.Booking, error)
}

type ReservationCoordinatorImpl struct {
	ledger    BookingLedger
	gateway   payment.Gateway
	publisher NotificationPublisher
	now       func() time.Time
}

func NewReservationCoordinator(
	ledger BookingLedger,
	gateway payment.Gateway,
	publisher NotificationPublisher,
) ReservationCoordinator {
	return &ReservationCoordinatorImpl{
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		now:       time.Now,
	}
}

// normalizeRequest 去空白、排號大寫、類型與付款方式小寫
func normalizeRequest(req *model.CreateReservationRequest) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.ShowtimeID = strings.TrimSpace(req.ShowtimeID)
	req.PaymentMethod = model.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	seats := make([]model.SeatSelection, len(req.Seats))
	for i, s := range req.Seats {
		seats[i] = model.SeatSelection{
			Row:    model.NormalizeRow(s.Row),
			Number: s.Number,
			Type:   model.SeatType(strings.ToLower(strings.TrimSpace(string(s.Type)))),
		}
	}
	req.Seats = seats
}

func (c *ReservationCoordinatorImpl) publish(ctx context.Context, kind model.NotificationKind, booking *model.Booking) {
	if c.publisher == nil {
		return
	}
	notification := model.NewNotification(uuid.New().String(), kind, booking, c.now().UTC())
	if err := c.publisher.PublishNotification(ctx, notification); err != nil {
		// 通知失敗不影響訂位狀態
		logger.WithComponent("coordinator").Warn("failed to publish notification",
			zap.String("booking_id", booking.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (c *ReservationCoordinatorImpl) ReserveSeats(ctx context.Context, req model.CreateReservationRequest) (*model.Reservation, error) {
	log := logger.WithComponent("coordinator")

	// 1. 正規化與格式驗證
	normalizeRequest(&req)
	if err := validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}

	seats := make([]model.Seat, 0, len(req.Seats))
	for _, s := range req.Seats {
		seats = append(seats, model.Seat{Row: s.Row, Number: s.Number, Type: s.Type})
	}

	// 2. 原子性佔位並建立 pending 訂位
	booking, err := c.ledger.Create(ctx, CreateBookingParams{
		UserID:        req.UserID,
		ShowtimeID:    req.ShowtimeID,
		Seats:         seats,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	reservation := &model.Reservation{Booking: booking}

	// 3. 建立付款意圖，失敗時訂位維持 pending 等待過期
	intent, err := c.gateway.CreatePaymentIntent(ctx, booking.ID, booking.TotalAmount)
	if err != nil {
		log.Warn("failed to create payment intent, booking stays pending",
			zap.String("booking_id", booking.ID), zap.Error(err))
	} else {
		reservation.ClientSecret = intent.ClientSecret
		updated, err := c.ledger.AttachPaymentIntent(ctx, booking.ID, intent.ID)
		if err != nil {
			log.Warn("failed to attach payment intent",
				zap.String("booking_id", booking.ID), zap.Error(err))
		} else {
			reservation.Booking = updated
		}
	}

	// 4. 通知
	c.publish(ctx, model.NotificationBookingCreated, reservation.Booking)

	return reservation, nil
}

func (c *ReservationCoordinatorImpl) CancelBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.CancelResult, error) {
	booking, err := c.ledger.Cancel(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	c.publish(ctx, model.NotificationBookingCancelled, booking)

	return &model.CancelResult{
		RefundAmount: booking.Cancellation.RefundAmount,
		Booking:      booking,
	}, nil
}

func (c *ReservationCoordinatorImpl) HandlePaymentResult(ctx context.Context, bookingID string, paymentReference string, succeeded bool) (*model.Booking, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}

	if !succeeded {
		return c.ledger.RecordPaymentFailure(ctx, bookingID, paymentReference)
	}

	before, err := c.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	booking, err := c.ledger.ConfirmPayment(ctx, bookingID, paymentReference)
	if err != nil {
		return nil, err
	}

	// 重送的回呼不重複通知
	if before.Status != model.BookingStatusConfirmed {
		c.publish(ctx, model.NotificationBookingConfirmed, booking)
	}
	return booking, nil
}

func (c *ReservationCoordinatorImpl) GetBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error) {
	booking, err := c.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != booking.UserID {
		return nil, fmt.Errorf("user %s cannot view booking %s: %w", actor.UserID, bookingID, apperrors.ErrForbidden)
	}
	return booking, nil
}

func (c *ReservationCoordinatorImpl) GetBookingByNumber(ctx context.Context, bookingNumber string, actor model.Actor) (*model.Booking, error) {
	booking, err := c.ledger.GetByNumber(ctx, strings.TrimSpace(bookingNumber))
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != booking.UserID {
		return nil, fmt.Errorf("user %s cannot view booking %s: %w", actor.UserID, bookingNumber, apperrors.ErrForbidden)
	}
	return booking, nil
}

func (c *ReservationCoordinatorImpl) ListUserBookings(ctx context.Context, userID string, actor model.Actor) ([]*model.Booking, error) {
	if !actor.IsAdmin() && actor.UserID != userID {
		return nil, fmt.Errorf("user %s cannot list bookings of %s: %w", actor.UserID, userID, apperrors.ErrForbidden)
	}
	return c.ledger.ListByUser(ctx, userID)
}
