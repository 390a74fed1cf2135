package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/pricing"
	"go-gin-cinema-booking/internal/repository"
	apperrors "go-gin-cinema-booking/pkg/app_errors"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
	"go.uber.org/zap"
)

const (
	MaxSeatsPerBooking = 10

	// 狀態最多再變動兩次就進入終態，三次重試必定有結果
	maxTransitionAttempts = 3
	maxReleaseAttempts    = 3
)

// CreateBookingParams 建立訂位參數，座位已正規化
type CreateBookingParams struct {
	UserID        string
	ShowtimeID    string
	Seats         []model.Seat
	PaymentMethod model.PaymentMethod
}

// NotificationPublisher 通知隊列的發布端
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification *model.Notification) error
}

type BookingLedger interface {
	// 原子性佔位並建立 pending 訂位
	Create(ctx context.Context, params CreateBookingParams) (*model.Booking, error)
	AttachPaymentIntent(ctx context.Context, bookingID string, intentID string) (*model.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID string, paymentReference string) (*model.Booking, error)
	RecordPaymentFailure(ctx context.Context, bookingID string, paymentReference string) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error)
	// pending 超過 timeout 的訂位轉為 expired 並釋放座位
	ExpireStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error)
	// 已開演的 confirmed 訂位轉為 completed
	CompleteFinished(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, bookingID string) (*model.Booking, error)
	GetByNumber(ctx context.Context, bookingNumber string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Booking, error)
}

type BookingLedgerImpl struct {
	repository   repository.BookingRepository
	scheduler    SchedulerService
	refundPolicy *pricing.RefundPolicy
	metrics      *metrics.Metrics
	publisher    NotificationPublisher
	cancelCutoff time.Duration
	now          func() time.Time
}

type LedgerOption func(*BookingLedgerImpl)

func WithClock(now func() time.Time) LedgerOption {
	return func(l *BookingLedgerImpl) { l.now = now }
}

func WithCancelCutoff(cutoff time.Duration) LedgerOption {
	return func(l *BookingLedgerImpl) { l.cancelCutoff = cutoff }
}

func WithRefundPolicy(policy *pricing.RefundPolicy) LedgerOption {
	return func(l *BookingLedgerImpl) { l.refundPolicy = policy }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *BookingLedgerImpl) { l.metrics = m }
}

// WithPublisher 系統觸發的狀態變更（過期、完成）由 ledger 自行發通知
func WithPublisher(publisher NotificationPublisher) LedgerOption {
	return func(l *BookingLedgerImpl) { l.publisher = publisher }
}

func NewBookingLedger(
	bookingRepository repository.BookingRepository,
	scheduler SchedulerService,
	opts ...LedgerOption,
) BookingLedger {
	l := &BookingLedgerImpl{
		repository:   bookingRepository,
		scheduler:    scheduler,
		refundPolicy: pricing.DefaultRefundPolicy(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	return l
}

// validateParams 檢查張數、付款方式、座位類型與重複座位
func validateParams(params *CreateBookingParams) error {
	if params.UserID == "" {
		return apperrors.Validation("user id is required")
	}
	if params.ShowtimeID == "" {
		return apperrors.Validation("showtime id is required")
	}
	if len(params.Seats) == 0 {
		return apperrors.Validation("at least one seat is required")
	}
	if len(params.Seats) > MaxSeatsPerBooking {
		return apperrors.Validation("at most %d seats per booking", MaxSeatsPerBooking)
	}
	if !params.PaymentMethod.IsValid() {
		return apperrors.Validation("unsupported payment method %q", params.PaymentMethod)
	}

	seen := make(map[model.SeatKey]struct{}, len(params.Seats))
	for i := range params.Seats {
		seat := &params.Seats[i]
		seat.Row = model.NormalizeRow(seat.Row)
		if seat.Row == "" || seat.Number < 1 {
			return apperrors.Validation("invalid seat %s%d", seat.Row, seat.Number)
		}
		if !seat.Type.IsValid() {
			return apperrors.Validation("unknown seat type %q", seat.Type)
		}
		if _, dup := seen[seat.Key()]; dup {
			return apperrors.Validation("seat %s selected more than once", seat.Key())
		}
		seen[seat.Key()] = struct{}{}
	}
	return nil
}

func (l *BookingLedgerImpl) Create(ctx context.Context, params CreateBookingParams) (*model.Booking, error) {
	log := logger.WithComponent("ledger")

	// 1. 驗證請求
	params.Seats = append([]model.Seat(nil), params.Seats...)
	if err := validateParams(&params); err != nil {
		l.metrics.Reservations.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// 2. 場次必須可販售
	source, err := l.scheduler.Resolve(ctx, params.ShowtimeID)
	if err != nil {
		return nil, err
	}
	showtime := source.Showtime()
	now := l.now()
	startsAt, err := showtime.StartsAt(l.scheduler.Location())
	if err != nil {
		return nil, err
	}
	if !showtime.IsActive() {
		l.metrics.Reservations.WithLabelValues("not_bookable").Inc()
		return nil, fmt.Errorf("showtime %s is %s: %w", showtime.ID, showtime.Status, apperrors.ErrShowtimeNotBookable)
	}
	if !startsAt.After(now) {
		l.metrics.Reservations.WithLabelValues("not_bookable").Inc()
		return nil, fmt.Errorf("showtime %s has already started: %w", showtime.ID, apperrors.ErrShowtimeNotBookable)
	}

	// 3. 對照座位配置並取凍結票價
	layout := source.Layout()
	tickets := make([]model.Ticket, 0, len(params.Seats))
	var total int64
	for _, requested := range params.Seats {
		seat, ok := layout.FindSeat(requested.Row, requested.Number)
		if !ok {
			l.metrics.Reservations.WithLabelValues("invalid").Inc()
			return nil, apperrors.Validation("seat %s does not exist in %s", requested.Key(), showtime.Hall)
		}
		if seat.Type != requested.Type {
			l.metrics.Reservations.WithLabelValues("invalid").Inc()
			return nil, apperrors.Validation("seat %s is %s, not %s", requested.Key(), seat.Type, requested.Type)
		}
		price, ok := showtime.Prices.For(seat.Type)
		if !ok {
			return nil, apperrors.Validation("no price for seat type %q", seat.Type)
		}
		tickets = append(tickets, model.Ticket{
			ID:     uuid.New().String(),
			Row:    seat.Row,
			Number: seat.Number,
			Type:   seat.Type,
			Price:  price,
		})
		total += price
	}

	booking := &model.Booking{
		ID:            uuid.New().String(),
		BookingNumber: "BK-" + shortuuid.New(),
		UserID:        params.UserID,
		ShowtimeID:    showtime.ID,
		MovieID:       showtime.MovieID,
		TheaterID:     showtime.TheaterID,
		Hall:          showtime.Hall,
		ShowDate:      showtime.Date,
		ShowTime:      showtime.StartTime,
		ShowStartsAt:  startsAt,
		Tickets:       tickets,
		TotalAmount:   total,
		Payment: model.Payment{
			Method: params.PaymentMethod,
			Status: model.PaymentStatusPending,
		},
		Status:       model.BookingStatusPending,
		Cancellation: model.Cancellation{RefundStatus: model.RefundStatusNone},
		CreatedAt:    now.UTC(),
	}

	// 4. 整批原子性佔位
	inventory := source.Inventory()
	if err := inventory.ReserveSeats(ctx, showtime.ID, booking.ID, booking.Seats()); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrSeatUnavailable):
			l.metrics.Reservations.WithLabelValues("seat_unavailable").Inc()
		case errors.Is(err, apperrors.ErrCapacity):
			l.metrics.Reservations.WithLabelValues("sold_out").Inc()
		default:
			l.metrics.Reservations.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	// 5. 寫入訂位，失敗時釋放座位
	created, err := l.repository.Create(ctx, booking)
	if err != nil {
		log.Error("failed to persist booking, releasing seats",
			zap.String("booking_id", booking.ID), zap.Error(err))
		// 使用 context.Background() 確保釋放一定會執行
		if _, relErr := inventory.ReleaseSeats(context.Background(), showtime.ID, booking.ID, booking.Seats()); relErr != nil {
			log.Error("failed to release seats after persist failure",
				zap.String("booking_id", booking.ID), zap.Error(relErr))
		}
		l.metrics.Reservations.WithLabelValues("error").Inc()
		return nil, err
	}

	l.metrics.Reservations.WithLabelValues("success").Inc()
	log.Info("booking created",
		zap.String("booking_id", created.ID),
		zap.String("booking_number", created.BookingNumber),
		zap.String("showtime_id", created.ShowtimeID),
		zap.Int("seats", len(created.Tickets)),
		zap.Int64("total", created.TotalAmount),
	)
	return created, nil
}

// transition 讀取最新狀態、套用變更，CAS 失敗時重讀重試
func (l *BookingLedgerImpl) transition(
	ctx context.Context,
	bookingID string,
	apply func(current *model.Booking) (*model.Booking, error),
) (*model.Booking, *model.Booking, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := l.repository.FindByID(ctx, bookingID)
		if err != nil {
			return nil, nil, err
		}
		next, err := apply(current)
		if err != nil {
			return nil, nil, err
		}
		if next == nil {
			return current, current, nil
		}

		updated, err := l.repository.UpdateIfStatus(ctx, next, current.Status)
		if errors.Is(err, repository.ErrStatusChanged) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if updated.Status != current.Status {
			l.metrics.BookingTransitions.WithLabelValues(string(updated.Status)).Inc()
		}
		return current, updated, nil
	}
	return nil, nil, fmt.Errorf("booking %s kept changing: %w", bookingID, apperrors.ErrInternalServerError)
}

func (l *BookingLedgerImpl) AttachPaymentIntent(ctx context.Context, bookingID string, intentID string) (*model.Booking, error) {
	_, updated, err := l.transition(ctx, bookingID, func(current *model.Booking) (*model.Booking, error) {
		if current.Status != model.BookingStatusPending {
			return nil, fmt.Errorf("booking %s is %s: %w", bookingID, current.Status, apperrors.ErrPaymentState)
		}
		next := current.Clone()
		next.Payment.IntentID = intentID
		return next, nil
	})
	return updated, err
}

func (l *BookingLedgerImpl) ConfirmPayment(ctx context.Context, bookingID string, paymentReference string) (*model.Booking, error) {
	if paymentReference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}

	_, updated, err := l.transition(ctx, bookingID, func(current *model.Booking) (*model.Booking, error) {
		// 同一筆付款重送視為成功
		if current.Status == model.BookingStatusConfirmed && current.Payment.TransactionID == paymentReference {
			return nil, nil
		}
		if !current.Status.CanTransitionTo(model.BookingStatusConfirmed) {
			return nil, fmt.Errorf("booking %s is %s: %w", bookingID, current.Status, apperrors.ErrPaymentState)
		}
		paidAt := l.now().UTC()
		next := current.Clone()
		next.Status = model.BookingStatusConfirmed
		next.Payment.Status = model.PaymentStatusSucceeded
		next.Payment.TransactionID = paymentReference
		next.Payment.PaidAt = &paidAt
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("ledger").Info("payment confirmed",
		zap.String("booking_id", bookingID),
		zap.String("payment_reference", paymentReference))
	return updated, nil
}

func (l *BookingLedgerImpl) RecordPaymentFailure(ctx context.Context, bookingID string, paymentReference string) (*model.Booking, error) {
	_, updated, err := l.transition(ctx, bookingID, func(current *model.Booking) (*model.Booking, error) {
		if current.Status != model.BookingStatusPending {
			return nil, fmt.Errorf("booking %s is %s: %w", bookingID, current.Status, apperrors.ErrPaymentState)
		}
		if current.Payment.Status == model.PaymentStatusFailed && current.Payment.TransactionID == paymentReference {
			return nil, nil
		}
		next := current.Clone()
		next.Payment.Status = model.PaymentStatusFailed
		next.Payment.TransactionID = paymentReference
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("ledger").Warn("payment failed, booking stays pending until expiry",
		zap.String("booking_id", bookingID),
		zap.String("payment_reference", paymentReference))
	return updated, nil
}

func (l *BookingLedgerImpl) Cancel(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error) {
	_, updated, err := l.transition(ctx, bookingID, func(current *model.Booking) (*model.Booking, error) {
		// 1. 只有本人或管理員可以取消
		if !actor.IsAdmin() && actor.UserID != current.UserID {
			return nil, fmt.Errorf("user %s cannot cancel booking %s: %w", actor.UserID, bookingID, apperrors.ErrForbidden)
		}
		// 2. 狀態檢查
		if !current.Status.CanTransitionTo(model.BookingStatusCancelled) {
			return nil, fmt.Errorf("booking %s is %s: %w", bookingID, current.Status, apperrors.ErrInvalidBookingStatus)
		}
		// 3. 開演前截止時間
		now := l.now()
		if !now.Add(l.cancelCutoff).Before(current.ShowStartsAt) {
			return nil, fmt.Errorf("booking %s: %w", bookingID, apperrors.ErrTooCloseToShowtime)
		}

		// 4. 退款：pending 尚未付款不退
		var refund int64
		if current.Status == model.BookingStatusConfirmed {
			refund = l.refundPolicy.Refund(current.TotalAmount, now, current.ShowStartsAt)
		}

		cancelledAt := now.UTC()
		next := current.Clone()
		next.Status = model.BookingStatusCancelled
		next.Cancellation = model.Cancellation{
			IsCancelled:  true,
			CancelledAt:  &cancelledAt,
			CancelledBy:  actor.String(),
			RefundAmount: refund,
			RefundStatus: model.RefundStatusNone,
		}
		if refund > 0 {
			next.Cancellation.RefundStatus = model.RefundStatusPending
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	// 5. 狀態已寫入，釋放座位
	l.releaseSeats(updated)

	logger.WithComponent("ledger").Info("booking cancelled",
		zap.String("booking_id", updated.ID),
		zap.String("cancelled_by", updated.Cancellation.CancelledBy),
		zap.Int64("refund", updated.Cancellation.RefundAmount))
	return updated, nil
}

// releaseSeats 狀態已提交，釋放必須完成，不跟隨請求的 context
func (l *BookingLedgerImpl) releaseSeats(booking *model.Booking) {
	log := logger.WithComponent("ledger")
	ctx := context.Background()

	source, err := l.scheduler.Resolve(ctx, booking.ShowtimeID)
	if err != nil {
		log.Error("failed to resolve showtime for release",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}

	for attempt := 1; attempt <= maxReleaseAttempts; attempt++ {
		released, err := source.Inventory().ReleaseSeats(ctx, booking.ShowtimeID, booking.ID, booking.Seats())
		if err == nil {
			l.metrics.SeatsReleased.Add(float64(released))
			return
		}
		log.Warn("failed to release seats",
			zap.String("booking_id", booking.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	log.Error("giving up releasing seats", zap.String("booking_id", booking.ID))
}

func (l *BookingLedgerImpl) publish(ctx context.Context, kind model.NotificationKind, booking *model.Booking) {
	if l.publisher == nil {
		return
	}
	notification := model.NewNotification(uuid.New().String(), kind, booking, l.now().UTC())
	if err := l.publisher.PublishNotification(ctx, notification); err != nil {
		logger.WithComponent("ledger").Warn("failed to publish notification",
			zap.String("booking_id", booking.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (l *BookingLedgerImpl) ExpireStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	log := logger.WithComponent("ledger")

	stale, err := l.repository.ListPendingCreatedBefore(ctx, now.Add(-timeout))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, booking := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		next := booking.Clone()
		next.Status = model.BookingStatusExpired
		next.Cancellation.RefundAmount = 0
		next.Cancellation.RefundStatus = model.RefundStatusNone

		updated, err := l.repository.UpdateIfStatus(ctx, next, model.BookingStatusPending)
		if errors.Is(err, repository.ErrStatusChanged) {
			// 已被付款或取消
			continue
		}
		if err != nil {
			log.Error("failed to expire booking", zap.String("booking_id", booking.ID), zap.Error(err))
			continue
		}

		l.metrics.BookingTransitions.WithLabelValues(string(model.BookingStatusExpired)).Inc()
		l.releaseSeats(updated)
		l.publish(ctx, model.NotificationBookingExpired, updated)
		expired++
	}

	if expired > 0 {
		log.Info("expired stale bookings", zap.Int("count", expired))
	}
	return expired, nil
}

func (l *BookingLedgerImpl) CompleteFinished(ctx context.Context, now time.Time) (int, error) {
	log := logger.WithComponent("ledger")

	started, err := l.repository.ListConfirmedStartedBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, booking := range started {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		next := booking.Clone()
		next.Status = model.BookingStatusCompleted
		_, err := l.repository.UpdateIfStatus(ctx, next, model.BookingStatusConfirmed)
		if errors.Is(err, repository.ErrStatusChanged) {
			continue
		}
		if err != nil {
			log.Error("failed to complete booking", zap.String("booking_id", booking.ID), zap.Error(err))
			continue
		}
		l.metrics.BookingTransitions.WithLabelValues(string(model.BookingStatusCompleted)).Inc()
		completed++
	}

	if completed > 0 {
		log.Info("completed finished bookings", zap.Int("count", completed))
	}
	return completed, nil
}

func (l *BookingLedgerImpl) Get(ctx context.Context, bookingID string) (*model.Booking, error) {
	return l.repository.FindByID(ctx, bookingID)
}

func (l *BookingLedgerImpl) GetByNumber(ctx context.Context, bookingNumber string) (*model.Booking, error) {
	return l.repository.FindByNumber(ctx, bookingNumber)
}

func (l *BookingLedgerImpl) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	return l.repository.ListByUser(ctx, userID)
}
