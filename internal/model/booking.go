package model

import "time"

// BookingStatus 訂位狀態類型
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCompleted BookingStatus = "completed"
)

// IsValid 驗證狀態是否有效
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusExpired, BookingStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	transitions := map[BookingStatus][]BookingStatus{
		BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
		BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
		BookingStatusCancelled: {}, // 不能轉換到任何狀態
		BookingStatusExpired:   {},
		BookingStatusCompleted: {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

// HoldsSeats 該狀態的訂位是否佔用座位
func (s BookingStatus) HoldsSeats() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted:
		return true
	}
	return false
}

// PaymentMethod 付款方式
type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking, PaymentMethodWallet:
		return true
	}
	return false
}

// PaymentStatus 付款狀態
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// RefundStatus 退款狀態
type RefundStatus string

const (
	RefundStatusNone    RefundStatus = "none"
	RefundStatusPending RefundStatus = "pending"
)

// Ticket 訂位內的單張票，價格於建立時凍結
type Ticket struct {
	ID     string   `json:"id" db:"id"`
	Row    string   `json:"row" db:"seat_row"`
	Number int      `json:"number" db:"seat_number"`
	Type   SeatType `json:"type" db:"seat_type"`
	Price  int64    `json:"price" db:"price"`
}

func (t Ticket) Key() SeatKey {
	return SeatKey{Row: t.Row, Number: t.Number}
}

// Payment 付款紀錄
type Payment struct {
	Method        PaymentMethod `json:"method" db:"payment_method"`
	IntentID      string        `json:"intent_id,omitempty" db:"payment_intent_id"`
	TransactionID string        `json:"transaction_id,omitempty" db:"payment_transaction_id"`
	Status        PaymentStatus `json:"status" db:"payment_status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}

// Cancellation 取消紀錄
type Cancellation struct {
	IsCancelled  bool         `json:"is_cancelled" db:"is_cancelled"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy  string       `json:"cancelled_by,omitempty" db:"cancelled_by"`
	RefundAmount int64        `json:"refund_amount" db:"refund_amount"`
	RefundStatus RefundStatus `json:"refund_status" db:"refund_status"`
}

// Booking 訂位模型
type Booking struct {
	ID            string        `json:"id" db:"id"`
	BookingNumber string        `json:"booking_number" db:"booking_number"`
	UserID        string        `json:"user_id" db:"user_id"`
	ShowtimeID    string        `json:"showtime_id" db:"showtime_id"`
	MovieID       string        `json:"movie_id" db:"movie_id"`
	TheaterID     string        `json:"theater_id" db:"theater_id"`
	Hall          string        `json:"hall" db:"hall"`
	ShowDate      string        `json:"show_date" db:"show_date"`
	ShowTime      string        `json:"show_time" db:"show_time"`
	ShowStartsAt  time.Time     `json:"show_starts_at" db:"show_starts_at"`
	Tickets       []Ticket      `json:"tickets"`
	TotalAmount   int64         `json:"total_amount" db:"total_amount"`
	Payment       Payment       `json:"payment"`
	Status        BookingStatus `json:"status" db:"status"`
	Cancellation  Cancellation  `json:"cancellation"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// SeatKeys 訂位佔用的座位
func (b *Booking) SeatKeys() []SeatKey {
	keys := make([]SeatKey, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		keys = append(keys, t.Key())
	}
	return keys
}

// Seats 訂位佔用座位及類型
func (b *Booking) Seats() []Seat {
	seats := make([]Seat, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		seats = append(seats, Seat{Row: t.Row, Number: t.Number, Type: t.Type})
	}
	return seats
}

// TicketTotal 票價加總
func (b *Booking) TicketTotal() int64 {
	var total int64
	for _, t := range b.Tickets {
		total += t.Price
	}
	return total
}

// Clone 深拷貝，避免記憶體儲存被外部修改
func (b *Booking) Clone() *Booking {
	c := *b
	c.Tickets = append([]Ticket(nil), b.Tickets...)
	if b.Payment.PaidAt != nil {
		t := *b.Payment.PaidAt
		c.Payment.PaidAt = &t
	}
	if b.Cancellation.CancelledAt != nil {
		t := *b.Cancellation.CancelledAt
		c.Cancellation.CancelledAt = &t
	}
	return &c
}

// Role 操作者角色
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor 執行取消等操作的身分
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// String 寫入 cancelled_by 的格式
func (a Actor) String() string {
	if a.Role == "" {
		return a.UserID
	}
	return string(a.Role) + ":" + a.UserID
}

// SeatSelection 使用者選擇的座位
type SeatSelection struct {
	Row    string   `json:"row" binding:"required" validate:"required,max=4"`
	Number int      `json:"number" binding:"required,min=1" validate:"required,min=1"`
	Type   SeatType `json:"type" binding:"required" validate:"required,seattype"`
}

// CreateReservationRequest 建立訂位請求
type CreateReservationRequest struct {
	UserID        string          `json:"user_id" validate:"required"`
	ShowtimeID    string          `json:"showtime_id" binding:"required" validate:"required"`
	Seats         []SeatSelection `json:"seats" binding:"required" validate:"required,min=1,max=10,dive"`
	PaymentMethod PaymentMethod   `json:"payment_method" binding:"required" validate:"required,paymethod"`
}

// PaymentResultRequest 付款結果回呼
type PaymentResultRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
	Succeeded        *bool  `json:"succeeded" binding:"required"`
}

// Reservation 建立訂位後回傳給前端
type Reservation struct {
	Booking      *Booking `json:"booking"`
	ClientSecret string   `json:"client_secret,omitempty"`
}

// CancelResult 取消結果
type CancelResult struct {
	RefundAmount int64    `json:"refund_amount"`
	Booking      *Booking `json:"booking"`
}
