package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go-gin-cinema-booking/internal/cache"
	"go-gin-cinema-booking/internal/catalog"
	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/middleware"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/payment"
	"go-gin-cinema-booking/internal/pricing"
	"go-gin-cinema-booking/internal/queue"
	"go-gin-cinema-booking/internal/repository"
	"go-gin-cinema-booking/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWebhookSecret = "hook-secret"
	testJWTSecret     = "jwt-secret"
)

type testServer struct {
	router    *gin.Engine
	scheduler service.SchedulerService
	showtime  *model.Showtime
}

// setupServer 以記憶體後端組出完整的服務
func setupServer(t *testing.T, jwtSecret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	bookings := repository.NewMemoryBookingRepository()
	scheduler := service.NewSchedulerService(
		repository.NewMemoryShowtimeRepository(),
		bookings,
		catalog.DemoCatalog(),
		pricing.DefaultPolicy(),
		cache.NewMemorySeatInventory(),
		time.UTC,
	)
	notifications := queue.NewMemoryNotificationQueue(100)
	ledger := service.NewBookingLedger(bookings, scheduler, service.WithPublisher(notifications))
	coordinator := service.NewReservationCoordinator(ledger, payment.NewSandboxGateway(), notifications)

	showtime, err := scheduler.CreateShowtime(ctx, service.CreateShowtimeParams{
		MovieID:         "mv-001",
		TheaterID:       "pvr-juhu",
		Hall:            "Hall 1",
		Date:            "2030-01-15",
		StartTime:       "19:30",
		DurationMinutes: 120,
		BasePrice:       200,
	})
	require.NoError(t, err)

	router := NewRouter(scheduler, coordinator, metrics.New(), RouterConfig{
		JWTSecret:     jwtSecret,
		WebhookSecret: testWebhookSecret,
	})
	return &testServer{router: router, scheduler: scheduler, showtime: showtime}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func asUser(id string) map[string]string {
	return map[string]string{middleware.HeaderUserID: id}
}

func asAdmin() map[string]string {
	return map[string]string{middleware.HeaderUserID: "ops", middleware.HeaderUserRole: "admin"}
}

func reservationBody(showtimeID string, seats ...gin.H) gin.H {
	return gin.H{
		"user_id":        "user-1",
		"showtime_id":    showtimeID,
		"seats":          seats,
		"payment_method": "card",
	}
}

func seatBody(row string, number int) gin.H {
	return gin.H{"row": row, "number": number, "type": "regular"}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) reserve(t *testing.T, user string, seats ...gin.H) *model.Reservation {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/reservations", reservationBody(s.showtime.ID, seats...), asUser(user))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*model.Reservation](t, w)
}

func TestPing(t *testing.T) {
	s := setupServer(t, "")
	w := s.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cinema_http_requests_total")
}

func TestReservationHandler_Reserve(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s := setupServer(t, "")

		reservation := s.reserve(t, "user-1", seatBody("C", 1), seatBody("c", 2))

		assert.NotEmpty(t, reservation.ClientSecret)
		assert.Equal(t, model.BookingStatusPending, reservation.Booking.Status)
		assert.Equal(t, int64(676), reservation.Booking.TotalAmount)
		assert.Len(t, reservation.Booking.Tickets, 2)
	})

	t.Run("Failed - SeatUnavailable", func(t *testing.T) {
		s := setupServer(t, "")
		s.reserve(t, "user-9", seatBody("C", 2))

		w := s.do(t, http.MethodPost, "/api/v1/reservations",
			reservationBody(s.showtime.ID, seatBody("C", 1), seatBody("C", 2)), asUser("user-1"))

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "seat_unavailable", body["error"])
		assert.Equal(t, []interface{}{"C2"}, body["seats"])
	})

	cases := []struct {
		name string
		body gin.H
		code int
		kind string
	}{
		{"Failed - MalformedBody", gin.H{"seats": "A1"}, http.StatusBadRequest, "validation"},
		{"Failed - UnknownShowtime", reservationBody("missing", seatBody("C", 1)), http.StatusNotFound, "not_found"},
		{"Failed - UnknownSeat", reservationBody("", seatBody("Z", 99)), http.StatusBadRequest, "validation"},
		{"Failed - WrongSeatType", reservationBody("", gin.H{"row": "C", "number": 1, "type": "vip"}), http.StatusBadRequest, "validation"},
		{"Failed - UnknownPaymentMethod", gin.H{
			"user_id": "user-1", "showtime_id": "", "seats": []gin.H{seatBody("C", 1)}, "payment_method": "cash",
		}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupServer(t, "")
			if tc.body["showtime_id"] == "" {
				tc.body["showtime_id"] = s.showtime.ID
			}
			w := s.do(t, http.MethodPost, "/api/v1/reservations", tc.body, asUser("user-1"))
			assert.Equal(t, tc.code, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, decode[map[string]interface{}](t, w)["error"])
		})
	}

	t.Run("IdentifiedUserOverridesBody", func(t *testing.T) {
		s := setupServer(t, "")
		body := reservationBody(s.showtime.ID, seatBody("C", 1))
		body["user_id"] = "someone-else"

		w := s.do(t, http.MethodPost, "/api/v1/reservations", body, asUser("user-1"))
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "user-1", decode[*model.Reservation](t, w).Booking.UserID)
	})
}

func TestReservationHandler_ConcurrentSameSeat(t *testing.T) {
	s := setupServer(t, "")

	const workers = 30
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := s.do(t, http.MethodPost, "/api/v1/reservations",
				reservationBody(s.showtime.ID, seatBody("D", 6)), asUser(fmt.Sprintf("user-%d", i)))
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func TestBookingHandler_CancelAndPayment(t *testing.T) {
	s := setupServer(t, "")
	reservation := s.reserve(t, "user-1", seatBody("C", 1))
	bookingPath := "/api/v1/bookings/" + reservation.Booking.ID

	t.Run("Failed - WebhookWithoutSecret", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/confirm-payment",
			gin.H{"payment_reference": "pay_1", "succeeded": true}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ConfirmPayment", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/confirm-payment",
			gin.H{"payment_reference": "pay_1", "succeeded": true},
			map[string]string{middleware.HeaderWebhookSecret: testWebhookSecret})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, model.BookingStatusConfirmed, decode[*model.Booking](t, w).Status)
	})

	t.Run("GetByNumber", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/bookings?number="+reservation.Booking.BookingNumber, nil, asUser("user-1"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, reservation.Booking.ID, decode[*model.Booking](t, w).ID)

		w = s.do(t, http.MethodGet, "/api/v1/bookings", nil, asUser("user-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Failed - GetOtherUsersBooking", func(t *testing.T) {
		w := s.do(t, http.MethodGet, bookingPath, nil, asUser("user-2"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Failed - CancelOtherUsersBooking", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/cancel", nil, asUser("user-2"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Cancel", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/cancel", nil, asUser("user-1"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := decode[*model.CancelResult](t, w)
		assert.Equal(t, int64(338), result.RefundAmount)
		assert.Equal(t, model.BookingStatusCancelled, result.Booking.Status)

		available, err := s.scheduler.SeatAvailability(context.Background(), s.showtime.ID, "C", 1)
		require.NoError(t, err)
		assert.True(t, available)
	})

	t.Run("Failed - CancelTwice", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/cancel", nil, asUser("user-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "not_cancellable", decode[map[string]interface{}](t, w)["error"])
	})

	t.Run("Failed - ConfirmCancelled", func(t *testing.T) {
		w := s.do(t, http.MethodPost, bookingPath+"/confirm-payment",
			gin.H{"payment_reference": "pay_2", "succeeded": true},
			map[string]string{middleware.HeaderWebhookSecret: testWebhookSecret})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("ListByUser", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/users/user-1/bookings", nil, asUser("user-1"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*model.Booking](t, w), 1)

		w = s.do(t, http.MethodGet, "/api/v1/users/user-1/bookings", nil, asUser("user-2"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestShowtimeHandler(t *testing.T) {
	s := setupServer(t, "")

	t.Run("SeatMap", func(t *testing.T) {
		s.reserve(t, "user-1", seatBody("C", 1))

		w := s.do(t, http.MethodGet, "/api/v1/showtimes/"+s.showtime.ID+"/seatmap", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		seatMap := decode[*model.SeatMap](t, w)

		var status model.SeatStatus
		for _, row := range seatMap.Rows {
			if row.Row != "C" {
				continue
			}
			for _, seat := range row.Seats {
				if seat.Number == 1 {
					status = seat.Status
				}
			}
		}
		assert.Equal(t, model.SeatStatusBooked, status)
	})

	t.Run("SeatAvailability", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/showtimes/"+s.showtime.ID+"/seats/c/2", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode[map[string]interface{}](t, w)["available"])
	})

	t.Run("Failed - CreateAsCustomer", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/showtimes", gin.H{}, asUser("user-1"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("CreateAndConflict", func(t *testing.T) {
		body := gin.H{
			"movie_id": "mv-001", "theater_id": "pvr-juhu", "hall": "Hall 2",
			"date": "2030-01-16", "start_time": "14:00", "duration_minutes": 120, "base_price": 200,
		}
		w := s.do(t, http.MethodPost, "/api/v1/showtimes", body, asAdmin())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body["start_time"] = "15:00"
		w = s.do(t, http.MethodPost, "/api/v1/showtimes", body, asAdmin())
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "schedule_conflict", decode[map[string]interface{}](t, w)["error"])

		w = s.do(t, http.MethodGet, "/api/v1/showtimes?theater_id=pvr-juhu&hall=Hall%202", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*model.Showtime](t, w), 1)
	})

	t.Run("Cancel", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/showtimes/"+s.showtime.ID+"/cancel", nil, asAdmin())
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.ShowtimeStatusCancelled, decode[*model.Showtime](t, w).Status)

		w = s.do(t, http.MethodPost, "/api/v1/reservations",
			reservationBody(s.showtime.ID, seatBody("C", 5)), asUser("user-1"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "showtime_not_bookable", decode[map[string]interface{}](t, w)["error"])
	})

	t.Run("Failed - NotFound", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/showtimes/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_JWT(t *testing.T) {
	s := setupServer(t, testJWTSecret)

	w := s.do(t, http.MethodPost, "/api/v1/reservations", reservationBody(s.showtime.ID, seatBody("C", 1)), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.NewToken(testJWTSecret, "user-7", model.RoleCustomer, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/v1/reservations", reservationBody(s.showtime.ID, seatBody("C", 1)),
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user-7", decode[*model.Reservation](t, w).Booking.UserID)
}
