package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"github.com/redis/go-redis/v9"
)

var warmUpScript = redis.NewScript(`
	local remaining_key = KEYS[1]

	-- 已預熱過就不覆蓋，避免重啟時把扣過的數量重設
	if redis.call('EXISTS', remaining_key) == 1 then
		return 0
	end

	for i = 1, #ARGV, 2 do
		redis.call('HSET', remaining_key, ARGV[i], ARGV[i + 1])
	end
	return 1
`)

/*
*

	佔位 (Lua 腳本確保整批原子性)
	1. 檢查場次是否已預熱
	2. 檢查每個座位是否被其他訂位佔用
	3. 檢查各類型剩餘數量
	4. 寫入佔用並扣減數量
*/
var reserveScript = redis.NewScript(`
	local seats_key = KEYS[1]
	local remaining_key = KEYS[2]
	local booking_id = ARGV[1]

	if redis.call('EXISTS', remaining_key) == 0 then
		return {-3}
	end

	local taken = {}
	local fresh = {}
	local need = {}
	for i = 2, #ARGV, 2 do
		local field = ARGV[i]
		local seat_type = ARGV[i + 1]
		local holder = redis.call('HGET', seats_key, field)
		if holder then
			if holder ~= booking_id then
				table.insert(taken, field)
			end
		else
			table.insert(fresh, field)
			if seat_type ~= 'wheelchair' then
				need[seat_type] = (need[seat_type] or 0) + 1
			end
		end
	end

	if #taken > 0 then
		local res = {-1}
		for _, field in ipairs(taken) do
			table.insert(res, field)
		end
		return res
	end

	for seat_type, n in pairs(need) do
		local left = tonumber(redis.call('HGET', remaining_key, seat_type) or '0')
		if left < n then
			return {-2, seat_type}
		end
	end

	for _, field in ipairs(fresh) do
		redis.call('HSET', seats_key, field, booking_id)
	end
	for seat_type, n in pairs(need) do
		redis.call('HINCRBY', remaining_key, seat_type, -n)
	end

	return {1}
`)

// 釋放：只刪除仍由該訂位持有的座位，重複呼叫不會多加回數量
var releaseScript = redis.NewScript(`
	local seats_key = KEYS[1]
	local remaining_key = KEYS[2]
	local booking_id = ARGV[1]

	local released = 0
	for i = 2, #ARGV, 2 do
		local field = ARGV[i]
		local seat_type = ARGV[i + 1]
		if redis.call('HGET', seats_key, field) == booking_id then
			redis.call('HDEL', seats_key, field)
			if seat_type ~= 'wheelchair' then
				redis.call('HINCRBY', remaining_key, seat_type, 1)
			end
			released = released + 1
		end
	end

	return released
`)

type RedisSeatInventory struct {
	client *redis.Client
}

func NewRedisSeatInventory(client *redis.Client) SeatInventory {
	return &RedisSeatInventory{
		client: client,
	}
}

// 佔用集合 key：field "A:12" -> booking id
func (m *RedisSeatInventory) getSeatsKey(showtimeID string) string {
	return fmt.Sprintf("showtime:{%s}:seats", showtimeID)
}

// 剩餘數量 key：field seat type -> count
func (m *RedisSeatInventory) getRemainingKey(showtimeID string) string {
	return fmt.Sprintf("showtime:{%s}:remaining", showtimeID)
}

func seatArgs(bookingID string, seats []model.Seat) []interface{} {
	args := make([]interface{}, 0, 1+2*len(seats))
	args = append(args, bookingID)
	for _, s := range seats {
		args = append(args, s.Key().Field(), string(s.Type))
	}
	return args
}

func (m *RedisSeatInventory) WarmUpInventory(ctx context.Context, showtimeID string, capacity map[model.SeatType]int) error {
	args := make([]interface{}, 0, 2*len(model.CountedSeatTypes))
	for _, t := range model.CountedSeatTypes {
		args = append(args, string(t), capacity[t])
	}
	return warmUpScript.Run(ctx, m.client, []string{m.getRemainingKey(showtimeID)}, args...).Err()
}

func (m *RedisSeatInventory) ReserveSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) error {
	keys := []string{m.getSeatsKey(showtimeID), m.getRemainingKey(showtimeID)}
	result, err := reserveScript.Run(ctx, m.client, keys, seatArgs(bookingID, seats)...).Slice()
	if err != nil {
		return err
	}
	if len(result) == 0 {
		return errors.New("unexpected result")
	}

	code, ok := result[0].(int64)
	if !ok {
		return errors.New("unexpected result")
	}

	switch code {
	case 1:
		return nil
	case -1:
		taken := make([]model.SeatKey, 0, len(result)-1)
		for _, v := range result[1:] {
			field, _ := v.(string)
			key, err := parseSeatField(field)
			if err != nil {
				return err
			}
			taken = append(taken, key)
		}
		return unavailableError(taken)
	case -2:
		seatType, _ := result[1].(string)
		return &apperrors.CapacityError{SeatType: seatType}
	case -3:
		return apperrors.ErrShowtimeNotFound
	default:
		return errors.New("unexpected result")
	}
}

func (m *RedisSeatInventory) ReleaseSeats(ctx context.Context, showtimeID string, bookingID string, seats []model.Seat) (int, error) {
	keys := []string{m.getSeatsKey(showtimeID), m.getRemainingKey(showtimeID)}
	released, err := releaseScript.Run(ctx, m.client, keys, seatArgs(bookingID, seats)...).Int()
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (m *RedisSeatInventory) IsBooked(ctx context.Context, showtimeID string, key model.SeatKey) (bool, error) {
	return m.client.HExists(ctx, m.getSeatsKey(showtimeID), key.Field()).Result()
}

func (m *RedisSeatInventory) BookedSeats(ctx context.Context, showtimeID string) (map[model.SeatKey]string, error) {
	result, err := m.client.HGetAll(ctx, m.getSeatsKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}

	booked := make(map[model.SeatKey]string, len(result))
	for field, bookingID := range result {
		key, err := parseSeatField(field)
		if err != nil {
			return nil, err
		}
		booked[key] = bookingID
	}
	return booked, nil
}

func (m *RedisSeatInventory) Remaining(ctx context.Context, showtimeID string) (map[model.SeatType]int, error) {
	result, err := m.client.HGetAll(ctx, m.getRemainingKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}

	// 檢查 key 是否存在
	if len(result) == 0 {
		return nil, apperrors.ErrShowtimeNotFound
	}

	remaining := make(map[model.SeatType]int, len(result))
	for seatType, raw := range result {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid remaining for %s: %v", seatType, err)
		}
		remaining[model.SeatType(seatType)] = n
	}
	return remaining, nil
}
