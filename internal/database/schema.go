package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// 座位佔用由 SeatInventory 決定，bookings 只記錄訂位本身
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id            TEXT PRIMARY KEY,
		movie_id      TEXT NOT NULL,
		theater_id    TEXT NOT NULL,
		hall          TEXT NOT NULL,
		show_date     TEXT NOT NULL,
		start_time    TEXT NOT NULL,
		end_time      TEXT NOT NULL,
		price_regular BIGINT NOT NULL,
		price_premium BIGINT NOT NULL,
		price_vip     BIGINT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'active',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_showtimes_slot
		ON showtimes (theater_id, hall, show_date)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                     TEXT PRIMARY KEY,
		booking_number         TEXT NOT NULL UNIQUE,
		user_id                TEXT NOT NULL,
		showtime_id            TEXT NOT NULL,
		movie_id               TEXT NOT NULL,
		theater_id             TEXT NOT NULL,
		hall                   TEXT NOT NULL,
		show_date              TEXT NOT NULL,
		show_time              TEXT NOT NULL,
		show_starts_at         TIMESTAMPTZ NOT NULL,
		tickets                JSONB NOT NULL,
		total_amount           BIGINT NOT NULL,
		payment_method         TEXT NOT NULL,
		payment_intent_id      TEXT NOT NULL DEFAULT '',
		payment_transaction_id TEXT NOT NULL DEFAULT '',
		payment_status         TEXT NOT NULL,
		paid_at                TIMESTAMPTZ,
		status                 TEXT NOT NULL,
		is_cancelled           BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled_at           TIMESTAMPTZ,
		cancelled_by           TEXT NOT NULL DEFAULT '',
		refund_amount          BIGINT NOT NULL DEFAULT 0,
		refund_status          TEXT NOT NULL DEFAULT 'none',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_showtime ON bookings (showtime_id)`,
}

// EnsureSchema 建立資料表（已存在則略過）
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
