package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ShowtimeRepository interface {
	// 在同一原子操作內檢查同廳同日是否時段重疊並寫入
	CreateIfNoOverlap(ctx context.Context, showtime *model.Showtime) (*model.Showtime, error)
	FindByID(ctx context.Context, id string) (*model.Showtime, error)
	List(ctx context.Context, filter model.ShowtimeFilter) ([]*model.Showtime, error)
	UpdateStatus(ctx context.Context, id string, status model.ShowtimeStatus) (*model.Showtime, error)
}

type ShowtimeRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewShowtimeRepository(pool *pgxpool.Pool) ShowtimeRepository {
	return &ShowtimeRepositoryImpl{
		pool: pool,
	}
}

const showtimeColumns = `id, movie_id, theater_id, hall, show_date, start_time, end_time,
	price_regular, price_premium, price_vip, status, created_at, updated_at`

func scanShowtime(row pgx.Row) (*model.Showtime, error) {
	var s model.Showtime
	err := row.Scan(
		&s.ID,
		&s.MovieID,
		&s.TheaterID,
		&s.Hall,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Prices.Regular,
		&s.Prices.Premium,
		&s.Prices.VIP,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// slotLockKey 同一 (戲院, 廳, 日期) 共用一把 advisory lock
func slotLockKey(theaterID, hall, date string) string {
	return strings.Join([]string{theaterID, hall, date}, "|")
}

func (r *ShowtimeRepositoryImpl) CreateIfNoOverlap(ctx context.Context, showtime *model.Showtime) (*model.Showtime, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 1. 鎖住該時段，交易結束自動釋放
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		slotLockKey(showtime.TheaterID, showtime.Hall, showtime.Date))
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule slot: %w", err)
	}

	// 2. 半開區間重疊檢查
	var conflicts int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM showtimes
		WHERE theater_id = $1
		  AND hall = $2
		  AND show_date = $3
		  AND status = $4
		  AND start_time < $5
		  AND $6 < end_time
	`, showtime.TheaterID, showtime.Hall, showtime.Date, model.ShowtimeStatusActive,
		showtime.EndTime, showtime.StartTime,
	).Scan(&conflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to check schedule overlap: %w", err)
	}
	if conflicts > 0 {
		return nil, apperrors.ErrScheduleConflict
	}

	// 3. 寫入
	created, err := scanShowtime(tx.QueryRow(ctx, `
		INSERT INTO showtimes (
			id, movie_id, theater_id, hall, show_date, start_time, end_time,
			price_regular, price_premium, price_vip, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+showtimeColumns,
		showtime.ID, showtime.MovieID, showtime.TheaterID, showtime.Hall, showtime.Date,
		showtime.StartTime, showtime.EndTime,
		showtime.Prices.Regular, showtime.Prices.Premium, showtime.Prices.VIP, showtime.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create showtime: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *ShowtimeRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Showtime, error) {
	query := `SELECT ` + showtimeColumns + ` FROM showtimes WHERE id = $1`

	showtime, err := scanShowtime(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrShowtimeNotFound
		}
		return nil, err
	}
	return showtime, nil
}

func (r *ShowtimeRepositoryImpl) List(ctx context.Context, filter model.ShowtimeFilter) ([]*model.Showtime, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TheaterID != "" {
		add("theater_id = $%d", filter.TheaterID)
	}
	if filter.Hall != "" {
		add("hall = $%d", filter.Hall)
	}
	if filter.Date != "" {
		add("show_date = $%d", filter.Date)
	}
	if filter.OnlyActive {
		add("status = $%d", model.ShowtimeStatusActive)
	}

	query := `SELECT ` + showtimeColumns + ` FROM showtimes`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY show_date, start_time, hall`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var showtimes []*model.Showtime
	for rows.Next() {
		showtime, err := scanShowtime(rows)
		if err != nil {
			return nil, err
		}
		showtimes = append(showtimes, showtime)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return showtimes, nil
}

func (r *ShowtimeRepositoryImpl) UpdateStatus(ctx context.Context, id string, status model.ShowtimeStatus) (*model.Showtime, error) {
	query := `
		UPDATE showtimes
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + showtimeColumns

	showtime, err := scanShowtime(r.pool.QueryRow(ctx, query, status, time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrShowtimeNotFound
		}
		return nil, fmt.Errorf("failed to update showtime status: %w", err)
	}
	return showtime, nil
}
