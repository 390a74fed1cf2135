package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go-gin-cinema-booking/internal/model"
	apperrors "go-gin-cinema-booking/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowtimeRepository_CreateIfNoOverlap(t *testing.T) {
	forEachShowtimeRepository(t, func(t *testing.T, repo ShowtimeRepository) {
		ctx := context.Background()

		first, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "14:00", "16:00"))
		require.NoError(t, err)
		assert.False(t, first.CreatedAt.IsZero())

		t.Run("Failed - Overlap", func(t *testing.T) {
			_, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "15:00", "17:00"))
			assert.ErrorIs(t, err, apperrors.ErrScheduleConflict)
		})

		t.Run("AdjacentSlot", func(t *testing.T) {
			_, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "16:00", "18:00"))
			assert.NoError(t, err)
		})

		t.Run("OtherHall", func(t *testing.T) {
			_, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 2", "15:00", "17:00"))
			assert.NoError(t, err)
		})

		t.Run("CancelledDoesNotBlock", func(t *testing.T) {
			_, err := repo.UpdateStatus(ctx, first.ID, model.ShowtimeStatusCancelled)
			require.NoError(t, err)
			_, err = repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "13:00", "15:30"))
			assert.NoError(t, err)
		})
	})
}

func TestShowtimeRepository_ConcurrentCreate(t *testing.T) {
	forEachShowtimeRepository(t, func(t *testing.T, repo ShowtimeRepository) {
		ctx := context.Background()

		const workers = 20
		var (
			wg        sync.WaitGroup
			created   int32
			conflicts int32
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "10:00", "12:00"))
				switch {
				case err == nil:
					atomic.AddInt32(&created, 1)
				case assert.ErrorIs(t, err, apperrors.ErrScheduleConflict):
					atomic.AddInt32(&conflicts, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), created)
		assert.Equal(t, int32(workers-1), conflicts)
	})
}

func TestShowtimeRepository_FindAndList(t *testing.T) {
	forEachShowtimeRepository(t, func(t *testing.T, repo ShowtimeRepository) {
		ctx := context.Background()

		evening, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "19:30", "21:30"))
		require.NoError(t, err)
		morning, err := repo.CreateIfNoOverlap(ctx, newTestShowtime("Hall 1", "09:00", "11:00"))
		require.NoError(t, err)
		_, err = repo.UpdateStatus(ctx, morning.ID, model.ShowtimeStatusCancelled)
		require.NoError(t, err)

		t.Run("FindByID", func(t *testing.T) {
			found, err := repo.FindByID(ctx, evening.ID)
			require.NoError(t, err)
			assert.Equal(t, evening.Prices, found.Prices)
			assert.Equal(t, "21:30", found.EndTime)
		})

		t.Run("Failed - NotFound", func(t *testing.T) {
			_, err := repo.FindByID(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			_, err = repo.UpdateStatus(ctx, "missing", model.ShowtimeStatusCancelled)
			assert.ErrorIs(t, err, apperrors.ErrShowtimeNotFound)
		})

		t.Run("ListOrdered", func(t *testing.T) {
			all, err := repo.List(ctx, model.ShowtimeFilter{TheaterID: "pvr-juhu", Date: "2030-01-15"})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, morning.ID, all[0].ID)
			assert.Equal(t, evening.ID, all[1].ID)
		})

		t.Run("ListOnlyActive", func(t *testing.T) {
			active, err := repo.List(ctx, model.ShowtimeFilter{OnlyActive: true})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, evening.ID, active[0].ID)
		})
	})
}
