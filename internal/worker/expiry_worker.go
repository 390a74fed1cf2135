package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/service"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type ExpiryWorkerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Location   *time.Location
}

// ExpiryWorker 定期將逾時的 pending 訂位轉為 expired，並把已開演的 confirmed 訂位轉為 completed
type ExpiryWorker struct {
	ledger  service.BookingLedger
	cfg     ExpiryWorkerConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewExpiryWorker(ledger service.BookingLedger, cfg ExpiryWorkerConfig, m *metrics.Metrics) *ExpiryWorker {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ExpiryWorker{
		ledger:  ledger,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// RunOnce 執行一輪清理；其中一步失敗時另一步仍會執行
func (w *ExpiryWorker) RunOnce(ctx context.Context) (expired int, completed int, err error) {
	log := logger.WithComponent("sweeper")
	now := w.now()

	started := time.Now()
	expired, expireErr := w.ledger.ExpireStale(ctx, now, w.cfg.StaleAfter)
	w.observe("expire", started)
	if expireErr != nil {
		log.Error("expire stale bookings failed", zap.Error(expireErr))
		expireErr = fmt.Errorf("expire stale: %w", expireErr)
	}

	started = time.Now()
	completed, completeErr := w.ledger.CompleteFinished(ctx, now)
	w.observe("complete", started)
	if completeErr != nil {
		log.Error("complete finished bookings failed", zap.Error(completeErr))
		completeErr = fmt.Errorf("complete finished: %w", completeErr)
	}

	if expired > 0 || completed > 0 {
		log.Info("sweep finished", zap.Int("expired", expired), zap.Int("completed", completed))
	}
	return expired, completed, errors.Join(expireErr, completeErr)
}

func (w *ExpiryWorker) observe(job string, started time.Time) {
	if w.metrics != nil {
		w.metrics.ObserveSweep(job, started)
	}
}

// Run 啟動排程直到 ctx 結束；同一時間只會有一輪清理在跑
func (w *ExpiryWorker) Run(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		return fmt.Errorf("expiry interval must be positive, got %s", w.cfg.Interval)
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(w.cfg.Location))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(w.cfg.Interval),
		gocron.NewTask(func() {
			_, _, _ = w.RunOnce(ctx)
		}),
		gocron.WithName("booking-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule sweeper: %w", err)
	}

	log := logger.WithComponent("sweeper")
	log.Info("sweeper started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("stale_after", w.cfg.StaleAfter))
	s.Start()

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		log.Warn("sweeper shutdown", zap.Error(err))
	}
	log.Info("sweeper stopped")
	return nil
}
