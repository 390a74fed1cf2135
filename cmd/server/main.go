package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-gin-cinema-booking/config"
	"go-gin-cinema-booking/internal/cache"
	"go-gin-cinema-booking/internal/catalog"
	"go-gin-cinema-booking/internal/database"
	"go-gin-cinema-booking/internal/handler"
	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/internal/notify"
	"go-gin-cinema-booking/internal/payment"
	"go-gin-cinema-booking/internal/pricing"
	"go-gin-cinema-booking/internal/queue"
	"go-gin-cinema-booking/internal/repository"
	"go-gin-cinema-booking/internal/service"
	"go-gin-cinema-booking/internal/worker"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	logger.SetLevel(cfg.Server.LogLevel)
	defer func() { _ = logger.L.Sync() }()
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.WithComponent("main").Fatal("server exited with error", zap.Error(err))
	}
}

func loadCatalog(path string) (*catalog.StaticCatalog, error) {
	if path == "" {
		return catalog.DemoCatalog(), nil
	}
	return catalog.LoadFile(path)
}

func seedSandbox(ctx context.Context, scheduler service.SchedulerService, location *time.Location) error {
	tomorrow := time.Now().In(location).AddDate(0, 0, 1)
	source, err := scheduler.CreateSandboxShowtime(ctx, service.CreateShowtimeParams{
		MovieID:         "mv-001",
		TheaterID:       "pvr-juhu",
		Hall:            "Hall 1",
		Date:            tomorrow.Format(model.DateLayout),
		StartTime:       "19:30",
		DurationMinutes: 120,
		BasePrice:       200,
	})
	if err != nil {
		return err
	}
	logger.WithComponent("main").Info("sandbox showtime registered",
		zap.String("showtime_id", source.Showtime().ID),
		zap.String("date", source.Showtime().Date))
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	location, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Server.Timezone, err)
	}
	theaters, err := loadCatalog(cfg.Server.CatalogFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	m := metrics.New()

	// 1. 儲存層
	var (
		showtimeRepo repository.ShowtimeRepository
		bookingRepo  repository.BookingRepository
	)
	switch cfg.Server.StoreBackend {
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = database.InitDatabase(&cfg.Database)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		defer pool.Close()
		if cfg.Server.AutoMigrate {
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		showtimeRepo = repository.NewShowtimeRepository(pool)
		bookingRepo = repository.NewBookingRepository(pool)
	case "memory":
		showtimeRepo = repository.NewMemoryShowtimeRepository()
		bookingRepo = repository.NewMemoryBookingRepository()
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Server.StoreBackend)
	}

	var rdb *redis.Client
	if cfg.Server.InventoryBackend == "redis" || cfg.Server.QueueBackend == "redis" {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer rdb.Close()
	}

	// 2. 座位庫存
	var inventory cache.SeatInventory
	switch cfg.Server.InventoryBackend {
	case "redis":
		inventory = cache.NewRedisSeatInventory(rdb)
	case "memory":
		inventory = cache.NewMemorySeatInventory()
	default:
		return fmt.Errorf("unknown inventory backend %q", cfg.Server.InventoryBackend)
	}

	// 3. 通知隊列與出口
	var notifications queue.NotificationQueue
	switch cfg.Server.QueueBackend {
	case "redis":
		hostname, _ := os.Hostname()
		notifications, err = queue.NewRedisStreamNotificationQueue(ctx, rdb, hostname, nil)
		if err != nil {
			return fmt.Errorf("init notification queue: %w", err)
		}
	case "memory":
		notifications = queue.NewMemoryNotificationQueue(cfg.Booking.QueueBuffer)
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Server.QueueBackend)
	}

	var notifier notify.Notifier
	switch cfg.Server.NotifierBackend {
	case "rabbitmq":
		notifier, err = notify.NewRabbitMQNotifier(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return fmt.Errorf("init rabbitmq notifier: %w", err)
		}
	case "log":
		notifier = notify.NewLogNotifier(nil)
	default:
		return fmt.Errorf("unknown notifier backend %q", cfg.Server.NotifierBackend)
	}
	defer notifier.Close()

	// 4. 服務
	scheduler := service.NewSchedulerService(showtimeRepo, bookingRepo, theaters, pricing.DefaultPolicy(), inventory, location)
	ledger := service.NewBookingLedger(bookingRepo, scheduler,
		service.WithCancelCutoff(cfg.Booking.CancelCutoff),
		service.WithMetrics(m),
		service.WithPublisher(notifications),
	)
	coordinator := service.NewReservationCoordinator(ledger, payment.NewSandboxGateway(), notifications)

	restored, err := scheduler.RestoreInventory(ctx)
	if err != nil {
		return fmt.Errorf("restore inventory: %w", err)
	}
	log.Info("inventory restored", zap.Int("showtimes", restored))

	// 示範目錄附帶一場沙盒場次，不寫入資料庫
	if cfg.Server.CatalogFile == "" {
		if err := seedSandbox(ctx, scheduler, location); err != nil {
			return fmt.Errorf("seed sandbox showtime: %w", err)
		}
	}

	// 5. HTTP 與背景工作
	router := handler.NewRouter(scheduler, coordinator, m, handler.RouterConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		WebhookSecret: cfg.Auth.WebhookSecret,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, identity is read from X-User-ID / X-User-Role headers")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.NewNotificationWorker(notifications, notifier, m).Run(gctx)
	})
	g.Go(func() error {
		return worker.NewExpiryWorker(ledger, worker.ExpiryWorkerConfig{
			Interval:   cfg.Booking.ExpiryInterval,
			StaleAfter: cfg.Booking.StaleAfter,
			Location:   location,
		}, m).Run(gctx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
