package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/handler"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
	"github.com/jinhwansong/konnect-back-sub000/internal/service"
	"github.com/jinhwansong/konnect-back-sub000/pkg/cache"
	"github.com/jinhwansong/konnect-back-sub000/pkg/config"
	"github.com/jinhwansong/konnect-back-sub000/pkg/database"
	"github.com/jinhwansong/konnect-back-sub000/pkg/events"
	"github.com/jinhwansong/konnect-back-sub000/pkg/payment"
	"github.com/jinhwansong/konnect-back-sub000/pkg/signing"
)

// App holds the assembled dependency graph shared by the API server and the
// operator CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Metrics      *service.MetricsService
	Auth         *service.AuthService
	Availability *service.AvailabilityService
	Slots        *service.SlotService
	Reservations *service.ReservationService
	Payments     *service.PaymentService
	Exports      *service.ExportService
	Rooms        *service.RoomService
	Sweeper      *service.SweeperService
	Scheduler    *service.Scheduler
	Events       *service.EventDispatcher

	publisher events.Publisher
}

// New opens the stores and wires every service. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.DB = db

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, db.DB, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb

	if cfg.Events.Enabled {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
	} else {
		a.publisher = events.NewMemoryPublisher()
	}

	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg, logger := a.Config, a.Logger
	loc := cfg.Reservation.Location()
	validate := validator.New()

	a.Metrics = service.NewMetricsService()

	reservationRepo := repository.NewReservationRepository(a.DB)
	paymentRepo := repository.NewPaymentRepository(a.DB)
	availabilityRepo := repository.NewAvailabilityRepository(a.DB)
	sessionRepo := repository.NewSessionRepository(a.DB)
	userRepo := repository.NewUserRepository(a.DB)
	cacheRepo := repository.NewCacheRepository(a.Redis, logger)
	roomRepo := repository.NewRoomRepository(a.Redis, cfg.Rooms.TTL)

	cacheSvc := service.NewCacheService(cacheRepo, a.Metrics, cfg.Availability.CacheTTL, logger, cfg.Availability.CacheEnabled)

	a.Events = service.NewEventDispatcher(service.EventDispatcherConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, a.Metrics, logger, service.NewPublisherSink(a.publisher), service.NewLogSink(logger))

	a.Auth = service.NewAuthService(logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	a.Availability = service.NewAvailabilityService(availabilityRepo, cacheSvc, cfg.Availability.CacheTTL, validate, logger)
	a.Slots = service.NewSlotService(sessionRepo, a.Availability, reservationRepo, logger)
	a.Reservations = service.NewReservationService(reservationRepo, sessionRepo, userRepo, a.Events, a.Metrics, validate, logger,
		service.ReservationConfig{HoldDuration: cfg.Reservation.HoldDuration, Location: loc})
	a.Payments = service.NewPaymentService(reservationRepo, paymentRepo, payment.NewClient(cfg.Payment), a.DB, a.Events, a.Metrics, validate, logger, nil)

	a.Exports = service.NewExportService(reservationRepo, validate, logger)

	passes := signing.NewSigner(cfg.Rooms.PassSecret, cfg.Rooms.PassTTL)
	a.Rooms = service.NewRoomService(roomRepo, reservationRepo, a.Reservations, passes, loc, logger)
	a.Events.Register(a.Rooms)

	a.Sweeper = service.NewSweeperService(reservationRepo, a.Events, a.Metrics, logger, loc, nil)
	a.Scheduler = service.NewScheduler(a.Sweeper, service.SchedulerConfig{
		ExpireInterval:   cfg.Sweeper.ExpireInterval,
		StartInterval:    cfg.Sweeper.StartInterval,
		CompleteInterval: cfg.Sweeper.CompleteInterval,
		Timeout:          cfg.Sweeper.Timeout,
		RunOnStart:       cfg.Sweeper.RunOnStart,
	}, logger)
}

// Router builds the HTTP surface over the wired services.
func (a *App) Router() *gin.Engine {
	pingRedis := func(ctx context.Context) error {
		return a.Redis.Ping(ctx).Err()
	}
	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(a.DB.PingContext),
		"redis":    handler.PingFunc(pingRedis),
	}
	return handler.NewRouter(handler.RouterConfig{
		APIPrefix:      a.Config.APIPrefix,
		AllowedOrigins: a.Config.CORS.AllowedOrigins,
		EnableDocs:     a.Config.Env != config.EnvProduction,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
		Auth:           a.Auth,
		Reservations:   handler.NewReservationHandler(a.Slots, a.Reservations, a.Rooms),
		Availability:   handler.NewAvailabilityHandler(a.Availability),
		Payments:       handler.NewPaymentHandler(a.Payments),
		Exports:        handler.NewExportHandler(a.Exports),
		System:         handler.NewMetricsHandler(a.Metrics, checks),
	})
}

// StartBackground launches the event workers and, when enabled, the sweeps.
func (a *App) StartBackground(ctx context.Context) {
	a.Events.Start(ctx)
	if a.Config.Sweeper.Enabled {
		a.Scheduler.Start(ctx)
	}
}

// StopBackground stops the sweeps before the dispatcher.
func (a *App) StopBackground() {
	if a.Config.Sweeper.Enabled {
		a.Scheduler.Stop()
	}
	a.Events.Stop()
}

// Close releases connections. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("close event publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 15 * time.Second
