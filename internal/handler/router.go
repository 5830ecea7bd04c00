package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/middleware"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/service"
	"github.com/jinhwansong/konnect-back-sub000/pkg/logger"
	corsmiddleware "github.com/jinhwansong/konnect-back-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/jinhwansong/konnect-back-sub000/pkg/middleware/requestid"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// RouterConfig carries everything the HTTP surface is assembled from.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Auth           tokenValidator

	Reservations *ReservationHandler
	Availability *AvailabilityHandler
	Payments     *PaymentHandler
	Exports      *ExportHandler
	System       *MetricsHandler
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	r.GET("/health", cfg.System.Health)
	r.GET("/ready", cfg.System.Ready)
	r.GET("/metrics", cfg.System.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/sessions/:id/available-times", cfg.Reservations.AvailableTimes)
	api.GET("/mentors/:id/availability", cfg.Availability.List)
	api.GET("/rooms/verify", cfg.Reservations.VerifyRoomPass)

	authed := api.Group("")
	authed.Use(middleware.JWT(cfg.Auth))

	reservations := authed.Group("/reservations")
	reservations.POST("", middleware.RequireRoles(models.RoleMentee, models.RoleAdmin), cfg.Reservations.Create)
	reservations.GET("/me", cfg.Reservations.ListMine)
	reservations.GET("/:id", cfg.Reservations.Get)
	reservations.POST("/:id/cancel", cfg.Reservations.Cancel)
	reservations.POST("/:id/reject", middleware.RequireRoles(models.RoleMentor, models.RoleAdmin), cfg.Reservations.Reject)
	reservations.GET("/:id/review-eligibility", cfg.Reservations.ReviewEligibility)
	reservations.GET("/:id/room", cfg.Reservations.Room)
	reservations.POST("/:id/room/pass", cfg.Reservations.RoomPass)

	payments := authed.Group("/payments")
	payments.POST("/confirm", cfg.Payments.Confirm)
	payments.POST("/refund", cfg.Payments.Refund)

	availability := authed.Group("/availability", middleware.RequireRoles(models.RoleMentor, models.RoleAdmin))
	availability.POST("", cfg.Availability.Create)
	availability.PUT("/:id", cfg.Availability.Update)
	availability.DELETE("/:id", cfg.Availability.Delete)

	exports := authed.Group("/exports", middleware.RequireRoles(models.RoleMentor, models.RoleAdmin))
	exports.GET("/schedule", cfg.Exports.MentorSchedule)

	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics", cfg.System.Snapshot)

	return r
}
