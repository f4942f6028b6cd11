package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/slotwise/slotwise-api/api/swagger"
	"github.com/slotwise/slotwise-api/internal/handler"
	"github.com/slotwise/slotwise-api/internal/middleware"
	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/repository"
	"github.com/slotwise/slotwise-api/internal/service"
	"github.com/slotwise/slotwise-api/pkg/cache"
	"github.com/slotwise/slotwise-api/pkg/config"
	"github.com/slotwise/slotwise-api/pkg/database"
	"github.com/slotwise/slotwise-api/pkg/logger"
	corsmiddleware "github.com/slotwise/slotwise-api/pkg/middleware/cors"
	reqidmiddleware "github.com/slotwise/slotwise-api/pkg/middleware/requestid"
	"github.com/slotwise/slotwise-api/pkg/payment"
)

// @title SlotWise API
// @version 0.1.0
// @description Appointment scheduling and booking service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, analytics caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories.
	providerRepo := repository.NewProviderRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	authSvc := service.NewAuthService(cfg.JWT)
	scheduleSvc := service.NewScheduleService(providerRepo, slotRepo, cacheRepo, metricsSvc, validate, logr,
		cfg.Scheduling.HorizonWeeks, cfg.Scheduling.SlotDuration)
	bookingSvc := service.NewBookingService(bookingRepo, slotRepo, cacheRepo, metricsSvc, logr, cfg.Bookings.HoldTTL)
	checkoutSvc := service.NewCheckoutService(bookingRepo, slotRepo, providerRepo,
		payment.NewStripeClient(cfg.Payments), cacheRepo, metricsSvc, logr, cfg.Payments, cfg.Bookings.HoldTTL)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, providerRepo, cacheRepo, logr, cfg.Analytics)

	// Handlers.
	availabilityHandler := handler.NewAvailabilityHandler(scheduleSvc)
	slotHandler := handler.NewSlotHandler(scheduleSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc, cfg.Payments.WebhookSecret, logr)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/slots", slotHandler.List)
		api.POST("/payments/webhook", checkoutHandler.Webhook)

		authed := api.Group("", middleware.JWT(authSvc))
		{
			provider := authed.Group("", middleware.RequireRoles(models.RoleProvider))
			{
				provider.GET("/availability", availabilityHandler.Get)
				provider.PUT("/availability", availabilityHandler.Update)
				provider.POST("/slots", slotHandler.Create)
				provider.GET("/analytics", analyticsHandler.Summary)
				provider.GET("/analytics/export", analyticsHandler.Export)
			}

			consumer := authed.Group("", middleware.RequireRoles(models.RoleConsumer))
			{
				consumer.POST("/bookings", bookingHandler.Create)
				consumer.GET("/bookings", bookingHandler.List)
				consumer.DELETE("/bookings/:id", bookingHandler.Cancel)
				consumer.POST("/checkout/:slotId", checkoutHandler.Initiate)
			}
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewHoldSweeper(bookingSvc, cfg.Bookings.SweepInterval, cfg.Bookings.SweepWorkers, logr)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
