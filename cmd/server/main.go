package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/config"
	"github.com/yukikurage/checkin-bot/internal/constants"
	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/dedupe"
	"github.com/yukikurage/checkin-bot/internal/handlers"
	"github.com/yukikurage/checkin-bot/internal/logging"
	"github.com/yukikurage/checkin-bot/internal/middleware"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"github.com/yukikurage/checkin-bot/internal/services"
	"github.com/yukikurage/checkin-bot/internal/slack"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := repository.NewStore(db)
	notifier := slack.NewClient(cfg.SlackAPIBaseURL, cfg.SlackBotToken, cfg.NotifyTimeout, cfg.SlackStubMode)
	defaults := services.UserDefaults{
		CadenceDays: cfg.DefaultCadenceDays,
		Timezone:    cfg.DefaultTimezone,
	}

	// Initialize services
	identityService := services.NewIdentityService(store.Users(), defaults)
	updateService := services.NewUpdateService(store)
	rosterService := services.NewRosterService(store.Users(), defaults)
	schedulerService := services.NewSchedulerService(store, notifier, services.SchedulerOptions{
		DispatchTimeout:    cfg.NotifyTimeout,
		Concurrency:        cfg.SchedulerConcurrency,
		DefaultCadenceDays: cfg.DefaultCadenceDays,
	})

	gatewayOpts := services.GatewayOptions{
		AckReplies: cfg.AckReplies,
		AckTimeout: cfg.NotifyTimeout,
	}
	redisClient := connectRedis(cfg)
	if redisClient != nil {
		gatewayOpts.Cache = dedupe.NewRedisCache(redisClient, constants.DeliveryKeyPrefix, cfg.DeliveryTTL)
		defer redisClient.Close()
	}
	gateway := services.NewGateway(identityService, updateService, notifier, gatewayOpts)

	// Initialize handlers
	eventsHandler := handlers.NewEventsHandler(gateway)
	schedulerHandler := handlers.NewSchedulerHandler(schedulerService)
	userHandler := handlers.NewUserHandler(rosterService, updateService)

	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Check-in bot is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Platform callbacks
	r.GET("/slack/events", eventsHandler.Ping)
	r.POST("/slack/events", eventsHandler.Receive)

	// API routes
	api := r.Group("/api")
	{
		// Scheduler trigger (cron)
		api.POST("/scheduler/run",
			middleware.RequireSharedSecret(constants.HeaderCronSecret, cfg.CronSecret),
			schedulerHandler.RunDueCycle)

		// Roster administration
		users := api.Group("/users")
		users.Use(middleware.RequireSharedSecret(constants.HeaderAdminToken, cfg.AdminToken))
		{
			users.GET("", userHandler.ListUsers)
			users.POST("", userHandler.UpsertUser)
			users.GET("/:id", userHandler.GetUser)
			users.PATCH("/:id/active", userHandler.SetActive)
			users.GET("/:id/updates", userHandler.ListUpdates)
			users.GET("/:id/updates/latest", userHandler.LatestUpdate)
			users.POST("/:id/chase", schedulerHandler.ChaseUser)
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	gateway.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// connectRedis returns nil when no Redis is configured or it is unreachable;
// the gateway then relies on the database alone.
func connectRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, delivery cache disabled")
		_ = client.Close()
		return nil
	}

	log.WithField("addr", cfg.RedisAddr).Info("delivery cache connected")
	return client
}
