package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetrix/database"
	"meetrix/internal/config"
	"meetrix/internal/logger"
	httpapi "meetrix/internal/microservices/http-api"
	"meetrix/internal/microservices/http-api/handler"
	"meetrix/internal/microservices/http-api/middleware"
	"meetrix/internal/microservices/http-api/repository"
	"meetrix/internal/microservices/http-api/service"
	"meetrix/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis is optional: without it the unread counter always recounts and the relay stays local
	rdb := connectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	if cfg.UsesRedisRelay() && rdb == nil {
		return errors.New("REALTIME_RELAY=redis requires a reachable REDIS_URL")
	}

	hub := websocket.NewHub(logger)
	var publisher websocket.Publisher = hub
	var relay *websocket.RedisRelay
	if cfg.UsesRedisRelay() {
		relay = websocket.NewRedisRelay(rdb, hub, logger)
		publisher = relay
	}

	var counter service.UnreadCounter = service.NoopUnreadCounter{}
	if rdb != nil {
		counter = service.NewRedisUnreadCounter(rdb, time.Duration(cfg.CacheTTL)*time.Second)
	}

	userRepo := repository.NewUserRepository(db.Gorm)
	refreshRepo := repository.NewRefreshTokenRepository(db.Gorm)
	notificationRepo := repository.NewNotificationRepository(db.Gorm)

	authService := service.NewAuthService(userRepo, refreshRepo, cfg)
	notificationService := service.NewNotificationService(notificationRepo, counter, publisher, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := httpapi.NewHTTPHandler(httpapi.Deps{
		AuthService:         authService,
		AuthHandler:         handler.NewAuthHandler(authService, cfg.AccessTokenTTL),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		CableHandler: websocket.NewHandler(
			hub,
			websocket.NewAuthenticator(authService, userRepo, logger),
			notificationService,
			cfg.WSAllowedOrigins,
			logger,
		),
		Hub:         hub,
		RateLimiter: limiter,
		Database:    db,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() { _ = hub.RunWithContext(ctx) }()
	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay_stopped_unexpectedly", "error", err.Error())
			}
		}()
	}
	go limiter.RunSweeper(ctx, time.Minute)
	go cleanupRefreshTokens(ctx, refreshRepo, logger)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("http_server_starting",
			"addr", srv.Addr,
			"relay", cfg.RealtimeRelay,
			"redis", rdb != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server_stopped_gracefully")
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis_url_invalid", "error", err.Error())
		return nil
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis_unavailable", "addr", opts.Addr, "error", err.Error())
		_ = client.Close()
		return nil
	}
	logger.Info("redis_connected", "addr", opts.Addr)
	return client
}

func cleanupRefreshTokens(ctx context.Context, repo repository.RefreshTokenRepository, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.Purge(ctx, time.Now())
			if err != nil {
				logger.Warn("refresh_token_cleanup_failed", "error", err.Error())
				continue
			}
			logger.Debug("refresh_tokens_purged", "count", removed)
		}
	}
}
