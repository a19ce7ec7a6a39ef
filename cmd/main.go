package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calderhq/parley/internal/cache"
	"github.com/calderhq/parley/internal/config"
	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/handler"
	"github.com/calderhq/parley/internal/hub"
	"github.com/calderhq/parley/internal/presence"
	"github.com/calderhq/parley/internal/repository"
	"github.com/calderhq/parley/internal/service"
	"github.com/calderhq/parley/pkg/database"
	"github.com/calderhq/parley/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := log.L()
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting parley")

	// Message store.
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.Message{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	repo := repository.NewGormMessageRepository(db)

	// Optional redis-backed stats cache.
	var statsCache cache.StatsCache
	if cfg.Redis.Enabled {
		statsCache, err = cache.NewRedisStatsCache(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer statsCache.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("stats cache enabled")
	}

	historySvc := service.NewHistoryService(repo, statsCache, cfg.Redis.StatsTTL)

	// Hub and presence tracker.
	wsHub := hub.NewHub(cfg.WebSocket, cfg.Rooms.SweepInterval)
	go wsHub.Run()
	defer wsHub.Close()

	tracker := presence.NewTracker(cfg.Presence.TypingTTL, cfg.Presence.SweepInterval)

	chatSvc := service.NewChatService(wsHub, tracker, historySvc, repo, cfg.History.Limit)
	tracker.OnExpire(chatSvc.NotifyTypingExpired)
	go tracker.Run()
	defer tracker.Stop()

	// Retention sweep.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Retention.Enabled {
		sweeper := service.NewRetentionSweeper(repo, cfg.Retention.MaxAge, cfg.Retention.SweepInterval)
		go sweeper.Run(ctx)
	}

	// HTTP + websocket routes.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(logger), gin.Recovery())

	handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(historySvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("stopped")
}
