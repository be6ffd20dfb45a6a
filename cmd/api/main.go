package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/config"
	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/handlers"
	"contest-miniapp-backend/internal/middleware"
	"contest-miniapp-backend/internal/models"
	"contest-miniapp-backend/internal/services"
)

const eventBuffer = 256

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg)

	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	startingBalance, _ := cfg.StartingBalanceAmount()
	maxTopUp, _ := cfg.MaxTopUpAmount()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := contest.NewLedger(startingBalance, contest.WithWalletLoader(redisService))
	bus := contest.NewEventBus(eventBuffer)

	contestCfg := contest.DefaultConfig()
	contestCfg.Timing = contest.NewClock(cfg.RoundDuration, cfg.CountdownDuration, cfg.SettlementWindow)
	contestCfg.DefaultTier = models.TierID(cfg.DefaultTier)
	contestCfg.TickInterval = cfg.TickInterval

	orch, err := contest.NewOrchestrator(contestCfg, ledger, bus, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create contest orchestrator")
	}

	recovery := orch.Recover(ctx, cfg.DemoFill, redisService, contest.FileSnapshotSource{Path: cfg.SnapshotFile})
	log.Info().
		Str("source", recovery.Source).
		Bool("fallback", recovery.Fallback).
		Int64("contest_id", recovery.Snapshot.ID).
		Msg("contest recovered")

	broadcaster := services.NewBroadcaster(bus)
	wsHub := handlers.NewWebSocketHub(orch, ledger)

	broadcaster.Attach(ctx, "persister", services.NewEventPersister(redisService, orch, ledger, cfg.SnapshotFile))
	broadcaster.Attach(ctx, "websocket", wsHub)

	var natsPublisher *services.NATSPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err = services.NewNATSPublisher(services.DefaultNATSConfig(cfg.NATSURL, cfg.NATSSubjectPrefix))
		if err != nil {
			log.Error().Err(err).Msg("NATS unavailable, events stay local")
		} else {
			broadcaster.Attach(ctx, "nats", natsPublisher)
		}
	}

	if cfg.NotifyWinners && cfg.BotToken != "" {
		bot, err := services.NewTelegramBot(cfg.BotToken)
		if err != nil {
			log.Error().Err(err).Msg("telegram bot unavailable, winner notifications disabled")
		} else {
			broadcaster.Attach(ctx, "notifier", services.NewWinnerNotifier(bot))
		}
	}

	go func() {
		if err := orch.Run(ctx); err != nil {
			log.Error().Err(err).Msg("contest scheduler failed")
		}
	}()

	jwtService := services.NewJWTService(cfg)
	telegramAuth := services.NewTelegramAuth(cfg.BotToken, cfg.InitDataTTL)

	authHandler := handlers.NewAuthHandler(redisService, jwtService, telegramAuth, ledger, cfg.JWTTTL)
	userHandler := handlers.NewUserHandler(redisService, ledger)
	contestHandler := handlers.NewContestHandler(orch, redisService, maxTopUp)
	wsHandler := handlers.NewWebSocketHandler(orch, ledger, wsHub)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		redisStatus := "ok"
		if err := redisService.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			redisStatus = err.Error()
		}
		c.JSON(status, gin.H{
			"status":     http.StatusText(status),
			"redis":      redisStatus,
			"contest_id": orch.Snapshot().ID,
			"draws":      orch.Draws(),
		})
	})

	router.GET("/auth/telegram", authHandler.Authenticate)

	public := router.Group("/api")
	{
		public.GET("/contest/current", contestHandler.GetCurrentContest)
		public.GET("/contest/tiers", contestHandler.GetTiers)
		public.GET("/winners/recent", contestHandler.GetRecentWinners)
		public.GET("/users/:id", userHandler.GetUserStats)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService), middleware.RateLimitMiddleware(redisService, cfg.JoinRateLimit))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.POST("/contest/join", contestHandler.JoinContest)
		protected.POST("/contest/tier", contestHandler.SelectTier)
		protected.POST("/topup", contestHandler.TopUp)

		protected.GET("/ws", wsHandler.HandleWebSocket)
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	cancel()
	broadcaster.Wait()
	if natsPublisher != nil {
		natsPublisher.Close()
	}

	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
