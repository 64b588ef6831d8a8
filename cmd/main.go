package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presale-referral/internal/auth"
	"presale-referral/internal/blockchain"
	"presale-referral/internal/cache"
	"presale-referral/internal/config"
	"presale-referral/internal/database"
	"presale-referral/internal/handlers"
	"presale-referral/internal/jobs"
	"presale-referral/internal/logger"
	"presale-referral/internal/metrics"
	"presale-referral/internal/middleware"
	"presale-referral/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret, cfg.App.JWTTTL)

	// Connect to database
	db, err := database.Connect(cfg.Database, cfg.GetDSN(), zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(db, zlog); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	verifier, err := blockchain.NewVerifier(cfg.Chain, zlog)
	if err != nil {
		zlog.Fatal("failed to create chain verifier", zap.Error(err))
	}
	confirmVerifier := verifier
	if !cfg.Chain.VerifyOnConfirm {
		confirmVerifier = nil
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	redisClient, err := cache.NewClient(cfg.Redis, zlog)
	if err != nil {
		// Rate limiting fails open without redis
		zlog.Warn("redis unavailable, write rate limiting disabled", zap.Error(err))
		redisClient = nil
	}
	defer func() { _ = redisClient.Close() }()

	// Initialize services
	referralService := services.NewReferralService(db, zlog, m)
	chainService := services.NewChainService(db)
	calculator := services.NewRewardCalculator(cfg.Rewards)
	ledgerService := services.NewLedgerService(db, verifier, zlog, m)
	purchaseService := services.NewPurchaseService(db, referralService, chainService, calculator, ledgerService, confirmVerifier, zlog, m)
	dashboardService := services.NewDashboardService(db, referralService, ledgerService, zlog)
	authService := services.NewAuthService(db, referralService, cfg.App.NonceTTL, zlog)
	operators := auth.NewOperators(cfg.App.OperatorWallets)

	// Background jobs
	scheduler, err := jobs.NewScheduler(zlog)
	if err != nil {
		zlog.Fatal("failed to create scheduler", zap.Error(err))
	}
	confirmJob := jobs.NewConfirmationJob(purchaseService, cfg.Chain.ConfirmGracePeriod, zlog)
	if err := scheduler.Every("purchase-confirmation", cfg.Chain.ConfirmPollInterval, confirmJob.Run); err != nil {
		zlog.Fatal("failed to schedule confirmation job", zap.Error(err))
	}
	reconcileJob := jobs.NewClaimReconcileJob(ledgerService, zlog)
	if err := scheduler.Every("claim-reconcile", cfg.Chain.ClaimReconcileInterval, reconcileJob.Run); err != nil {
		zlog.Fatal("failed to schedule claim reconcile job", zap.Error(err))
	}
	nonceJob := jobs.NewNonceCleanupJob(authService, zlog)
	if err := scheduler.Every("auth-nonce-cleanup", time.Hour, nonceJob.Run); err != nil {
		zlog.Fatal("failed to schedule nonce cleanup job", zap.Error(err))
	}
	scheduler.Start()

	// Set up Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(zlog))
	router.Use(middleware.Metrics(m))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}
		c.JSON(status, gin.H{
			"status":   dbStatus,
			"database": dbStatus,
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	routes := &handlers.Routes{
		Auth:       handlers.NewAuthHandler(authService),
		Referral:   handlers.NewReferralHandler(referralService, ledgerService, chainService, dashboardService),
		Purchase:   handlers.NewPurchaseHandler(purchaseService, operators),
		Dashboard:  handlers.NewDashboardHandler(dashboardService),
		Operators:  operators,
		WriteLimit: cfg.Redis.WriteLimitPerMin,
		Logger:     zlog,
	}
	if redisClient != nil {
		routes.Limiter = redisClient
	}
	routes.Register(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zlog.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.App.Environment),
			zap.String("chain_network", cfg.Chain.Network),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	if err := scheduler.Stop(); err != nil {
		zlog.Warn("scheduler shutdown failed", zap.Error(err))
	}

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}
