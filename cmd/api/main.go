package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-escrow-api/internal/config"
	"market-escrow-api/internal/handler"
	"market-escrow-api/internal/middleware"
	"market-escrow-api/internal/notify"
	"market-escrow-api/internal/repository"
	"market-escrow-api/internal/router"
	"market-escrow-api/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting market escrow API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize market repository based on config
	var marketRepo repository.MarketRepository
	switch cfg.MarketDB.Type {
	case "mysql":
		mysqlRepo, err := repository.NewMySQLMarketRepository(cfg.MarketDB.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		marketRepo = mysqlRepo
		log.Println("MySQL market repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteMarketRepository(cfg.MarketDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		marketRepo = sqliteRepo
		log.Println("SQLite market repository initialized")
	}
	defer marketRepo.Close()

	// Initialize Redis client for admin sessions (optional)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddress(),
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed, admin sessions disabled: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	// Outbound boundary: webhook relay if configured, log-only otherwise
	var notifier notify.Notifier
	var deliverer notify.FileDeliverer
	if cfg.Webhook.URL != "" {
		wh := notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout)
		notifier, deliverer = wh, wh
		log.Printf("Webhook notifier initialized: %s", cfg.Webhook.URL)
	} else {
		ln := notify.NewLogNotifier()
		notifier, deliverer = ln, ln
		log.Println("No WEBHOOK_URL set, using log notifier")
	}

	// Initialize services
	catalogService := service.NewCatalogService(marketRepo)
	inventoryService := service.NewInventoryService(marketRepo, cfg.Storage.Dir)
	orderService := service.NewOrderService(marketRepo, deliverer, notifier, cfg.App.AdminIDList())
	ledgerService := service.NewLedgerService(marketRepo)

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Escrow sweeper
	sweeper := service.NewEscrowSweeper(marketRepo, notifier, service.SweeperConfig{
		Interval: cfg.Escrow.SweepInterval,
	})
	sweeper.Start()

	// Initialize handlers
	healthHandler := handler.New()
	userHandler := handler.NewUserHandler(inventoryService, orderService, ledgerService, catalogService)
	adminHandler := handler.NewAdminHandler(catalogService, orderService, marketRepo, cfg.MarketDB.Type)

	var authHandler *handler.AuthHandler
	if tokenService != nil && cfg.App.LoginKey != "" {
		authHandler = handler.NewAuthHandler(tokenService, cfg.App.LoginKey)
	}

	adminAuth := middleware.NewAdminAuth(middleware.AdminAuthConfig{
		LoginKey:     cfg.App.LoginKey,
		TokenService: tokenService,
	})

	// Create router
	r := router.New(router.Config{
		Handler:      healthHandler,
		UserHandler:  userHandler,
		AdminHandler: adminHandler,
		AuthHandler:  authHandler,
		AdminAuth:    adminAuth,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop the sweeper before closing the store
	sweeper.Stop()

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
