package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/cache"
	"github.com/tropicaldog17/networth/internal/config"
	"github.com/tropicaldog17/networth/internal/db"
	"github.com/tropicaldog17/networth/internal/handlers"
	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
	"github.com/tropicaldog17/networth/internal/scheduler"
	"github.com/tropicaldog17/networth/internal/services"
)

func main() {
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Database connection
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connection established", zap.String("driver", cfg.Database.Driver))

	// Quote cache: Redis when configured, in-process otherwise
	local := cache.NewMemoryStore()
	var shared cache.Store
	if cfg.RedisURL != "" {
		client, err := cache.DialRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, using in-process quote cache", zap.Error(err))
		} else {
			redisStore := cache.NewRedisStore(client)
			defer redisStore.Close()
			shared = redisStore
		}
	}
	quoteCache := cache.NewQuoteCache(shared, local, cfg.PriceStaleTTL, log)

	// Providers
	yahoo := services.NewYahooPriceProvider()
	priceManager := services.NewPriceManager(map[models.AssetClass]services.PriceProvider{
		models.AssetClassCrypto:  services.NewCoinGeckoPriceProvider(cfg.CoinGeckoAPIURL, cfg.CoinGeckoAPIKey),
		models.AssetClassUSStock: yahoo,
		models.AssetClassTWStock: services.NewTWSEPriceProvider(cfg.TWSEAPIURL, yahoo),
	}, quoteCache, services.PriceManagerConfig{
		CacheTTL:           cfg.PriceCacheTTL,
		BatchDelay:         cfg.PriceBatchDelay,
		FetchTimeout:       cfg.PriceFetchTimeout,
		SettlementCurrency: cfg.SettlementCurrency,
	}, log)
	defer priceManager.Close()

	var directFX services.FXProvider
	if cfg.FXAPIURL != "" {
		directFX = services.NewHTTPFXProvider(cfg.FXAPIURL)
	}
	fx := services.NewExchangeRateService(priceManager, directFX, services.FXConfig{
		SettlementCurrency: cfg.SettlementCurrency,
		Symbol:             cfg.FXSymbol,
		FallbackRate:       cfg.FXFallbackRate,
	}, log)

	// Repositories and services
	portfolioRepo := repositories.NewPortfolioRepository(database)
	transactionRepo := repositories.NewTransactionRepository(database)
	positionRepo := repositories.NewPositionRepository(database)
	snapshotRepo := repositories.NewSnapshotRepository(database)

	ledger := services.NewLedgerService(portfolioRepo, transactionRepo, positionRepo, snapshotRepo, log)
	portfolios := services.NewPortfolioService(portfolioRepo, positionRepo, priceManager, fx, log)
	history := services.NewHistoryService(portfolios, transactionRepo, snapshotRepo, priceManager, fx, log)

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		jobs = scheduler.New(log)
		mustAdd := func(schedule string, job scheduler.Job) {
			if err := jobs.AddJob(schedule, job); err != nil {
				log.Fatal("Failed to register job", zap.Error(err))
			}
		}
		mustAdd(cfg.PriceRefreshSchedule, scheduler.NewPriceRefreshJob(portfolios, priceManager, log))
		mustAdd(cfg.SnapshotSchedule, scheduler.NewSnapshotJob(portfolios, history, log))
		mustAdd("@every 10m", scheduler.NewCacheSweepJob(local, log))
		jobs.Start()
	}

	router := handlers.NewRouter(handlers.Services{
		Prices:     priceManager,
		FX:         fx,
		Ledger:     ledger,
		Portfolios: portfolios,
		History:    history,
		Health:     database.Health,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down")

	if jobs != nil {
		jobs.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
