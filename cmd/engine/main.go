package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/api"
	"github.com/tradeclash/contest-engine/internal/api/handlers"
	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/contest"
	"github.com/tradeclash/contest-engine/internal/database"
	"github.com/tradeclash/contest-engine/internal/logging"
	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/monitor"
	"github.com/tradeclash/contest-engine/internal/notify"
	"github.com/tradeclash/contest-engine/internal/payment"
	"github.com/tradeclash/contest-engine/internal/pricefeed"
	"github.com/tradeclash/contest-engine/internal/scheduler"
	"github.com/tradeclash/contest-engine/internal/settlement"
	"github.com/tradeclash/contest-engine/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	calendar, err := market.NewCalendar(cfg.Calendar)
	if err != nil {
		logger.WithError(err).Fatal("Invalid trading calendar configuration")
	}
	logger.WithField("calendar", calendar.String()).Info("Trading calendar loaded")

	// Optional durable mirror for the in-memory registry.
	var store contest.Store
	var repo *database.ContestRepository
	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()
		repo = database.NewContestRepository(db.Pool)
		store = repo
	}

	registry := contest.NewRegistry(logger, store)
	engine := contest.NewStatusEngine(calendar)

	if repo != nil {
		if err := rehydrate(ctx, registry, repo, logger); err != nil {
			logger.WithError(err).Fatal("Failed to rehydrate contests from database")
		}
	}

	// Valuation cache is optional; without Redis every valuation hits
	// the price service directly.
	var valueCache *pricefeed.RedisValueCache
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		valueCache = pricefeed.NewRedisValueCache(redisClient.Client, 5*time.Minute)
	}

	priceClient := pricefeed.NewClient(&cfg.PriceFeed)
	prices := pricefeed.NewService(priceClient, valueCache, logger)

	gateway := payment.NewHTTPGateway(&cfg.Payment)
	enrollment := contest.NewEnrollment(registry, engine, gateway, nil, logger)

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telegram notifier")
	}

	var publisher settlement.Publisher = settlement.NewLoggingPublisher(logger)
	if notifier.Enabled() {
		publisher = notifier
	}

	refreshTimeout := 10 * time.Second
	if cfg.PriceFeed.RefreshTimeout != "" {
		refreshTimeout, _ = time.ParseDuration(cfg.PriceFeed.RefreshTimeout)
	}
	coordinator := settlement.NewCoordinator(registry, engine, prices, prices, publisher, nil, refreshTimeout, logger)

	factory, err := contest.NewFactory(calendar, cfg.Contests, cfg.Scheduler)
	if err != nil {
		logger.WithError(err).Fatal("Invalid contest template configuration")
	}

	sched := scheduler.New(calendar, logger)
	actions := scheduler.NewActionSet(registry, factory, coordinator, prices, notifier, logger)
	if err := actions.RegisterAll(sched, cfg.Scheduler); err != nil {
		logger.WithError(err).Fatal("Failed to register scheduler triggers")
	}
	if err := sched.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}
	defer sched.Stop()

	var resourceMonitor *monitor.Monitor
	if cfg.Monitor.Enabled {
		interval, _ := time.ParseDuration(cfg.Monitor.Interval)
		resourceMonitor = monitor.New(interval, logger)
		resourceMonitor.Start(ctx)
		defer resourceMonitor.Stop()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	health := handlers.NewHealthHandler()
	health.Register("price_feed", prices)
	if resourceMonitor != nil {
		health.RegisterStats(resourceMonitor)
	}
	contestHandler := handlers.NewContestHandler(registry, engine, enrollment, coordinator)
	api.SetupRoutes(router, health, contestHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Engine exited")
}

// rehydrate reloads open contests and their participants so a restart
// resumes the lifecycle exactly where the previous process left it.
func rehydrate(ctx context.Context, registry *contest.Registry, repo *database.ContestRepository, logger *logrus.Logger) error {
	defs, err := repo.LoadOpenContests(ctx)
	if err != nil {
		return err
	}
	for i := range defs {
		participants, err := repo.LoadParticipants(ctx, defs[i].ID)
		if err != nil {
			return err
		}
		if err := registry.Restore(&defs[i], participants); err != nil {
			logger.WithError(err).WithField("contest_id", defs[i].ID).Warn("Skipping stored contest")
			continue
		}
	}
	logger.WithField("contests", len(defs)).Info("Rehydrated open contests")
	return nil
}
