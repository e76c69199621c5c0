// Package main is the entry point for the promotions ledger API.
// It wires the stores, the ledger, the expiration sweeper and the HTTP
// server, and runs them until the process receives a termination signal.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promos/internal/config"
	"promos/internal/handlers"
	applogger "promos/internal/logger"
	"promos/internal/metrics"
	"promos/internal/queue"
	"promos/internal/repositories"
	"promos/internal/repositories/cache"
	"promos/internal/routes"
	"promos/internal/services/ledger"
	"promos/internal/services/lots"
	"promos/internal/services/sweeper"
	"promos/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := applogger.New("promos", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.InitDB(cfg.DB, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			log.WithError(err).Warn("failed to close database connection")
		}
	}()

	redisClient := cache.NewRedisClient(cfg.Redis)
	cacheService := cache.NewCacheService(redisClient, cfg.BalanceCacheTTL)
	defer func() {
		if err := cacheService.Close(); err != nil {
			log.WithError(err).Warn("failed to close redis connection")
		}
	}()
	if err := cacheService.HealthCheck(ctx); err != nil {
		log.WithError(err).Warn("redis unavailable at startup")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(sqlDB, cfg.DB.Name),
	)
	collector := metrics.New("promos", registry)

	store := repositories.NewGormStore(db)
	wallets := wallet.NewService(store, cacheService, log)
	lotService := lots.NewService(store, log)
	ledgerService := ledger.NewService(cfg.Ledger, store, wallets, lotService, log, collector)

	expirations := queue.NewRedisQueue(redisClient, cfg.Sweeper.QueueName, cfg.Sweeper.PollTimeout)
	if n, err := expirations.Recover(ctx); err != nil {
		log.WithError(err).Warn("failed to recover in-flight expiration batches")
	} else if n > 0 {
		log.WithField("batches", n).Info("recovered in-flight expiration batches")
	}
	sweep := sweeper.New(cfg.Sweeper, store, ledgerService, lotService, expirations, log, collector)

	app := fiber.New(fiber.Config{
		AppName:               "promos",
		DisableStartupMessage: config.IsProduction(),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD",
		AllowCredentials: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(collector.Middleware())
	app.Use("/admin", limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	routes.SetupRoutes(app, routes.Deps{
		JWTSecret: cfg.JWTSecret,
		Log:       log,
		Wallets:   handlers.NewWalletHandler(ledgerService, wallets, lotService, log),
		Admin:     handlers.NewAdminHandler(sweep, expirations, ledgerService, log).WithPoolStats(cacheService),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": sqlDB.PingContext,
			"redis":    cacheService.HealthCheck,
		}),
		Metrics: collector,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("http server listening")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	if cfg.Sweeper.Enabled {
		g.Go(func() error { return sweep.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}
