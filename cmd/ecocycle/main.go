package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"ecocycle/internal/cache"
	"ecocycle/internal/config"
	"ecocycle/internal/events"
	"ecocycle/internal/http/handlers"
	applog "ecocycle/internal/log"
	"ecocycle/internal/metrics"
	"ecocycle/internal/repos"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := applog.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		if logger, err = applog.Init(cfg.LogLevel, ""); err != nil {
			log.Fatal(err)
		}
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.Any("config", cfg.Fields()))

	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.SeedDemo {
		if err := repos.SeedDemo(db); err != nil {
			logger.Fatal("seed demo data", zap.Error(err))
		}
	}

	var listings cache.Listings = cache.Nop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.ListingCacheTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			listings = rc
		}
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Warn("kafka unavailable, domain events disabled", zap.Error(err))
		} else {
			defer kp.Close()
			pub = kp
		}
	}

	app := fiber.New(fiber.Config{
		Immutable:    true,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(applog.AccessLog())
	app.Use(metrics.Middleware())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitPerMin,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.limit.hit", nil)
			return fiber.ErrTooManyRequests
		},
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Get("/metrics", metrics.Handler())

	deps := handlers.NewDeps(db, listings, pub, logger)
	deps.Register(app.Group("/api/v1"), cfg)

	app.Use(func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
