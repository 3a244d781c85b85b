package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/city-forecast/internal/api/http"
	"github.com/i474232898/city-forecast/internal/cache"
	"github.com/i474232898/city-forecast/internal/config"
	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/metrics"
	"github.com/i474232898/city-forecast/internal/scheduler"
	"github.com/i474232898/city-forecast/internal/store"
	"github.com/i474232898/city-forecast/internal/weather"
	"github.com/i474232898/city-forecast/internal/weather/providers"
)

// forecastStore is what main needs from either store implementation.
type forecastStore interface {
	weather.Store
	scheduler.StatsSource
	Close()
}

// @title City Forecast API
// @version 1.0
// @description Tracks locations and serves their 15-minute forecast slots.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l := logger.New(cfg.AppName, cfg.LogLevel)
	defer func() { _ = l.Stop() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	provider := providers.NewOpenMeteoProvider(httpClient, cfg.OpenMeteoBaseURL, l)

	st, err := openStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open store", map[string]any{"err": err.Error()})
	}

	cacheService, err := cache.NewCacheService(ctx, cfg.RedisURL)
	if err != nil {
		// The service runs without a cache rather than refusing to start.
		l.Warning("redis unavailable, caching disabled", map[string]any{"err": err.Error()})
	}

	service := weather.NewService(st, provider, l, weather.WithCache(cacheService, cfg.CurrentCacheTTL))

	m := metrics.New(prometheus.DefaultRegisterer)

	sched := scheduler.New(service, cfg.RefreshInterval, scheduler.BackoffConfig{
		MaxRetries:      cfg.RefreshMaxRetries,
		InitialInterval: cfg.RefreshRetryInitial,
		MaxInterval:     cfg.RefreshRetryMax,
	}, m, l)
	handle, err := sched.Start(ctx)
	if err != nil {
		l.Fatal("failed to start scheduler", map[string]any{"err": err.Error()})
	}

	housekeeper := scheduler.NewHousekeeper(st, cfg.HousekeepingInterval, m, l)
	if err := housekeeper.Start(); err != nil {
		l.Fatal("failed to start housekeeping", map[string]any{"err": err.Error()})
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/manage/health",
		ReadinessEndpoint: "/manage/ready",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   cfg.AppName,
			"scheduler": sched.State().String(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, service, l)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			l.Error(err, map[string]any{"component": "http"})
		}
	}()
	l.Info("service started", map[string]any{"port": cfg.Port})

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		l.Error(err, map[string]any{"component": "http"})
	}
	if err := handle.Stop(shutdownCtx); err != nil {
		l.Error(err, map[string]any{"component": "scheduler"})
	}
	housekeeper.Stop()
	st.Close()
	if err := cacheService.Close(); err != nil {
		l.Error(err, map[string]any{"component": "cache"})
	}
}

// openStore picks postgres when DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.AppConfig, l *logger.Logger) (forecastStore, error) {
	if cfg.DatabaseURL == "" {
		l.Info("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
