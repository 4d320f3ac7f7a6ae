package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/eugenenyathi/weatherapp-sub000/internal/api/http"
	"github.com/eugenenyathi/weatherapp-sub000/internal/config"
	"github.com/eugenenyathi/weatherapp-sub000/internal/jobs"
	"github.com/eugenenyathi/weatherapp-sub000/internal/location"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
	syncsvc "github.com/eugenenyathi/weatherapp-sub000/internal/sync"
	"github.com/eugenenyathi/weatherapp-sub000/internal/weather"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database with schema bootstrap.
	db, err := store.Connect(ctx, cfg.DBPath)
	if err != nil {
		zapLog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repos := store.NewRepositories(db)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	client := weather.NewHTTPClient(httpClient, cfg.WeatherAPIKey, cfg.WeatherBaseURL)

	// Background job scheduler.
	sched := jobs.NewGocronScheduler(zapLog)
	sched.Start()
	defer sched.Stop()

	// Core sync services.
	pipeline := syncsvc.NewPipeline(client, repos, zapLog)
	status := syncsvc.NewStatusTracker(repos, sched, pipeline, cfg.WaitTimeout, cfg.PollInterval, zapLog)
	manager := syncsvc.NewScheduleManager(repos, sched, pipeline, status, cfg.DefaultRefreshMinutes, zapLog)
	refresh := syncsvc.NewRefreshService(repos, manager, cfg.RefreshCooldown, zapLog)
	locations := location.NewService(repos, manager, location.NewGoogleGeocoder(cfg.GeocoderAPIKey), zapLog)

	// Rebuild recurring-job registrations; they do not survive a restart.
	if err := manager.InitializeAll(ctx); err != nil {
		zapLog.Fatal("failed to initialize sync schedules", zap.Error(err))
	}
	if err := manager.RegisterGlobalSweep(cfg.GlobalSweepCron); err != nil {
		zapLog.Fatal("failed to register global sweep", zap.Error(err))
	}

	// Basic app configuration.
	app := fiber.New(fiber.Config{
		AppName:               "weatherapp",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weatherapp",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Services{
		Locations:   locations,
		Schedules:   manager,
		Refresh:     refresh,
		Status:      status,
		Preferences: repos.Preferences,
		Weather:     repos.Weather,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zapLog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zapLog.Error("error during shutdown", zap.Error(err))
	}
}
