package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-station-sync/internal/api/http"
	"github.com/i474232898/weather-station-sync/internal/config"
	"github.com/i474232898/weather-station-sync/internal/events"
	"github.com/i474232898/weather-station-sync/internal/logger"
	"github.com/i474232898/weather-station-sync/internal/mapview"
	"github.com/i474232898/weather-station-sync/internal/scheduler"
	"github.com/i474232898/weather-station-sync/internal/session"
	"github.com/i474232898/weather-station-sync/internal/store"
	"github.com/i474232898/weather-station-sync/internal/weather"
	"github.com/i474232898/weather-station-sync/internal/weather/providers"
)

func main() {
	cfg, notes, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("failed to load config", "err", err)
	}
	l := logger.New(cfg.LogLevel)
	for _, n := range notes {
		l.Info(n)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			AttachStacktrace: true,
		}); err != nil {
			l.Warn("sentry disabled", "err", err)
		} else {
			logger.SetSentryCaptureException(func(err error) interface{} {
				return sentry.CaptureException(err)
			})
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	frost := providers.NewFrostProvider(httpClient, providers.FrostOptions{
		BaseURL:         cfg.FrostBaseURL,
		ClientID:        cfg.FrostClientID,
		UserAgent:       cfg.UserAgent,
		NearestMaxCount: cfg.NearestMaxCount,
		DefaultElements: cfg.DefaultElements,
	}, l)
	if cfg.FrostClientID == "" {
		l.Warn("FROST_CLIENT_ID is empty; station and observation requests will be rejected")
	}

	// MET first; Open-Meteo keeps the popup alive when MET is down.
	forecast := weather.NewFallbackForecast(l,
		providers.NewMetNoProvider(httpClient, cfg.ForecastBaseURL, cfg.UserAgent),
		providers.NewOpenMeteoProvider(httpClient, ""),
	)

	var addresses weather.AddressResolver
	if cfg.GeocoderAPIKey != "" {
		addresses = providers.NewGeocoderProvider(cfg.GeocoderAPIKey)
	}

	hub := events.NewBroadcaster(100, l)
	memMap := mapview.NewMemoryMap()
	memStore := store.NewMemoryStore()

	sess := session.New(session.Deps{
		Stations:     frost,
		Observations: frost,
		Forecasts:    forecast,
		Addresses:    addresses,
		Store:        memStore,
		Map:          memMap,
		Events:       hub,
		Bounds:       cfg.Bounds,
	}, session.Options{
		Window:     cfg.Window,
		TimeFrame:  weather.Monthly,
		DateLabels: cfg.DateLabels,
		RampSteps:  mapview.DefaultRampSteps,
	}, l)
	defer sess.Close()

	// Clicks that reach the map select a new location. They arrive through
	// POST /api/v1/map/click and through station marker clicks, which have no
	// handler of their own and fall through to the map.
	memMap.OnMapClick(func(at weather.Coordinates) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		defer cancel()
		if err := sess.SelectLocation(ctx, at); err != nil {
			logger.Error(l, err, "map click selection failed", "at", at)
		}
	})

	sched := scheduler.New(sess, cfg.RefreshInterval, l)
	if err := sched.Start(); err != nil {
		l.Fatal("failed to start scheduler", "err", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-station-sync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler(l),
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, sess, hub, l)

	go func() {
		l.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			l.Error("fiber server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		l.Error("error during shutdown", "err", err)
	}
}
