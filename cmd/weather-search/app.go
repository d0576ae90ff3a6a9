package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/config"
	"github.com/i474232898/weather-search/internal/location"
	"github.com/i474232898/weather-search/internal/store"
	"github.com/i474232898/weather-search/internal/weather"
	"github.com/i474232898/weather-search/internal/weather/providers"
)

// app bundles the service with the resources that outlive it.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	service *weather.Service
	history *store.History
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	// Shared HTTP client for outbound weather calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	queries := providers.NewOpenWeatherService(providers.OpenWeatherConfig{
		APIKey:     cfg.OpenWeatherAPIKey,
		BaseURL:    cfg.OpenWeatherBaseURL,
		Client:     httpClient,
		MaxRetries: cfg.MaxRetries,
		Cache:      store.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheMaxAge),
		Logger:     logger.Named("openweather"),
	})

	history, err := openHistory(ctx, cfg, logger.Named("history"))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	var locator weather.LocationProvider
	if source := fixSource(cfg); source != nil {
		locator = location.NewFeed(source, cfg.LocationPolling, logger.Named("location"))
	} else {
		logger.Info("no location source configured; location searches will be ignored")
	}

	service := weather.NewService(queries, locator, history, weather.Options{
		Logger:        logger.Named("search"),
		OutcomeBuffer: cfg.OutcomeBuffer,
	})

	return &app{cfg: cfg, logger: logger, service: service, history: history}, nil
}

// close stops the service, then the history store it writes to.
func (a *app) close() {
	a.service.Close()
	if err := a.history.Close(); err != nil {
		a.logger.Warn("closing history store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openHistory(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*store.History, error) {
	switch cfg.HistoryDriver {
	case config.DriverPostgres:
		return store.OpenPostgresHistory(ctx, cfg.HistoryDSN, logger)
	default:
		return store.OpenSQLiteHistory(cfg.HistoryDSN, logger)
	}
}

func fixSource(cfg *config.AppConfig) location.FixSource {
	switch {
	case cfg.HasCoordinates():
		return location.StaticSource{Coordinates: weather.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude}}
	case cfg.HasAddress():
		return location.NewGeocodedSource(cfg.GeocoderAPIKey, location.Address{
			City:    cfg.AddressCity,
			State:   cfg.AddressState,
			Country: cfg.AddressCountry,
		})
	default:
		return nil
	}
}
