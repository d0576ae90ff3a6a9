package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type AppConfig struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	// Outbound HTTP behaviour.
	HTTPTimeout time.Duration
	MaxRetries  int

	// Response cache retention.
	CacheMaxAge     time.Duration
	CacheMaxEntries int

	// Location source. Coordinates win over an address when both are set.
	Latitude        string
	Longitude       string
	AddressCity     string
	AddressState    string
	AddressCountry  string
	GeocoderAPIKey  string
	LocationPolling time.Duration

	// Last-search persistence.
	HistoryDriver string
	HistoryDSN    string

	OutcomeBuffer int

	LogLevel  string
	LogFormat string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenWeatherBaseURL = getenvDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getenvInt("WEATHER_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid WEATHER_MAX_RETRIES: must not be negative")
	}

	// Responses are reused for 15 minutes unless a refresh bypasses them.
	if cfg.CacheMaxAge, err = getenvDuration("CACHE_MAX_AGE", "15m"); err != nil {
		return nil, err
	}
	if cfg.CacheMaxEntries, err = getenvInt("CACHE_MAX_ENTRIES", 64); err != nil {
		return nil, err
	}

	cfg.Latitude = strings.TrimSpace(os.Getenv("LOCATION_LATITUDE"))
	cfg.Longitude = strings.TrimSpace(os.Getenv("LOCATION_LONGITUDE"))
	if (cfg.Latitude == "") != (cfg.Longitude == "") {
		return nil, fmt.Errorf("LOCATION_LATITUDE and LOCATION_LONGITUDE must be set together")
	}
	for key, v := range map[string]string{"LOCATION_LATITUDE": cfg.Latitude, "LOCATION_LONGITUDE": cfg.Longitude} {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	cfg.AddressCity = os.Getenv("LOCATION_ADDRESS_CITY")
	cfg.AddressState = os.Getenv("LOCATION_ADDRESS_STATE")
	cfg.AddressCountry = os.Getenv("LOCATION_ADDRESS_COUNTRY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	if cfg.LocationPolling, err = getenvDuration("LOCATION_POLL_INTERVAL", "10s"); err != nil {
		return nil, err
	}

	cfg.HistoryDriver = strings.ToLower(getenvDefault("HISTORY_DRIVER", DriverSQLite))
	if cfg.HistoryDriver != DriverSQLite && cfg.HistoryDriver != DriverPostgres {
		return nil, fmt.Errorf("invalid HISTORY_DRIVER %q: want %s or %s", cfg.HistoryDriver, DriverSQLite, DriverPostgres)
	}
	cfg.HistoryDSN = getenvDefault("HISTORY_DSN", "weather-search.db")

	if cfg.OutcomeBuffer, err = getenvInt("OUTCOME_BUFFER", 16); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// HasCoordinates reports whether a fixed position is configured.
func (c *AppConfig) HasCoordinates() bool {
	return c.Latitude != "" && c.Longitude != ""
}

// HasAddress reports whether an address to geocode is configured.
func (c *AppConfig) HasAddress() bool {
	return c.AddressCity != "" && c.GeocoderAPIKey != ""
}

// NewLogger builds the application logger from LOG_LEVEL and LOG_FORMAT.
func (c *AppConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var zc zap.Config
	switch c.LogFormat {
	case "json", "":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
