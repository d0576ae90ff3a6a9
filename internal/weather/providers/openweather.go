package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/common"
	"github.com/i474232898/weather-search/internal/store"
	"github.com/i474232898/weather-search/internal/weather"
)

const (
	// DefaultOpenWeatherURL is the current-weather endpoint.
	DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

	iconURLFormat = "https://openweathermap.org/img/wn/%s@2x.png"
	kelvinOffset  = 273.15
)

var (
	errMissingAPIKey    = errors.New("openweather api key is not configured")
	errUnexpectedStatus = errors.New("unexpected status code")
)

// OpenWeatherConfig configures an OpenWeatherService.
type OpenWeatherConfig struct {
	APIKey     string
	BaseURL    string
	Client     *http.Client
	MaxRetries int

	// Cache holds recent payloads per query. Nil disables caching.
	Cache *store.MemoryCache

	Logger *zap.Logger
}

// OpenWeatherService implements weather.QueryService against OpenWeatherMap.
type OpenWeatherService struct {
	apiKey   string
	baseURL  string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	cache    *store.MemoryCache
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOpenWeatherService builds the service. Zero-valued fields fall back to defaults.
func NewOpenWeatherService(cfg OpenWeatherConfig) *OpenWeatherService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenWeatherService{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit:  newCircuitBreaker("openweather"),
		cache:    cfg.Cache,
		validate: validator.New(),
		logger:   logger,
	}
}

var _ weather.QueryService = (*OpenWeatherService)(nil)

// FetchByCity implements weather.QueryService. Names are sent lowercased.
func (s *OpenWeatherService) FetchByCity(ctx context.Context, name string, bypassCache bool) (weather.Payload, error) {
	values := url.Values{}
	values.Set("q", strings.ToLower(strings.TrimSpace(name)))
	return s.fetch(ctx, values, bypassCache)
}

// FetchByCoordinates implements weather.QueryService.
func (s *OpenWeatherService) FetchByCoordinates(ctx context.Context, lat, lon string, bypassCache bool) (weather.Payload, error) {
	values := url.Values{}
	values.Set("lat", lat)
	values.Set("lon", lon)
	return s.fetch(ctx, values, bypassCache)
}

func (s *OpenWeatherService) fetch(ctx context.Context, query url.Values, bypassCache bool) (weather.Payload, error) {
	if s.apiKey == "" {
		return weather.Payload{}, &weather.FetchError{Kind: weather.UnknownError, Err: errMissingAPIKey}
	}

	// The cache key excludes the api key.
	key := query.Encode()
	if s.cache != nil && !bypassCache {
		if p, err := s.cache.Get(key); err == nil {
			s.logger.Debug("serving cached weather", zap.String("query", key))
			return p, nil
		}
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		for k, v := range query {
			values[k] = v
		}
		values.Set("appid", s.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if bypassCache {
			req.Header.Set("Cache-Control", "no-cache")
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, buildRequest)
	if err != nil {
		return weather.Payload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Warn("openweather returned error status",
			zap.String("query", key),
			zap.Int("status", resp.StatusCode),
		)
		return weather.Payload{}, &weather.FetchError{
			Kind:   weather.StatusKind(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode),
		}
	}

	// A body that cannot be read is a transport failure; one that cannot be parsed is not.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return weather.Payload{}, fmt.Errorf("read openweather body: %w", err)
	}

	p, err := s.decode(body)
	if err != nil {
		return weather.Payload{}, &weather.FetchError{Kind: weather.UnknownError, Status: resp.StatusCode, Err: err}
	}

	if s.cache != nil {
		s.cache.Put(key, p)
	}
	return p, nil
}

type openWeatherResponse struct {
	Name string `json:"name" validate:"required"`
	Main struct {
		Temp    *float64 `json:"temp" validate:"required"`
		TempMin *float64 `json:"temp_min" validate:"required"`
		TempMax *float64 `json:"temp_max" validate:"required"`
	} `json:"main"`
	Weather []openWeatherCondition `json:"weather" validate:"required,min=1,dive"`
}

type openWeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon" validate:"required"`
}

func (s *OpenWeatherService) decode(body []byte) (weather.Payload, error) {
	var raw openWeatherResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return weather.Payload{}, fmt.Errorf("decode openweather payload: %w", err)
	}
	if err := s.validate.Struct(raw); err != nil {
		return weather.Payload{}, fmt.Errorf("invalid openweather payload: %w", err)
	}

	return weather.Payload{
		City:           raw.Name,
		Temperature:    celsius(*raw.Main.Temp),
		MinTemperature: celsius(*raw.Main.TempMin),
		MaxTemperature: celsius(*raw.Main.TempMax),
		IconRef:        fmt.Sprintf(iconURLFormat, raw.Weather[0].Icon),
		Condition:      mapOpenWeatherCondition(raw.Weather),
	}, nil
}

// celsius converts Kelvin to Celsius truncated toward zero.
func celsius(kelvin float64) string {
	return strconv.Itoa(int(math.Trunc(kelvin - kelvinOffset)))
}

func mapOpenWeatherCondition(items []openWeatherCondition) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	switch main := items[0].Main; {
	case main == "Clear":
		return weather.ConditionClear
	case main == "Clouds":
		return weather.ConditionCloudy
	case main == "Rain", main == "Drizzle":
		return weather.ConditionRain
	case main == "Snow":
		return weather.ConditionSnow
	case main == "Thunderstorm", main == "Squall", main == "Tornado":
		return weather.ConditionStorm
	case common.HasAny(main, "mist", "fog", "haze", "smoke", "dust", "sand", "ash"):
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
