package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/i474232898/weather-search/internal/store"
	"github.com/i474232898/weather-search/internal/weather"
)

const dallasPayload = `{
	"coord": {"lon": -96.8, "lat": 32.78},
	"weather": [{"id": 800, "main": "Clear", "description": "clear sky", "icon": "01d"}],
	"main": {"temp": 306.86, "feels_like": 309.1, "temp_min": 305.29, "temp_max": 308.56, "pressure": 1012, "humidity": 45},
	"name": "Dallas",
	"cod": 200
}`

type recordedRequest struct {
	query        string
	cacheControl string
}

type fakeOpenWeather struct {
	mu       sync.Mutex
	requests []recordedRequest
	hits     atomic.Int32
	status   int
	body     string
}

func (f *fakeOpenWeather) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{query: r.URL.RawQuery, cacheControl: r.Header.Get("Cache-Control")})
	status, body := f.status, f.body
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (f *fakeOpenWeather) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestOpenWeather(t *testing.T, h http.Handler, cache *store.MemoryCache) *OpenWeatherService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenWeatherService(OpenWeatherConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Client:  srv.Client(),
		Cache:   cache,
	})
}

func TestOpenWeatherFetchByCityDallas(t *testing.T) {
	fake := &fakeOpenWeather{body: dallasPayload}
	svc := newTestOpenWeather(t, fake, nil)

	got, err := svc.FetchByCity(context.Background(), "Dallas", false)
	if err != nil {
		t.Fatalf("FetchByCity: %v", err)
	}

	want := weather.Payload{
		City:           "Dallas",
		Temperature:    "33",
		MinTemperature: "32",
		MaxTemperature: "35",
		IconRef:        "https://openweathermap.org/img/wn/01d@2x.png",
		Condition:      weather.ConditionClear,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	if q := fake.last().query; q != "appid=test-key&q=dallas" {
		t.Fatalf("unexpected query %q", q)
	}
}

func TestOpenWeatherFetchByCoordinates(t *testing.T) {
	fake := &fakeOpenWeather{body: dallasPayload}
	svc := newTestOpenWeather(t, fake, nil)

	if _, err := svc.FetchByCoordinates(context.Background(), "32.78", "-96.8", false); err != nil {
		t.Fatalf("FetchByCoordinates: %v", err)
	}
	if q := fake.last().query; q != "appid=test-key&lat=32.78&lon=-96.8" {
		t.Fatalf("unexpected query %q", q)
	}
}

func TestOpenWeatherStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   weather.ErrorKind
	}{
		{http.StatusInternalServerError, weather.ServerError},
		{http.StatusBadGateway, weather.ServerError},
		{http.StatusServiceUnavailable, weather.ServerError},
		{http.StatusBadRequest, weather.NetworkError},
		{http.StatusUnauthorized, weather.NetworkError},
		{http.StatusForbidden, weather.NetworkError},
		{http.StatusNotFound, weather.NetworkError},
		{http.StatusTooManyRequests, weather.UnknownError},
		{http.StatusGatewayTimeout, weather.UnknownError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			svc := newTestOpenWeather(t, &fakeOpenWeather{status: tt.status, body: `{"cod":"x"}`}, nil)

			_, err := svc.FetchByCity(context.Background(), "Dallas", false)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			var fe *weather.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %T: %v", err, err)
			}
			if fe.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, fe.Status)
			}
			if got := weather.KindOf(err); got != tt.want {
				t.Fatalf("status %d: got %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestOpenWeatherMalformedPayload(t *testing.T) {
	bodies := map[string]string{
		"missing name":    `{"weather":[{"icon":"01d"}],"main":{"temp":300,"temp_min":299,"temp_max":301}}`,
		"missing temp":    `{"name":"Dallas","weather":[{"icon":"01d"}],"main":{"temp_min":299,"temp_max":301}}`,
		"no weather":      `{"name":"Dallas","weather":[],"main":{"temp":300,"temp_min":299,"temp_max":301}}`,
		"missing icon":    `{"name":"Dallas","weather":[{"main":"Clear"}],"main":{"temp":300,"temp_min":299,"temp_max":301}}`,
		"not json":        `<html>oops</html>`,
		"wrong temp type": `{"name":"Dallas","weather":[{"icon":"01d"}],"main":{"temp":"hot","temp_min":299,"temp_max":301}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			svc := newTestOpenWeather(t, &fakeOpenWeather{body: body}, nil)
			_, err := svc.FetchByCity(context.Background(), "Dallas", false)
			if got := weather.KindOf(err); got != weather.UnknownError {
				t.Fatalf("expected unknown_error, got %s (%v)", got, err)
			}
		})
	}
}

func TestOpenWeatherCacheReuseAndBypass(t *testing.T) {
	fake := &fakeOpenWeather{body: dallasPayload}
	svc := newTestOpenWeather(t, fake, store.NewMemoryCache(8, 15*time.Minute))
	ctx := context.Background()

	if _, err := svc.FetchByCity(ctx, "Dallas", false); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := svc.FetchByCity(ctx, "DALLAS", false); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if n := fake.hits.Load(); n != 1 {
		t.Fatalf("expected second fetch served from cache, got %d requests", n)
	}

	if _, err := svc.FetchByCity(ctx, "Dallas", true); err != nil {
		t.Fatalf("bypass fetch: %v", err)
	}
	if n := fake.hits.Load(); n != 2 {
		t.Fatalf("expected bypass to hit the network, got %d requests", n)
	}
	if cc := fake.last().cacheControl; cc != "no-cache" {
		t.Fatalf("expected Cache-Control no-cache, got %q", cc)
	}
}

func TestOpenWeatherBypassReplacesCacheEntry(t *testing.T) {
	fake := &fakeOpenWeather{body: dallasPayload}
	svc := newTestOpenWeather(t, fake, store.NewMemoryCache(8, 15*time.Minute))
	ctx := context.Background()

	if _, err := svc.FetchByCity(ctx, "Dallas", false); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	fake.mu.Lock()
	fake.body = `{"name":"Dallas","weather":[{"main":"Rain","icon":"10d"}],"main":{"temp":283.65,"temp_min":282,"temp_max":284}}`
	fake.mu.Unlock()

	fresh, err := svc.FetchByCity(ctx, "Dallas", true)
	if err != nil {
		t.Fatalf("bypass fetch: %v", err)
	}
	cached, err := svc.FetchByCity(ctx, "Dallas", false)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if diff := cmp.Diff(fresh, cached); diff != "" {
		t.Fatalf("cache not replaced (-fresh +cached):\n%s", diff)
	}
	if cached.Temperature != "10" || cached.Condition != weather.ConditionRain {
		t.Fatalf("unexpected refreshed payload %+v", cached)
	}
}

func TestOpenWeatherErrorsAreNotCached(t *testing.T) {
	fake := &fakeOpenWeather{status: http.StatusServiceUnavailable}
	svc := newTestOpenWeather(t, fake, store.NewMemoryCache(8, 15*time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := svc.FetchByCity(context.Background(), "Dallas", false); err == nil {
			t.Fatalf("expected error")
		}
	}
	if n := fake.hits.Load(); n != 2 {
		t.Fatalf("expected every failed fetch to reach the network, got %d", n)
	}
}

func TestOpenWeatherCancellationAbortsRequest(t *testing.T) {
	entered := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	})
	svc := newTestOpenWeather(t, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := svc.FetchByCity(ctx, "Dallas", false)
		errc <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the server")
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancel")
	}
}

func TestOpenWeatherCircuitOpensOnServerErrors(t *testing.T) {
	fake := &fakeOpenWeather{status: http.StatusInternalServerError}
	svc := newTestOpenWeather(t, fake, nil)
	ctx := context.Background()

	// The default breaker trips after more than five consecutive failures.
	for i := 0; i < 6; i++ {
		if _, err := svc.FetchByCity(ctx, "Dallas", false); weather.KindOf(err) != weather.ServerError {
			t.Fatalf("call %d: expected server_error, got %v", i, err)
		}
	}

	_, err := svc.FetchByCity(ctx, "Dallas", false)
	if got := weather.KindOf(err); got != weather.NetworkError {
		t.Fatalf("expected open breaker to map to network_error, got %s (%v)", got, err)
	}
	if n := fake.hits.Load(); n != 6 {
		t.Fatalf("expected open breaker to short-circuit, got %d requests", n)
	}
}

func TestOpenWeatherClientErrorsDoNotTripBreaker(t *testing.T) {
	fake := &fakeOpenWeather{status: http.StatusNotFound}
	svc := newTestOpenWeather(t, fake, nil)

	for i := 0; i < 10; i++ {
		_, err := svc.FetchByCity(context.Background(), "Atlantis", false)
		var fe *weather.FetchError
		if !errors.As(err, &fe) || fe.Status != http.StatusNotFound {
			t.Fatalf("call %d: expected 404 FetchError, got %v", i, err)
		}
	}
}

func TestOpenWeatherRequiresAPIKey(t *testing.T) {
	svc := NewOpenWeatherService(OpenWeatherConfig{})
	_, err := svc.FetchByCity(context.Background(), "Dallas", false)
	if !errors.Is(err, errMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestMapOpenWeatherCondition(t *testing.T) {
	tests := map[string]weather.Condition{
		"Clear":        weather.ConditionClear,
		"Clouds":       weather.ConditionCloudy,
		"Drizzle":      weather.ConditionRain,
		"Snow":         weather.ConditionSnow,
		"Thunderstorm": weather.ConditionStorm,
		"Haze":         weather.ConditionMist,
		"Fog":          weather.ConditionMist,
		"Volcano":      weather.ConditionUnknown,
	}
	for main, want := range tests {
		if got := mapOpenWeatherCondition([]openWeatherCondition{{Main: main}}); got != want {
			t.Errorf("mapOpenWeatherCondition(%q) = %s, want %s", main, got, want)
		}
	}
	if got := mapOpenWeatherCondition(nil); got != weather.ConditionUnknown {
		t.Errorf("expected unknown for empty list, got %s", got)
	}
}

func TestCelsiusTruncatesTowardZero(t *testing.T) {
	tests := map[float64]string{
		306.86: "33",
		273.15: "0",
		272.0:  "-1",
		270.5:  "-2",
	}
	for k, want := range tests {
		if got := celsius(k); got != want {
			t.Errorf("celsius(%v) = %s, want %s", k, got, want)
		}
	}
}
