package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-search/internal/common"
	"github.com/i474232898/weather-search/internal/weather"
)

// StaticSource always reports the same position.
type StaticSource struct {
	Coordinates weather.Coordinates
}

// Fix implements FixSource.
func (s StaticSource) Fix(ctx context.Context) (weather.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}
	if common.IsBlank(s.Coordinates.Latitude) || common.IsBlank(s.Coordinates.Longitude) {
		return weather.Coordinates{}, errors.New("static location: coordinates not configured")
	}
	return s.Coordinates, nil
}

// Address is a postal address resolved to a position through Google geocoding.
type Address struct {
	City    string
	State   string
	Country string
}

// GeocodedSource resolves a fixed address once and then reports the cached result.
type GeocodedSource struct {
	address Address
	lookup  func(geocoder.Address) (geocoder.Location, error)

	mu    sync.Mutex
	fix   weather.Coordinates
	found bool
}

// NewGeocodedSource configures the geocoder with apiKey and returns a source for addr.
func NewGeocodedSource(apiKey string, addr Address) *GeocodedSource {
	geocoder.ApiKey = apiKey
	return &GeocodedSource{address: addr, lookup: geocoder.Geocoding}
}

// Fix implements FixSource.
func (g *GeocodedSource) Fix(ctx context.Context) (weather.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.found {
		return g.fix, nil
	}
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}

	loc, err := g.lookup(geocoder.Address{
		City:    g.address.City,
		State:   g.address.State,
		Country: g.address.Country,
	})
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("geocode %s: %w", g.address.City, err)
	}

	g.fix = weather.Coordinates{
		Latitude:  strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
	}
	g.found = true
	return g.fix, nil
}
