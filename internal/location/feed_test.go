package location

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-search/internal/weather"
)

type countingSource struct {
	fix   weather.Coordinates
	err   error
	calls atomic.Int32
}

func (c *countingSource) Fix(ctx context.Context) (weather.Coordinates, error) {
	c.calls.Add(1)
	return c.fix, c.err
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestFeedDeliversFirstFixImmediately(t *testing.T) {
	src := &countingSource{fix: weather.Coordinates{Latitude: "32.78", Longitude: "-96.8"}}
	feed := NewFeed(src, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Updates(ctx)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}

	select {
	case got := <-ch:
		if got != src.fix {
			t.Fatalf("unexpected fix %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no fix delivered")
	}
}

func TestFeedStopsPollingWithoutSubscribers(t *testing.T) {
	src := &countingSource{fix: weather.Coordinates{Latitude: "1", Longitude: "2"}}
	feed := NewFeed(src, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := feed.Updates(ctx)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}
	<-ch
	cancel()

	waitUntil(t, func() bool { return feed.Subscribers() == 0 })

	// The stream is closed once released.
	for range ch {
	}

	calls := src.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	if got := src.calls.Load(); got != calls {
		t.Fatalf("expected polling to stop, calls went from %d to %d", calls, got)
	}
}

func TestFeedFansOutToSubscribers(t *testing.T) {
	src := &countingSource{fix: weather.Coordinates{Latitude: "1", Longitude: "2"}}
	feed := NewFeed(src, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := feed.Updates(ctx)
	if err != nil {
		t.Fatalf("Updates a: %v", err)
	}
	<-a

	b, err := feed.Updates(ctx)
	if err != nil {
		t.Fatalf("Updates b: %v", err)
	}
	select {
	case <-b:
	case <-time.After(3 * time.Second):
		t.Fatal("second subscriber got no fix")
	}

	if feed.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", feed.Subscribers())
	}
}

func TestFeedSkipsFailedFixes(t *testing.T) {
	src := &countingSource{err: errors.New("no signal")}
	feed := NewFeed(src, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Updates(ctx)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}
	waitUntil(t, func() bool { return src.calls.Load() >= 1 })

	select {
	case got := <-ch:
		t.Fatalf("expected no fix, got %+v", got)
	default:
	}
}

func TestFeedWithoutSource(t *testing.T) {
	feed := NewFeed(nil, time.Second, nil)
	if _, err := feed.Updates(context.Background()); !errors.Is(err, errNoSource) {
		t.Fatalf("expected errNoSource, got %v", err)
	}
}

func TestStaticSource(t *testing.T) {
	fix, err := StaticSource{Coordinates: weather.Coordinates{Latitude: "1.5", Longitude: "2"}}.Fix(context.Background())
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if fix.Latitude != "1.5" || fix.Longitude != "2" {
		t.Fatalf("unexpected fix %+v", fix)
	}

	if _, err := (StaticSource{}).Fix(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured coordinates")
	}
}

func TestGeocodedSourceCachesLookup(t *testing.T) {
	var lookups int
	src := &GeocodedSource{
		address: Address{City: "Dallas", State: "TX", Country: "US"},
		lookup: func(a geocoder.Address) (geocoder.Location, error) {
			lookups++
			if a.City != "Dallas" || a.State != "TX" || a.Country != "US" {
				t.Errorf("unexpected address %+v", a)
			}
			return geocoder.Location{Latitude: 32.7767, Longitude: -96.797}, nil
		},
	}

	for i := 0; i < 3; i++ {
		fix, err := src.Fix(context.Background())
		if err != nil {
			t.Fatalf("Fix: %v", err)
		}
		if fix.Latitude != "32.7767" || fix.Longitude != "-96.797" {
			t.Fatalf("unexpected fix %+v", fix)
		}
	}
	if lookups != 1 {
		t.Fatalf("expected a single geocoding lookup, got %d", lookups)
	}
}

func TestGeocodedSourceRetriesAfterFailure(t *testing.T) {
	fail := true
	src := &GeocodedSource{
		lookup: func(geocoder.Address) (geocoder.Location, error) {
			if fail {
				fail = false
				return geocoder.Location{}, errors.New("quota exceeded")
			}
			return geocoder.Location{Latitude: 1, Longitude: 2}, nil
		},
	}

	if _, err := src.Fix(context.Background()); err == nil {
		t.Fatal("expected first lookup to fail")
	}
	fix, err := src.Fix(context.Background())
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if fix.Latitude != "1" || fix.Longitude != "2" {
		t.Fatalf("unexpected fix %+v", fix)
	}
}
