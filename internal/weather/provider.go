package weather

import (
	"context"
)

// QueryService abstracts the current-weather transport (e.g. OpenWeatherMap).
// bypassCache asks the implementation to skip any response cache it keeps.
type QueryService interface {
	FetchByCity(ctx context.Context, name string, bypassCache bool) (Payload, error)
	FetchByCoordinates(ctx context.Context, lat, lon string, bypassCache bool) (Payload, error)
}

// LocationProvider streams device position fixes. The channel stays open until ctx is
// done; callers wanting a single fix cancel ctx after the first value.
type LocationProvider interface {
	Updates(ctx context.Context) (<-chan Coordinates, error)
}

// HistoryStore persists the last successful search.
// Load yields the current record followed by any later changes until ctx is done.
type HistoryStore interface {
	Load(ctx context.Context) (<-chan Search, error)
	Save(ctx context.Context, s Search) error
}
