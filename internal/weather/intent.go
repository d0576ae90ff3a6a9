package weather

import (
	"fmt"

	"github.com/i474232898/weather-search/internal/common"
)

// IntentKind names an Intent variant for logs and outcomes.
type IntentKind string

const (
	KindCitySearch       IntentKind = "city_search"
	KindCoordinateSearch IntentKind = "coordinate_search"
	KindRefreshCurrent   IntentKind = "refresh_current"
	KindRestoreLast      IntentKind = "restore_last"
)

// Intent is a discrete request to obtain or refresh weather data. The set of
// implementations is closed: CitySearch, CoordinateSearch, RefreshCurrent, RestoreLast.
type Intent interface {
	Kind() IntentKind
	sealed()
}

// CitySearch asks for the weather of a named city.
type CitySearch struct {
	Name string
}

// CoordinateSearch asks for the weather at a device position.
type CoordinateSearch struct {
	Coordinates
}

// RefreshCurrent repeats the last successful city or coordinate search, bypassing caches.
type RefreshCurrent struct{}

// RestoreLast replays the persisted last search. Once it reaches the dispatcher it
// means nothing was persisted.
type RestoreLast struct{}

func (CitySearch) Kind() IntentKind       { return KindCitySearch }
func (CoordinateSearch) Kind() IntentKind { return KindCoordinateSearch }
func (RefreshCurrent) Kind() IntentKind   { return KindRefreshCurrent }
func (RestoreLast) Kind() IntentKind      { return KindRestoreLast }

func (CitySearch) sealed()       {}
func (CoordinateSearch) sealed() {}
func (RefreshCurrent) sealed()   {}
func (RestoreLast) sealed()      {}

// Decision is an Intent accepted by the trigger bus and stamped for dispatch.
type Decision struct {
	ID     string
	Seq    uint64
	Intent Intent
}

// intentFromSearch folds a persisted record into the intent that reproduces it.
func intentFromSearch(s Search) Intent {
	switch s.Kind {
	case SearchCity:
		if common.IsBlank(s.City) {
			return RestoreLast{}
		}
		return CitySearch{Name: s.City}
	case SearchLocation:
		if common.IsBlank(s.Coordinates.Latitude) || common.IsBlank(s.Coordinates.Longitude) {
			return RestoreLast{}
		}
		return CoordinateSearch{Coordinates: s.Coordinates}
	default:
		return RestoreLast{}
	}
}

// searchFromIntent is the record persisted after in succeeds.
func searchFromIntent(in Intent) (Search, error) {
	switch q := in.(type) {
	case CitySearch:
		return CitySearchRecord(q.Name), nil
	case CoordinateSearch:
		return LocationSearchRecord(q.Coordinates), nil
	default:
		return Search{}, fmt.Errorf("intent %s is not persistable", in.Kind())
	}
}
