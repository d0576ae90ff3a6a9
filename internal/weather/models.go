package weather

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Coordinates identify a device position. Values are kept as the decimal
// strings the location source produced so they round-trip through storage unchanged.
type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Payload is the current-weather view returned by a QueryService.
// Temperatures are integer Celsius strings.
type Payload struct {
	City           string    `json:"city"`
	Temperature    string    `json:"temperature"`
	MinTemperature string    `json:"minTemperature"`
	MaxTemperature string    `json:"maxTemperature"`
	IconRef        string    `json:"iconRef"`
	Condition      Condition `json:"condition"`
}

// SearchKind discriminates the persisted last-search record.
type SearchKind string

const (
	SearchNone     SearchKind = ""
	SearchCity     SearchKind = "city"
	SearchLocation SearchKind = "location"
)

// Search is the single persisted "last search" record. Each save replaces the previous one.
type Search struct {
	Kind        SearchKind  `json:"kind"`
	City        string      `json:"city,omitempty"`
	Coordinates Coordinates `json:"coordinates,omitempty"`
}

// CitySearchRecord builds a persisted city search.
func CitySearchRecord(name string) Search {
	return Search{Kind: SearchCity, City: name}
}

// LocationSearchRecord builds a persisted coordinate search.
func LocationSearchRecord(c Coordinates) Search {
	return Search{Kind: SearchLocation, Coordinates: c}
}

// NoSearch is the empty record.
func NoSearch() Search {
	return Search{Kind: SearchNone}
}
