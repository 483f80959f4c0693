package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves free-text location queries.
type Geocoder interface {
	// ForwardGeocode converts a location query to coordinates.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}

// CityPreset is a well-known location that resolves without a network call.
type CityPreset struct {
	Name   string
	Coords LatLon
}

// PresetCities are the locations offered by the overlay's quick-select.
var PresetCities = []CityPreset{
	{Name: "New York, USA", Coords: LatLon{Lat: 40.7046, Lon: -74.0094}},
	{Name: "Mumbai, India", Coords: LatLon{Lat: 18.9220, Lon: 72.8347}},
	{Name: "Miami, USA", Coords: LatLon{Lat: 25.7617, Lon: -80.1918}},
}
