package domain

import (
	"context"
	"log/slog"
	"strings"
)

// Resolution sources.
const (
	GeoSourcePreset   = "preset"
	GeoSourceGeocoded = "geocoded"
	GeoSourceDefault  = "default"
	GeoSourceFailed   = "failed"
)

// Resolution is the outcome of resolving a location query.
type Resolution struct {
	Coordinates LatLon
	PlaceName   string
	Source      string
}

// ResolveLocation maps a query to coordinates: presets first, then the
// geocoder. A nil geocoder, a failed lookup, or an empty result degrades to
// DefaultCoordinates.
func ResolveLocation(ctx context.Context, query string, geocoder Geocoder, logger *slog.Logger) Resolution {
	if preset, ok := lookupPreset(query); ok {
		return Resolution{Coordinates: preset.Coords, PlaceName: preset.Name, Source: GeoSourcePreset}
	}

	fallback := Resolution{Coordinates: DefaultCoordinates, PlaceName: query, Source: GeoSourceDefault}
	if geocoder == nil {
		return fallback
	}

	result, err := geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		logger.Warn("forward geocoding failed", "location", query, "error", err)
		fallback.Source = GeoSourceFailed
		return fallback
	}
	if result.Lat == 0 && result.Lon == 0 {
		return fallback
	}

	name := result.FormattedAddress
	if name == "" {
		name = query
	}
	return Resolution{
		Coordinates: LatLon{Lat: result.Lat, Lon: result.Lon},
		PlaceName:   name,
		Source:      GeoSourceGeocoded,
	}
}

func lookupPreset(query string) (CityPreset, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, p := range PresetCities {
		if strings.ToLower(p.Name) == q {
			return p, true
		}
	}
	return CityPreset{}, false
}
