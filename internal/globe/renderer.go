// Package globe translates scene state into calls on a 3D globe renderer.
package globe

import (
	"fmt"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
)

// Flood plane geometry.
const (
	FloodPlaneRadiusMeters = 25000.0
	FloodPlaneBaseMeters   = -1000.0
)

// FloodPlaneColor is the translucent water material (RGBA, 0-1).
var FloodPlaneColor = [4]float64{0.0, 0.5, 0.8, 0.55}

// Camera describes a fly-to.
type Camera struct {
	Target          domain.LatLon `json:"target"`
	AltitudeMeters  float64       `json:"altitude_meters"`
	HeadingDegrees  float64       `json:"heading_degrees"`
	PitchDegrees    float64       `json:"pitch_degrees"`
	DurationSeconds float64       `json:"duration_seconds,omitempty"`
}

// BuildingStyle colors buildings whose estimated height is below the
// threshold with RiskColor, the rest with SafeColor.
type BuildingStyle struct {
	ThresholdMeters float64 `json:"threshold_meters"`
	RiskColor       string  `json:"risk_color"`
	SafeColor       string  `json:"safe_color"`
}

// Condition renders the predicate as a 3D Tiles style expression.
func (s BuildingStyle) Condition() string {
	return fmt.Sprintf("${feature['cesium#estimatedHeight']} < %g", s.ThresholdMeters)
}

// FloodPlane is an extruded disc from Base up to Height around Center.
type FloodPlane struct {
	Visible      bool          `json:"visible"`
	Center       domain.LatLon `json:"center"`
	RadiusMeters float64       `json:"radius_meters"`
	BaseMeters   float64       `json:"base_meters"`
	HeightMeters float64       `json:"height_meters"`
	Color        [4]float64    `json:"color"`
}

// Weather holds storm effects.
type Weather struct {
	RainIntensity float64 `json:"rain_intensity"`
	Fog           bool    `json:"fog"`
	Alarm         bool    `json:"alarm"`
}

// Renderer is the globe library surface the view drives.
type Renderer interface {
	FlyTo(cam Camera)
	StyleBuildings(style BuildingStyle)
	SetFloodPlane(plane FloodPlane)
	SetWeather(w Weather)
}

// WeatherFor derives storm effects: rain scales with category, fog from
// category 3, and the alarm tint when the scene is critical.
func WeatherFor(s domain.SceneState) Weather {
	category := min(max(s.StormCategory, 0), domain.MaxStorm)
	return Weather{
		RainIntensity: float64(category) / float64(domain.MaxStorm),
		Fog:           category >= 3,
		Alarm:         s.Critical(),
	}
}

// FloodPlaneFor positions the water plane at the target, hidden at or below
// the visibility epsilon.
func FloodPlaneFor(s domain.SceneState) FloodPlane {
	return FloodPlane{
		Visible:      s.FloodPlaneVisible(),
		Center:       s.Target,
		RadiusMeters: FloodPlaneRadiusMeters,
		BaseMeters:   FloodPlaneBaseMeters,
		HeightMeters: s.RiseMeters,
		Color:        FloodPlaneColor,
	}
}
