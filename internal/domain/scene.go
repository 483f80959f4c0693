package domain

// Rendering thresholds.
const (
	// FloodPlaneEpsilon hides the flood plane at or below this rise to avoid
	// z-fighting with terrain at the zero boundary.
	FloodPlaneEpsilon = 0.1

	CriticalRise  = 2.0
	CriticalStorm = 4

	DefaultRiskColor = "#FF4444"
	DefaultSafeColor = "#FFFFFF"
)

// SceneState is everything the globe view needs from a projection.
type SceneState struct {
	RiskColor     string  `json:"risk_color"`
	SafeColor     string  `json:"safe_color"`
	RiseMeters    float64 `json:"rise_meters"`
	Target        LatLon  `json:"target"`
	StormCategory int     `json:"storm_category"`
	Defended      bool    `json:"defended"`
}

// Critical reports rise > 2.0m or a category 4+ storm, unless defended.
func (s SceneState) Critical() bool {
	if s.Defended {
		return false
	}
	return s.RiseMeters > CriticalRise || s.StormCategory >= CriticalStorm
}

// FloodPlaneVisible reports whether the water plane should be drawn.
func (s SceneState) FloodPlaneVisible() bool {
	return s.RiseMeters > FloodPlaneEpsilon
}

// Scene derives the view state from an applied snapshot, falling back to the
// default colors when the enrichment left them blank.
func (s Snapshot) Scene() SceneState {
	return SceneState{
		RiskColor:     firstNonEmpty(s.Climate.BuildingStyle.RiskColor, DefaultRiskColor),
		SafeColor:     firstNonEmpty(s.Climate.BuildingStyle.SafeColor, DefaultSafeColor),
		RiseMeters:    s.Rise,
		Target:        s.Climate.Coordinates,
		StormCategory: s.Inputs.StormCategory,
		Defended:      s.Inputs.Defended,
	}
}
