package globe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
)

// InitialCamera is the view after the tileset loads.
var InitialCamera = Camera{
	Target:         domain.DefaultCoordinates,
	AltitudeMeters: 2000,
	HeadingDegrees: 20,
	PitchDegrees:   -20,
}

// Fly-to parameters for scene targets.
const (
	targetAltitudeMeters  = 1500.0
	targetPitchDegrees    = -30.0
	targetDurationSeconds = 3.0
)

// TilesetLoader loads terrain and building tiles.
type TilesetLoader interface {
	LoadTileset(ctx context.Context) error
}

// View applies scene state to a Renderer, emitting only what changed.
type View struct {
	renderer Renderer
	logger   *slog.Logger

	mu      sync.Mutex
	loaded  bool
	applied bool
	last    domain.SceneState
}

// NewView creates a View over the given renderer.
func NewView(r Renderer, logger *slog.Logger) *View {
	return &View{renderer: r, logger: logger}
}

// Load loads the tileset and flies to the initial camera. A load failure is
// logged and the view still reports loaded.
func (v *View) Load(ctx context.Context, loader TilesetLoader) {
	if err := loader.LoadTileset(ctx); err != nil {
		v.logger.Error("tileset load failed, continuing without buildings", "error", err)
	} else {
		v.renderer.FlyTo(InitialCamera)
	}

	v.mu.Lock()
	v.loaded = true
	v.mu.Unlock()
}

// Loaded reports whether Load has completed.
func (v *View) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Apply renders the scene.
func (v *View) Apply(s domain.SceneState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	first := !v.applied
	prev := v.last
	v.applied = true
	v.last = s

	if first || s.Target != prev.Target {
		v.renderer.FlyTo(Camera{
			Target:          s.Target,
			AltitudeMeters:  targetAltitudeMeters,
			PitchDegrees:    targetPitchDegrees,
			DurationSeconds: targetDurationSeconds,
		})
	}

	if first || s.RiseMeters != prev.RiseMeters || s.RiskColor != prev.RiskColor || s.SafeColor != prev.SafeColor {
		v.renderer.StyleBuildings(BuildingStyle{
			ThresholdMeters: s.RiseMeters,
			RiskColor:       s.RiskColor,
			SafeColor:       s.SafeColor,
		})
	}

	if first || s.RiseMeters != prev.RiseMeters || s.Target != prev.Target {
		v.renderer.SetFloodPlane(FloodPlaneFor(s))
	}

	if w := WeatherFor(s); first || w != WeatherFor(prev) {
		v.renderer.SetWeather(w)
	}
}

// OnSnapshot applies an applied simulation snapshot.
func (v *View) OnSnapshot(_ context.Context, snap domain.Snapshot) {
	v.Apply(snap.Scene())
}
