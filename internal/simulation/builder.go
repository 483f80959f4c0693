package simulation

import (
	"context"
	"log/slog"
	"math"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
)

// Enricher fetches descriptive climate data for a scenario.
type Enricher interface {
	ClimateNarrative(ctx context.Context, req narrative.NarrativeRequest) (domain.ClimateData, error)
}

// SnapshotBuilder turns inputs into a snapshot: local projection, remote
// enrichment, override rule, and the fallback path when enrichment fails.
type SnapshotBuilder struct {
	params   domain.ProjectionParams
	enricher Enricher
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewSnapshotBuilder creates a SnapshotBuilder. Pass a nil geocoder to resolve
// only preset cities.
func NewSnapshotBuilder(params domain.ProjectionParams, enricher Enricher, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *SnapshotBuilder {
	return &SnapshotBuilder{
		params:   params,
		enricher: enricher,
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build computes the snapshot for seq. It never fails: remote errors produce
// fallback climate data.
func (b *SnapshotBuilder) Build(ctx context.Context, seq uint64, in domain.SimulationInputs) domain.Snapshot {
	local := domain.ProjectRise(b.params, in)
	snap := domain.Snapshot{Seq: seq, Inputs: in, Rise: local}

	climate, err := b.enricher.ClimateNarrative(ctx, narrative.NarrativeRequest{
		Location:     in.Location,
		Scenario:     domain.DescribeScenario(in),
		ComputedRise: local,
	})
	if err != nil {
		b.logger.Warn("climate enrichment unavailable, using fallback",
			"seq", seq, "location", in.Location, "error", err)
		b.metrics.Fallbacks.WithLabelValues(narrative.OpClimate).Inc()

		res := domain.ResolveLocation(ctx, in.Location, b.geocoder, b.logger)
		snap.Climate = domain.FallbackClimate(in, local, res.Coordinates)
		snap.Source = domain.SourceFallback
		return snap
	}

	rise, overridden := b.params.Reconcile(climate.FloodAltitudeMeters, local)
	if overridden {
		b.logger.Info("remote flood altitude overridden",
			"seq", seq, "remote", climate.FloodAltitudeMeters, "local", local)
		b.metrics.RiseOverrides.Inc()
	}
	// A remote reading kept within tolerance gets the same floor and
	// rounding as the local projection.
	rise = domain.Round2(math.Max(0, rise))
	climate.FloodAltitudeMeters = rise

	if climate.Coordinates == (domain.LatLon{}) {
		climate.Coordinates = domain.ResolveLocation(ctx, in.Location, b.geocoder, b.logger).Coordinates
	}

	snap.Rise = rise
	snap.Overridden = overridden
	snap.Climate = climate
	snap.Source = domain.SourceRemote
	return snap
}
