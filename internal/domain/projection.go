package domain

import (
	"math"
	"strings"
)

// BaselineYear is the year the projection curve is anchored to (rise = 0).
const BaselineYear = 2000

// usLocationMarkers select the steeper US coastal regime.
var usLocationMarkers = []string{"usa", "united states", "new york", "miami"}

// ProjectionParams holds every tunable constant of the projection. The zero
// value is not useful; start from DefaultProjectionParams.
type ProjectionParams struct {
	USCoefficient     float64 // meters per year^2 for US-flagged locations
	GlobalCoefficient float64 // meters per year^2 elsewhere
	StormPerCategory  float64 // meters added per storm category
	Category3Surge    float64 // fixed surge for category 3, replaces the per-category value
	SeawallHeight     float64 // meters subtracted when defended
	OverrideTolerance float64 // max |remote - local| before the local value wins
}

// DefaultProjectionParams returns the reference constants.
func DefaultProjectionParams() ProjectionParams {
	return ProjectionParams{
		USCoefficient:     0.00012,
		GlobalCoefficient: 0.0000625,
		StormPerCategory:  0.7,
		Category3Surge:    2.0,
		SeawallHeight:     2.5,
		OverrideTolerance: 0.1,
	}
}

// ProjectRise computes the displayed sea-level rise in meters for the inputs:
// base curve (or manual level in sandbox mode), plus storm surge, minus
// seawall defenses, floored at zero and rounded to two decimals.
func ProjectRise(p ProjectionParams, in SimulationInputs) float64 {
	var rise float64
	if in.Sandbox {
		rise = in.ManualSeaLevel
	} else {
		rise = p.BaseRise(in.Year, in.Location)
	}

	rise += p.CategoryAdd(in.StormCategory)

	if in.Defended {
		rise = p.ApplyDefense(rise)
	}

	return Round2(math.Max(0, rise))
}

// BaseRise evaluates the quadratic curve for a year and location query.
func (p ProjectionParams) BaseRise(year int, location string) float64 {
	elapsed := float64(year - BaselineYear)
	if elapsed <= 0 {
		return 0
	}
	k := p.GlobalCoefficient
	if IsUSLocation(location) {
		k = p.USCoefficient
	}
	return k * elapsed * elapsed
}

// CategoryAdd returns the storm surge for a category. Category 3 uses the fixed
// Category3Surge rather than the linear per-category value.
func (p ProjectionParams) CategoryAdd(category int) float64 {
	switch {
	case category <= 0:
		return 0
	case category == 3:
		return p.Category3Surge
	case category > MaxStorm:
		category = MaxStorm
	}
	return float64(category) * p.StormPerCategory
}

// ApplyDefense subtracts the seawall height, floored at zero.
func (p ProjectionParams) ApplyDefense(rise float64) float64 {
	return math.Max(0, rise-p.SeawallHeight)
}

// reconcileSlack absorbs float error in the difference of two centimeter
// readings, so a gap of exactly the tolerance never trips the override.
const reconcileSlack = 1e-9

// Reconcile applies the override rule: the local value replaces the remote
// reading when they differ by more than the tolerance. The second result
// reports whether the override fired.
func (p ProjectionParams) Reconcile(remote, local float64) (float64, bool) {
	if math.Abs(remote-local) > p.OverrideTolerance+reconcileSlack {
		return local, true
	}
	return remote, false
}

// IsUSLocation reports whether a free-text location query selects the US
// coastal regime.
func IsUSLocation(location string) bool {
	l := strings.ToLower(location)
	for _, marker := range usLocationMarkers {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
