// Package domain models coastal sea-level-rise projections and the data the
// atlas renders from them.
//
// # Projection Curve
//
// Outside sandbox mode the rise is a closed-form quadratic in the years elapsed
// since the 2000 baseline:
//
//	rise = k * (year - 2000)^2
//
// Two regimes exist. Locations whose free-text query mentions the United States
// ("usa", "united states", "new york", "miami") use the steeper US coastal
// coefficient, everything else uses the global one. The coefficients are fitted
// to two published reference points:
//
//	US coasts: ~0.30m by 2050   -> k = 0.00012
//	Global:    ~0.10m by 2040   -> k = 0.0000625
//
// Years before the baseline project to zero, so the curve is continuous at 2000
// and non-decreasing for every later year.
//
// # Sandbox Mode
//
// Sandbox mode bypasses the curve entirely: the user-supplied manual sea level
// is the starting value. The calculator does not clamp it; the control surface
// does (see [SimulationInputs.Normalize]).
//
// # Storm Surge and Defenses
//
// Storm categories run 0-5. Category 0 adds nothing, category 3 adds a fixed
// 2.0m surge, and every other category adds category * 0.7m. The category 3
// value is a deliberate special case and is kept as its own parameter.
//
// Seawall defenses subtract a fixed 2.5m, floored at zero. The final value is
// floored at zero and rounded to two decimals.
//
// # Remote Narrative Override
//
// The remote text-generation service only contributes descriptive fields. When
// its flood reading differs from the local projection by more than the override
// tolerance (0.1m), the local value wins. See [ProjectionParams.Reconcile].
//
// All constants above live in [ProjectionParams] so they can be tuned from
// configuration.
package domain
