package domain

import (
	"fmt"
	"strings"
)

// DescribeScenario renders the inputs as the scenario line sent to the
// narrative service.
func DescribeScenario(in SimulationInputs) string {
	var b strings.Builder
	if in.Sandbox {
		fmt.Fprintf(&b, "Sandbox: manual sea level %.2fm", in.ManualSeaLevel)
	} else {
		fmt.Fprintf(&b, "Year %d, business-as-usual emissions", in.Year)
	}
	if in.StormCategory > 0 {
		fmt.Fprintf(&b, ", category %d storm", in.StormCategory)
	}
	if in.Defended {
		b.WriteString(", seawall defenses active")
	}
	return b.String()
}

// FallbackClimate synthesizes ClimateData from fixed templates when the
// narrative service is unavailable.
func FallbackClimate(in SimulationInputs, rise float64, coords LatLon) ClimateData {
	scene := SceneState{RiseMeters: rise, StormCategory: in.StormCategory, Defended: in.Defended}

	riskColor := "#FFAA00"
	if scene.Critical() {
		riskColor = DefaultRiskColor
	}

	return ClimateData{
		Location:            in.Location,
		Coordinates:         coords,
		FloodAltitudeMeters: rise,
		BuildingStyle: BuildingStyle{
			RiskColor:   riskColor,
			SafeColor:   DefaultSafeColor,
			Description: "Structures below the projected waterline are highlighted.",
		},
		ImpactAnalysis: fallbackImpact(rise),
		Narrative:      fallbackNarrative(in, rise, scene.Critical()),
	}
}

func fallbackNarrative(in SimulationInputs, rise float64, critical bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Offline projection for %s (%d): sea level stands %.2fm above the %d baseline.",
		in.Location, in.Year, rise, BaselineYear)
	if in.StormCategory > 0 {
		fmt.Fprintf(&b, " A category %d storm surge is included.", in.StormCategory)
	}
	if in.Defended {
		b.WriteString(" Seawall defenses are absorbing part of the surge.")
	}
	if critical {
		b.WriteString(" Conditions are critical for low-lying districts.")
	} else {
		b.WriteString(" Current exposure is limited, but long-term risk keeps rising.")
	}
	return b.String()
}

func fallbackImpact(rise float64) ImpactAnalysis {
	switch {
	case rise < 0.5:
		return ImpactAnalysis{
			Hospitals:      "Operational",
			PowerGrid:      "Stable",
			Transportation: "Minor coastal road closures",
			EconomicLoss:   "Low",
		}
	case rise < 2.0:
		return ImpactAnalysis{
			Hospitals:      "Waterfront facilities on alert",
			PowerGrid:      "Substations at risk",
			Transportation: "Tunnels and low bridges closed",
			EconomicLoss:   "Moderate",
		}
	default:
		return ImpactAnalysis{
			Hospitals:      "Evacuating coastal facilities",
			PowerGrid:      "Widespread outages",
			Transportation: "Transit network flooded",
			EconomicLoss:   "Severe",
		}
	}
}

// FallbackHeadlines returns four template headlines for the ticker.
func FallbackHeadlines(location string, rise float64, stormCategory int) []string {
	storm := "No active storm systems reported"
	if stormCategory > 0 {
		storm = fmt.Sprintf("Category %d storm approaching %s", stormCategory, location)
	}
	return []string{
		fmt.Sprintf("%s waterline reaches +%.2fm", location, rise),
		storm,
		"Coastal insurers revise flood maps",
		"City engineers review seawall capacity",
	}
}

// OfflineChatReply is the canned answer used when the chat backend fails.
func OfflineChatReply(ctx ClimateData) string {
	return fmt.Sprintf("Uplink offline. Last local reading for %s: flood level %.2fm. Please retry shortly.",
		ctx.Location, ctx.FloodAltitudeMeters)
}

// ContextSummary is the ambient climate context re-injected into each chat and
// headline request.
func ContextSummary(c ClimateData) string {
	return fmt.Sprintf("Location: %s. Flood level: %.2fm. Narrative: %s", c.Location, c.FloodAltitudeMeters, c.Narrative)
}
