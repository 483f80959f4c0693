package narrative

import "fmt"

const climateSystem = `You are a climate scientist writing for a 3D sea-level visualization.
Respond with a single JSON object with these keys:
location, coordinates {lat, lon}, flood_altitude_meters,
building_style {risk_color_hex, safe_color_hex, description},
impact_analysis {hospitals, power_grid, transportation, economic_loss}, narrative.`

const headlinesSystem = `You write breaking-news ticker headlines about coastal flooding.
Respond with a JSON object {"headlines": [four short headlines]}.`

const chatSystem = `You are a concise climate advisor embedded in a sea-level atlas.
Answer in two or three sentences using the scenario context provided.`

func climateRequest(req NarrativeRequest) Request {
	return Request{
		System: climateSystem,
		Prompt: fmt.Sprintf("Location: %s\nScenario: %s\nProjected flood altitude: %.2f meters. Use this value for flood_altitude_meters.",
			req.Location, req.Scenario, req.ComputedRise),
		JSON:      true,
		MaxTokens: 800,
	}
}

func headlinesRequest(climateContext string) Request {
	return Request{
		System:    headlinesSystem,
		Prompt:    "Context: " + climateContext,
		JSON:      true,
		MaxTokens: 300,
	}
}

func chatRequest(climateContext, message string) Request {
	return Request{
		System:    chatSystem,
		Prompt:    fmt.Sprintf("Context: %s\n\nQuestion: %s", climateContext, message),
		MaxTokens: 400,
	}
}
