package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrServiceUnavailable is returned by narrative backends on any failure:
	// missing credential, transport error, non-2xx status or malformed payload.
	// Callers substitute deterministic local data.
	ErrServiceUnavailable = errors.New("narrative service unavailable")

	// ErrInvalidInputs marks simulation inputs outside their accepted ranges.
	ErrInvalidInputs = errors.New("invalid simulation inputs")

	// ErrSessionNotFound is returned for unknown chat session ids.
	ErrSessionNotFound = errors.New("chat session not found")
)

// Control surface bounds.
const (
	MinYear         = 2025
	MaxYear         = 2100
	MaxStorm        = 5
	DefaultLocation = "New York, USA"
)

// LatLon is a WGS-84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DefaultCoordinates is used until a location resolves (lower Manhattan).
var DefaultCoordinates = LatLon{Lat: 40.7128, Lon: -74.0060}

// BuildingStyle carries the colors the globe uses to paint buildings below and
// above the flood line.
type BuildingStyle struct {
	RiskColor   string `json:"risk_color"`
	SafeColor   string `json:"safe_color"`
	Description string `json:"description"`
}

// UnmarshalJSON also accepts the *_hex keys the remote prompt schema asks for.
func (b *BuildingStyle) UnmarshalJSON(data []byte) error {
	var raw struct {
		RiskColor    string `json:"risk_color"`
		SafeColor    string `json:"safe_color"`
		RiskColorHex string `json:"risk_color_hex"`
		SafeColorHex string `json:"safe_color_hex"`
		Description  string `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.RiskColor = firstNonEmpty(raw.RiskColor, raw.RiskColorHex)
	b.SafeColor = firstNonEmpty(raw.SafeColor, raw.SafeColorHex)
	b.Description = raw.Description
	return nil
}

// ImpactAnalysis is the descriptive infrastructure breakdown for a scenario.
type ImpactAnalysis struct {
	Hospitals      string `json:"hospitals"`
	PowerGrid      string `json:"power_grid"`
	Transportation string `json:"transportation"`
	EconomicLoss   string `json:"economic_loss"`
}

// ClimateData is the full result of one simulation request. It is replaced
// wholesale on every request, never merged.
type ClimateData struct {
	Location            string         `json:"location"`
	Coordinates         LatLon         `json:"coordinates"`
	FloodAltitudeMeters float64        `json:"flood_altitude_meters"`
	BuildingStyle       BuildingStyle  `json:"building_style"`
	ImpactAnalysis      ImpactAnalysis `json:"impact_analysis"`
	Narrative           string         `json:"narrative"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one entry of an append-only chat thread.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage stamps a message with the package clock.
func NewChatMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Text: text, Timestamp: clock.Now()}
}

// NewsHeadline is one ticker entry. IDs are synthetic and change on every
// refresh.
type NewsHeadline struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

var headlineSources = []string{"Global Wire", "Coastal Desk", "Climate Monitor", "Metro Watch"}

// BuildHeadlines assigns synthetic ids (index + unix millis) and rotating
// sources to a fresh batch of headline texts.
func BuildHeadlines(texts []string) []NewsHeadline {
	now := clock.Now().UnixMilli()
	out := make([]NewsHeadline, 0, len(texts))
	for i, text := range texts {
		out = append(out, NewsHeadline{
			ID:     fmt.Sprintf("%d-%d", i, now),
			Text:   text,
			Source: headlineSources[i%len(headlineSources)],
		})
	}
	return out
}

// SimulationInputs are the sole determinants of a projection.
type SimulationInputs struct {
	Year           int     `json:"year"`
	Location       string  `json:"location"`
	Sandbox        bool    `json:"sandbox"`
	ManualSeaLevel float64 `json:"manual_sea_level"`
	StormCategory  int     `json:"storm_category"`
	Defended       bool    `json:"defended"`
}

// DefaultInputs mirrors the initial state of the control overlay.
func DefaultInputs() SimulationInputs {
	return SimulationInputs{Year: MinYear, Location: DefaultLocation}
}

// Validate rejects storm categories outside 0-5.
func (in SimulationInputs) Validate() error {
	if in.StormCategory < 0 || in.StormCategory > MaxStorm {
		return fmt.Errorf("%w: storm category %d outside 0-%d", ErrInvalidInputs, in.StormCategory, MaxStorm)
	}
	return nil
}

// Normalize applies the control-surface clamps: year into [MinYear, MaxYear],
// manual level >= 0, and a default location for blank queries.
func (in SimulationInputs) Normalize() SimulationInputs {
	if in.Year < MinYear {
		in.Year = MinYear
	}
	if in.Year > MaxYear {
		in.Year = MaxYear
	}
	if in.ManualSeaLevel < 0 {
		in.ManualSeaLevel = 0
	}
	in.Location = strings.TrimSpace(in.Location)
	if in.Location == "" {
		in.Location = DefaultLocation
	}
	return in
}

// Source records where a snapshot's descriptive fields came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Snapshot is a projection together with its enrichment, as applied by the
// simulation coordinator.
type Snapshot struct {
	Seq        uint64           `json:"seq"`
	Inputs     SimulationInputs `json:"inputs"`
	Rise       float64          `json:"rise_meters"`
	Climate    ClimateData      `json:"climate"`
	Source     Source           `json:"source"`
	Overridden bool             `json:"overridden"`
	AppliedAt  time.Time        `json:"applied_at"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
