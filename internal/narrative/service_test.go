package narrative

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply string
	err   error
	calls []Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

func newTestService(c Completer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(c, time.Second, logger, observability.NewMetricsForTesting())
}

const climateJSON = `{
  "location": "New York, USA",
  "coordinates": {"lat": 40.71, "lon": -74.0},
  "flood_altitude_meters": 0.31,
  "building_style": {"risk_color_hex": "#FF0000", "safe_color_hex": "#FFFFFF", "description": "red"},
  "impact_analysis": {"hospitals": "ok", "power_grid": "strained", "transportation": "ok", "economic_loss": "$2B"},
  "narrative": "Water creeps into lower Manhattan."
}`

func TestClimateNarrative_ParsesFencedJSON(t *testing.T) {
	fake := &fakeCompleter{reply: "```json\n" + climateJSON + "\n```"}
	svc := newTestService(fake)

	data, err := svc.ClimateNarrative(context.Background(), NarrativeRequest{
		Location:     "New York, USA",
		Scenario:     "Year 2050, business-as-usual emissions",
		ComputedRise: 0.30,
	})

	require.NoError(t, err)
	assert.Equal(t, 0.31, data.FloodAltitudeMeters)
	assert.Equal(t, "#FF0000", data.BuildingStyle.RiskColor)
	assert.Equal(t, "$2B", data.ImpactAnalysis.EconomicLoss)

	require.Len(t, fake.calls, 1)
	assert.True(t, fake.calls[0].JSON)
	assert.Contains(t, fake.calls[0].Prompt, "0.30")
	assert.Contains(t, fake.calls[0].Prompt, "New York, USA")
}

func TestClimateNarrative_FillsMissingLocation(t *testing.T) {
	svc := newTestService(&fakeCompleter{reply: `{"flood_altitude_meters": 0.1}`})

	data, err := svc.ClimateNarrative(context.Background(), NarrativeRequest{Location: "Mumbai, India"})

	require.NoError(t, err)
	assert.Equal(t, "Mumbai, India", data.Location)
}

func TestClimateNarrative_MalformedJSON(t *testing.T) {
	svc := newTestService(&fakeCompleter{reply: "the sea is rising"})

	_, err := svc.ClimateNarrative(context.Background(), NarrativeRequest{Location: "Miami"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestClimateNarrative_BackendError(t *testing.T) {
	svc := newTestService(&fakeCompleter{err: errors.New("connection refused")})

	_, err := svc.ClimateNarrative(context.Background(), NarrativeRequest{Location: "Miami"})

	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestService_NilCompleterIsUnavailable(t *testing.T) {
	svc := newTestService(nil)

	assert.False(t, svc.Available())

	_, err := svc.ClimateNarrative(context.Background(), NarrativeRequest{})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	_, err = svc.Headlines(context.Background(), "ctx")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	_, err = svc.ChatReply(context.Background(), "ctx", "hi")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestHeadlines(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    []string
		wantErr bool
	}{
		{
			name:  "exactly four",
			reply: `{"headlines":["a","b","c","d"]}`,
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:  "extras truncated",
			reply: `{"headlines":["a","b","c","d","e","f"]}`,
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:    "too few",
			reply:   `{"headlines":["a","b","c"]}`,
			wantErr: true,
		},
		{
			name:    "blank entries do not count",
			reply:   `{"headlines":["a","b","c"," "]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			reply:   `Headline one. Headline two.`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeCompleter{reply: tt.reply})

			got, err := svc.Headlines(context.Background(), "New York, USA at 0.30m")

			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatReply(t *testing.T) {
	fake := &fakeCompleter{reply: "  Expect flooded subway entrances.  "}
	svc := newTestService(fake)

	reply, err := svc.ChatReply(context.Background(), "New York, USA at 0.30m", "What about the subway?")

	require.NoError(t, err)
	assert.Equal(t, "Expect flooded subway entrances.", reply)
	require.Len(t, fake.calls, 1)
	assert.False(t, fake.calls[0].JSON)
	assert.Contains(t, fake.calls[0].Prompt, "New York, USA at 0.30m")
	assert.Contains(t, fake.calls[0].Prompt, "What about the subway?")
}

func TestChatReply_EmptyIsUnavailable(t *testing.T) {
	svc := newTestService(&fakeCompleter{reply: "   "})

	_, err := svc.ChatReply(context.Background(), "ctx", "hello")

	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}```  ", `{"a":1}`},
		{"```", ""},
		{"```{\"a\":1}```", `{"a":1}`},
		{"```json{\"a\":1}```", `{"a":1}`},
		{"```json [1,2] ```", `[1,2]`},
		{"```plain text```", "plain text"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripCodeFences(tt.in))
	}
}
