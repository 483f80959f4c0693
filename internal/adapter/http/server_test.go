package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/flood-atlas-service/internal/adapter/http"
	"github.com/couchcryptid/flood-atlas-service/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/globe"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/couchcryptid/flood-atlas-service/internal/panel"
	"github.com/couchcryptid/flood-atlas-service/internal/simulation"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakeSimulator struct {
	mu        sync.Mutex
	pending   domain.SimulationInputs
	current   domain.Snapshot
	hasCur    bool
	runErr    error
	submitted []domain.SimulationInputs
	ran       []domain.SimulationInputs
}

func newFakeSimulator() *fakeSimulator {
	return &fakeSimulator{pending: domain.DefaultInputs()}
}

func (f *fakeSimulator) Update(patch func(*domain.SimulationInputs) error) (domain.SimulationInputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.pending
	if err := patch(&in); err != nil {
		return f.pending, err
	}
	if err := in.Validate(); err != nil {
		return f.pending, err
	}
	f.pending = in.Normalize()
	f.submitted = append(f.submitted, f.pending)
	return f.pending, nil
}

func (f *fakeSimulator) Pending() domain.SimulationInputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeSimulator) RunNow(_ context.Context, in domain.SimulationInputs) (domain.Snapshot, error) {
	if err := in.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, in)
	if f.runErr != nil {
		return domain.Snapshot{}, f.runErr
	}
	in = in.Normalize()
	rise := domain.ProjectRise(domain.DefaultProjectionParams(), in)
	f.current = domain.Snapshot{
		Seq:     uint64(len(f.ran)),
		Inputs:  in,
		Rise:    rise,
		Climate: domain.FallbackClimate(in, rise, domain.DefaultCoordinates),
		Source:  domain.SourceFallback,
	}
	f.hasCur = true
	return f.current, nil
}

func (f *fakeSimulator) Current() (domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.hasCur
}

type stubNarrative struct {
	err error
}

func (s stubNarrative) ChatReply(_ context.Context, _, message string) (string, error) {
	return "echo: " + message, s.err
}

func (s stubNarrative) Headlines(_ context.Context, _ string) ([]string, error) {
	return []string{"one", "two", "three", "four"}, s.err
}

type loadedView bool

func (v loadedView) Loaded() bool { return bool(v) }

type testEnv struct {
	server *httpadapter.Server
	sim    *fakeSimulator
	store  *sqlite.Store
	ticker *panel.Ticker
	scene  *globe.CommandLog
}

type sceneBody struct {
	Snapshot domain.Snapshot   `json:"snapshot"`
	Scene    domain.SceneState `json:"scene"`
	Critical bool              `json:"critical"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, readyErr error, rps int) *testEnv {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	store, err := sqlite.NewStore(":memory:", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sim := newFakeSimulator()
	chat := panel.NewChat(stubNarrative{}, store, func() domain.ClimateData {
		snap, _ := sim.Current()
		return snap.Climate
	}, time.Second, clockwork.NewFakeClock(), discardLogger(), metrics)
	ticker := panel.NewTicker(stubNarrative{}, time.Second, discardLogger(), metrics)
	scene := globe.NewCommandLog(16, clockwork.NewFakeClock())

	srv := httpadapter.NewServer(":0", httpadapter.Deps{
		Simulator:    sim,
		History:      store,
		Chat:         chat,
		News:         ticker,
		Scene:        scene,
		View:         loadedView(true),
		IonToken:     "ion-test",
		Ready:        &mockReadiness{err: readyErr},
		RateLimitRPS: rps,
	}, discardLogger())

	return &testEnv{server: srv, sim: sim, store: store, ticker: ticker, scene: scene}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- tests ---

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newTestEnv(t, fmt.Errorf("no simulation applied yet"), 100)

	rec := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no simulation applied yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPutInputs_MergesPartialUpdate(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPut, "/api/inputs", `{"year": 2070}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/inputs", `{"storm_category": 2}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	pending := env.sim.Pending()
	assert.Equal(t, 2070, pending.Year)
	assert.Equal(t, 2, pending.StormCategory)
	assert.Equal(t, domain.DefaultLocation, pending.Location)
}

func TestPutInputs_ConcurrentPartialUpdates(t *testing.T) {
	env := newTestEnv(t, nil, 1000)

	bodies := []string{`{"year": 2070}`, `{"storm_category": 2}`, `{"defended": true}`, `{"sandbox": true}`}
	var wg sync.WaitGroup
	for _, body := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.do(t, http.MethodPut, "/api/inputs", body)
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}()
	}
	wg.Wait()

	pending := env.sim.Pending()
	assert.Equal(t, 2070, pending.Year)
	assert.Equal(t, 2, pending.StormCategory)
	assert.True(t, pending.Defended)
	assert.True(t, pending.Sandbox)
}

func TestPutInputs_InvalidStormCategory(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPut, "/api/inputs", `{"storm_category": 9}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "storm category")
}

func TestPutInputs_MalformedBody(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPut, "/api/inputs", `{"year":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulate_UsesPendingInputsWhenBodyEmpty(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	_, err := env.sim.Update(func(in *domain.SimulationInputs) error {
		*in = domain.SimulationInputs{Year: 2050, Location: "New York, USA"}
		return nil
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/simulate", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[sceneBody](t, rec)
	assert.InDelta(t, 0.30, body.Snapshot.Rise, 1e-9)
	assert.Equal(t, domain.SourceFallback, body.Snapshot.Source)
	assert.Equal(t, domain.DefaultRiskColor, body.Scene.RiskColor)
	assert.False(t, body.Critical)
}

func TestSimulate_SandboxCritical(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPost, "/api/simulate",
		`{"sandbox": true, "manual_sea_level": 1.0, "storm_category": 4, "location": "Miami, USA"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[sceneBody](t, rec).Critical)
}

func TestSimulate_Superseded(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	env.sim.runErr = simulation.ErrSuperseded

	rec := env.do(t, http.MethodPost, "/api/simulate", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSimulate_UnexpectedError(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	env.sim.runErr = errors.New("boom")

	rec := env.do(t, http.MethodPost, "/api/simulate", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "simulation failed", decode[map[string]string](t, rec)["error"])
}

func TestState(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "pending")
	assert.NotContains(t, body, "current")

	env.do(t, http.MethodPost, "/api/simulate", "")
	rec = env.do(t, http.MethodGet, "/api/state", "")
	body = decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "current")
}

func TestSimulations_ListAndGet(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	ctx := context.Background()
	snap, err := env.sim.RunNow(ctx, domain.SimulationInputs{Year: 2040, Location: "Mumbai, India"})
	require.NoError(t, err)
	id, err := env.store.SaveSnapshot(ctx, snap)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/simulations?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Simulations []sqlite.SimulationRecord `json:"simulations"`
	}](t, rec)
	require.Len(t, list.Simulations, 1)
	assert.Equal(t, "Mumbai, India", list.Simulations[0].Snapshot.Inputs.Location)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/simulations/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[sqlite.SimulationRecord](t, rec).ID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/simulations/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/simulations/abc", "").Code)
}

func TestChat_Flow(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPost, "/api/chat/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)

	rec = env.do(t, http.MethodPost, "/api/chat/sessions/"+id+"/messages", `{"text":"Is the subway safe?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[domain.ChatMessage](t, rec)
	assert.Equal(t, domain.RoleModel, reply.Role)
	assert.Equal(t, "echo: Is the subway safe?", reply.Text)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Messages []domain.ChatMessage `json:"messages"`
	}](t, rec)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, domain.RoleUser, history.Messages[0].Role)
}

func TestChat_Errors(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	id := decode[map[string]string](t, env.do(t, http.MethodPost, "/api/chat/sessions", ""))["id"]

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/chat/sessions/"+id+"/messages", `{"text":"   "}`).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/chat/sessions/nope/messages", `{"text":"hi"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodGet, "/api/chat/sessions/nope/messages", "").Code)
}

func TestNews(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodPost, "/api/news/refresh", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing to refresh before the first snapshot")

	snap, err := env.sim.RunNow(context.Background(), domain.DefaultInputs())
	require.NoError(t, err)
	env.ticker.Refresh(context.Background(), snap)

	rec = env.do(t, http.MethodGet, "/api/news", "")
	require.Equal(t, http.StatusOK, rec.Code)
	news := decode[struct {
		Headlines []domain.NewsHeadline `json:"headlines"`
	}](t, rec)
	require.Len(t, news.Headlines, 4)
	assert.Equal(t, "one", news.Headlines[0].Text)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/news/refresh", "").Code)
}

func TestSceneCommands(t *testing.T) {
	env := newTestEnv(t, nil, 100)
	view := globe.NewView(env.scene, discardLogger())
	view.Apply(domain.SceneState{RiseMeters: 0.5, Target: domain.DefaultCoordinates, RiskColor: "#FF0000", SafeColor: "#FFFFFF"})

	rec := env.do(t, http.MethodGet, "/api/scene/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Version  uint64          `json:"version"`
		Resync   bool            `json:"resync"`
		Commands []globe.Command `json:"commands"`
	}](t, rec)
	assert.NotEmpty(t, body.Commands)
	assert.Equal(t, body.Commands[len(body.Commands)-1].Version, body.Version)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/scene/commands?since=%d", body.Version), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"commands":[]`)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/scene/commands?since=-1", "").Code)
}

func TestViewer(t *testing.T) {
	env := newTestEnv(t, nil, 100)

	rec := env.do(t, http.MethodGet, "/api/viewer", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ion-test", body["ion_token"])
	assert.Equal(t, true, body["loaded"])
	assert.Contains(t, body, "initial_camera")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, 1)

	first := env.do(t, http.MethodGet, "/api/news", "")
	second := env.do(t, http.MethodGet, "/api/news", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code, "probes are not rate limited")
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, httpadapter.AllReady(&mockReadiness{}, nil).CheckReadiness(ctx))

	err := httpadapter.AllReady(&mockReadiness{}, &mockReadiness{err: errors.New("db down")}).CheckReadiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
