package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/flood-atlas-service/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/globe"
	"github.com/couchcryptid/flood-atlas-service/internal/panel"
	"github.com/couchcryptid/flood-atlas-service/internal/simulation"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// Simulator is the control overlay's view of the simulation coordinator.
type Simulator interface {
	Update(patch func(*domain.SimulationInputs) error) (domain.SimulationInputs, error)
	Pending() domain.SimulationInputs
	RunNow(ctx context.Context, in domain.SimulationInputs) (domain.Snapshot, error)
	Current() (domain.Snapshot, bool)
}

// SimulationHistory lists stored snapshots.
type SimulationHistory interface {
	ListSnapshots(ctx context.Context, limit int) ([]sqlite.SimulationRecord, error)
	GetSnapshot(ctx context.Context, id int64) (sqlite.SimulationRecord, error)
}

// ChatService manages chat threads.
type ChatService interface {
	NewSession(ctx context.Context) (string, error)
	Send(ctx context.Context, sessionID, text string) (domain.ChatMessage, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// NewsFeed serves the headline ticker.
type NewsFeed interface {
	Headlines() []domain.NewsHeadline
	RefreshLatest(ctx context.Context) ([]domain.NewsHeadline, error)
}

// SceneFeed serves renderer commands for the browser to replay.
type SceneFeed interface {
	Since(version uint64) (cmds []globe.Command, current uint64, resync bool)
}

// ViewState reports whether the globe finished loading.
type ViewState interface {
	Loaded() bool
}

// Deps are the services behind the API. History may be nil.
type Deps struct {
	Simulator    Simulator
	History      SimulationHistory
	Chat         ChatService
	News         NewsFeed
	Scene        SceneFeed
	View         ViewState
	IonToken     string
	Ready        sharedobs.ReadinessChecker
	RateLimitRPS int
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

func newHandler(deps Deps, logger *slog.Logger) *handler {
	return &handler{deps: deps, logger: logger}
}

func (h *handler) registerRoutes(r *gin.RouterGroup) {
	r.PUT("/inputs", h.putInputs)
	r.POST("/simulate", h.simulate)
	r.GET("/state", h.state)
	if h.deps.History != nil {
		r.GET("/simulations", h.listSimulations)
		r.GET("/simulations/:id", h.getSimulation)
	}

	r.POST("/chat/sessions", h.createSession)
	r.POST("/chat/sessions/:id/messages", h.sendMessage)
	r.GET("/chat/sessions/:id/messages", h.listMessages)

	r.GET("/news", h.news)
	r.POST("/news/refresh", h.refreshNews)

	r.GET("/scene/commands", h.sceneCommands)
	r.GET("/viewer", h.viewer)
}

type sceneResponse struct {
	Snapshot domain.Snapshot   `json:"snapshot"`
	Scene    domain.SceneState `json:"scene"`
	Critical bool              `json:"critical"`
}

func newSceneResponse(snap domain.Snapshot) sceneResponse {
	scene := snap.Scene()
	return sceneResponse{Snapshot: snap, Scene: scene, Critical: scene.Critical()}
}

// putInputs decodes onto the pending inputs, so the overlay may send only the
// field that changed.
func (h *handler) putInputs(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var bindErr error
	pending, err := h.deps.Simulator.Update(func(in *domain.SimulationInputs) error {
		bindErr = binding.JSON.BindBody(body, in)
		return bindErr
	})
	if bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + bindErr.Error()})
		return
	}
	if err != nil {
		h.simulationError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"pending": pending})
}

// simulate runs immediately with the posted inputs, or the pending ones when
// the body is empty.
func (h *handler) simulate(c *gin.Context) {
	in := h.deps.Simulator.Pending()
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	snap, err := h.deps.Simulator.RunNow(c.Request.Context(), in)
	if err != nil {
		h.simulationError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSceneResponse(snap))
}

func (h *handler) simulationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInputs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, simulation.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, simulation.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("simulation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "simulation failed"})
	}
}

func (h *handler) state(c *gin.Context) {
	resp := gin.H{"pending": h.deps.Simulator.Pending()}
	if snap, ok := h.deps.Simulator.Current(); ok {
		resp["current"] = newSceneResponse(snap)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listSimulations(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	records, err := h.deps.History.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list simulations failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch simulations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"simulations": records})
}

func (h *handler) getSimulation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid simulation id"})
		return
	}
	rec, err := h.deps.History.GetSnapshot(c.Request.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
		return
	}
	if err != nil {
		h.logger.Error("get simulation failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch simulation"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) createSession(c *gin.Context) {
	id, err := h.deps.Chat.NewSession(c.Request.Context())
	if err != nil {
		h.logger.Error("create chat session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	msg, err := h.deps.Chat.Send(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handler) listMessages(c *gin.Context) {
	msgs, err := h.deps.Chat.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handler) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, panel.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		h.logger.Error("chat failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
	}
}

func (h *handler) news(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"headlines": h.deps.News.Headlines()})
}

func (h *handler) refreshNews(c *gin.Context) {
	headlines, err := h.deps.News.RefreshLatest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"headlines": headlines})
}

func (h *handler) sceneCommands(c *gin.Context) {
	var since uint64
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter"})
			return
		}
		since = v
	}
	cmds, version, resync := h.deps.Scene.Since(since)
	if cmds == nil {
		cmds = []globe.Command{}
	}
	c.JSON(http.StatusOK, gin.H{
		"version":  version,
		"resync":   resync,
		"commands": cmds,
	})
}

func (h *handler) viewer(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ion_token":      h.deps.IonToken,
		"loaded":         h.deps.View != nil && h.deps.View.Loaded(),
		"initial_camera": globe.InitialCamera,
	})
}
