// Package narrative requests climate narratives, headlines, and chat replies
// from a remote language model. Every failure is reported as
// domain.ErrServiceUnavailable so callers can substitute local data.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
)

// Operations, used as metric labels.
const (
	OpClimate   = "climate"
	OpHeadlines = "headlines"
	OpChat      = "chat"
)

// HeadlineCount is the number of headlines a refresh must produce.
const HeadlineCount = 4

// Request is a single-turn completion: one system instruction and one user
// message. JSON asks the backend for a JSON object response.
type Request struct {
	System    string
	Prompt    string
	JSON      bool
	MaxTokens int
}

// Completer sends a single-turn request to a model backend and returns the
// response text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NarrativeRequest describes the scenario to narrate. ComputedRise is the
// local projection the remote model is asked to respect.
type NarrativeRequest struct {
	Location     string
	Scenario     string
	ComputedRise float64
}

// Service wraps a Completer with prompts, response parsing, timeouts and metrics.
type Service struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a narrative service. A nil completer yields a service
// that is always unavailable.
func NewService(c Completer, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		completer: c,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Available reports whether a backend is configured.
func (s *Service) Available() bool {
	return s.completer != nil
}

// ClimateNarrative requests structured ClimateData for the scenario.
func (s *Service) ClimateNarrative(ctx context.Context, req NarrativeRequest) (domain.ClimateData, error) {
	text, err := s.complete(ctx, OpClimate, climateRequest(req))
	if err != nil {
		return domain.ClimateData{}, err
	}

	var data domain.ClimateData
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &data); err != nil {
		s.observe(OpClimate, "error")
		return domain.ClimateData{}, fmt.Errorf("%w: decode climate data: %v", domain.ErrServiceUnavailable, err)
	}
	if data.Location == "" {
		data.Location = req.Location
	}
	return data, nil
}

// Headlines requests exactly HeadlineCount headlines. Fewer is a failure,
// extras are dropped.
func (s *Service) Headlines(ctx context.Context, climateContext string) ([]string, error) {
	text, err := s.complete(ctx, OpHeadlines, headlinesRequest(climateContext))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Headlines []string `json:"headlines"`
	}
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &payload); err != nil {
		s.observe(OpHeadlines, "error")
		return nil, fmt.Errorf("%w: decode headlines: %v", domain.ErrServiceUnavailable, err)
	}

	headlines := make([]string, 0, HeadlineCount)
	for _, h := range payload.Headlines {
		if h = strings.TrimSpace(h); h != "" {
			headlines = append(headlines, h)
		}
	}
	if len(headlines) < HeadlineCount {
		s.observe(OpHeadlines, "error")
		return nil, fmt.Errorf("%w: got %d headlines, want %d", domain.ErrServiceUnavailable, len(headlines), HeadlineCount)
	}
	return headlines[:HeadlineCount], nil
}

// ChatReply answers a user message. The current climate context is sent with
// every turn; no conversation history is replayed.
func (s *Service) ChatReply(ctx context.Context, climateContext, message string) (string, error) {
	text, err := s.complete(ctx, OpChat, chatRequest(climateContext, message))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.observe(OpChat, "error")
		return "", fmt.Errorf("%w: empty chat reply", domain.ErrServiceUnavailable)
	}
	return text, nil
}

func (s *Service) complete(ctx context.Context, op string, req Request) (string, error) {
	if s.completer == nil {
		return "", fmt.Errorf("%w: no narrative backend configured", domain.ErrServiceUnavailable)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.completer.Complete(ctx, req)
	s.metrics.NarrativeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		s.observe(op, "error")
		s.logger.Warn("narrative request failed", "operation", op, "error", err)
		if errors.Is(err, domain.ErrServiceUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	s.observe(op, "success")
	return text, nil
}

func (s *Service) observe(op, outcome string) {
	s.metrics.NarrativeRequests.WithLabelValues(op, outcome).Inc()
}
