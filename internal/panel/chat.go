// Package panel holds the chat threads and the headline ticker shown next to
// the globe.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = errors.New("chat message is empty")

// Responder answers chat messages given the current climate context.
type Responder interface {
	ChatReply(ctx context.Context, climateContext, message string) (string, error)
}

// ClimateSource returns the climate data currently on screen.
type ClimateSource func() domain.ClimateData

// Chat manages append-only chat threads. Messages are sent as soon as they
// arrive, independent of the simulation debounce.
type Chat struct {
	responder    Responder
	store        HistoryStore
	climate      ClimateSource
	offlineDelay time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewChat creates a Chat. When the responder fails, the canned offline reply
// is appended after offlineDelay.
func NewChat(r Responder, store HistoryStore, climate ClimateSource, offlineDelay time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Chat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Chat{
		responder:    r,
		store:        store,
		climate:      climate,
		offlineDelay: offlineDelay,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// NewSession starts an empty thread and returns its id.
func (c *Chat) NewSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := c.store.CreateSession(ctx, id); err != nil {
		return "", fmt.Errorf("create chat session: %w", err)
	}
	return id, nil
}

// History returns the thread in append order.
func (c *Chat) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	return c.store.Messages(ctx, sessionID)
}

// Send appends the user message, asks the responder, and appends the reply.
// A responder failure yields the offline reply rather than an error.
func (c *Chat) Send(ctx context.Context, sessionID, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	exists, err := c.store.SessionExists(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("lookup chat session: %w", err)
	}
	if !exists {
		return domain.ChatMessage{}, domain.ErrSessionNotFound
	}

	if err := c.append(ctx, sessionID, domain.NewChatMessage(domain.RoleUser, text)); err != nil {
		return domain.ChatMessage{}, err
	}

	climate := c.climate()
	reply, err := c.responder.ChatReply(ctx, domain.ContextSummary(climate), text)
	if err != nil {
		c.logger.Warn("chat reply unavailable, sending offline reply", "session", sessionID, "error", err)
		c.metrics.Fallbacks.WithLabelValues(narrative.OpChat).Inc()

		select {
		case <-c.clock.After(c.offlineDelay):
		case <-ctx.Done():
			return domain.ChatMessage{}, ctx.Err()
		}
		reply = domain.OfflineChatReply(climate)
	}

	msg := domain.NewChatMessage(domain.RoleModel, reply)
	if err := c.append(ctx, sessionID, msg); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

func (c *Chat) append(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	if err := c.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	c.metrics.ChatMessages.WithLabelValues(string(msg.Role)).Inc()
	return nil
}
