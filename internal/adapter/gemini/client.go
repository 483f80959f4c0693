// Package gemini implements narrative.Completer with the Gemini SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"google.golang.org/genai"
)

const jsonMIMEType = "application/json"

// generator is the subset of *genai.Models used by the client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client sends single-turn prompts to a Gemini model. The SDK client is
// created on first use, and only when an API key is configured.
type Client struct {
	apiKey string
	model  string
	logger *slog.Logger

	once    sync.Once
	models  generator
	initErr error
}

// NewClient creates a Gemini completer for the given model.
func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	return &Client{apiKey: apiKey, model: model, logger: logger}
}

func newWithGenerator(g generator, model string, logger *slog.Logger) *Client {
	c := &Client{apiKey: "injected", model: model, logger: logger, models: g}
	c.once.Do(func() {})
	return c
}

// Complete sends the request and returns the normalized response text.
func (c *Client) Complete(ctx context.Context, req narrative.Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: gemini API key not set", domain.ErrServiceUnavailable)
	}

	c.once.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			c.initErr = fmt.Errorf("create gemini client: %w", err)
			return
		}
		c.models = client.Models
	})
	if c.initErr != nil {
		return "", c.initErr
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens), //nolint:gosec // prompt budgets are small constants
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		config.ResponseMIMEType = jsonMIMEType
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	c.logger.Debug("gemini response received", "model", c.model, "json", req.JSON)
	return text, nil
}

var errEmptyResponse = errors.New("gemini returned no text")

// responseText flattens the first candidate's text parts into one string,
// skipping thought parts, and strips any markdown fence.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	text := narrative.StripCodeFences(b.String())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}
