// Package ai provides the model-backed content services for the document
// pipeline: generation, validation, and correction of structured artifacts.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Model selection is tiered by task complexity: the high-end model for
// extraction, appraisal, and report generation; the cost-efficient model
// for classification and other simple calls.
//
// Environment variable overrides:
// - SCIPRESS_MODEL_DEFAULT: override default model
// - SCIPRESS_MODEL_SIMPLE: override model for simple tasks
const (
	// ModelSonnet is the high-end model for complex reasoning tasks
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, checking SCIPRESS_MODEL_DEFAULT first
func GetDefaultModel() string {
	if model := os.Getenv("SCIPRESS_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleTaskModel returns the model for simple tasks, checking SCIPRESS_MODEL_SIMPLE first
func GetSimpleTaskModel() string {
	if model := os.Getenv("SCIPRESS_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// Client wraps the Anthropic API with concurrency and rate limiting shared
// across all pipeline stages. Retry of transient failures is handled by the
// refinement loop, not here.
type Client struct {
	api     *anthropic.Client
	model   string
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Config holds client configuration
type Config struct {
	APIKey string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string // Model to use (default: GetDefaultModel())

	// MaxConcurrentCalls limits in-flight API calls across concurrent
	// document runs (default: 3, 0 = unlimited)
	MaxConcurrentCalls int

	// RequestsPerSecond throttles call dispatch (default: 2, 0 = unlimited)
	RequestsPerSecond float64
}

// NewClient creates a model API client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (set ANTHROPIC_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent == 0 {
		maxConcurrent = 3
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}

	api := anthropic.NewClient(option.WithAPIKey(apiKey))

	c := &Client{
		api:   &api,
		model: model,
	}
	if maxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c, nil
}

// Complete sends a single-turn prompt and returns the concatenated text of
// the response.
func (c *Client) Complete(ctx context.Context, prompt string, model string, maxTokens int64) (string, error) {
	if model == "" {
		model = c.model
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("failed to acquire concurrency slot: %w", err)
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait canceled: %w", err)
		}
	}

	message, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
